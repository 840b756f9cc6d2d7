package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultServerConfig binds locally by default.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the read-only HTTP surface: aggregated context, health,
// and Prometheus metrics.
type Server struct {
	router     *mux.Router
	server     *http.Server
	aggregator *Aggregator
	cache      *Cache
}

// NewServer wires routes over the aggregator. cache may be nil.
func NewServer(cfg ServerConfig, agg *Aggregator, cache *Cache) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		aggregator: agg,
		cache:      cache,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/v1/context/{asset}", s.handleContext).Methods("GET")
}

// ListenAndServe blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	req, err := parseContextRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(r.Context(), req); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	// The request validated during parsing, so a failure here is a
	// store-side error.
	agg, err := s.aggregator.Aggregate(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("context aggregation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "aggregation failed"})
		return
	}

	if s.cache != nil {
		s.cache.Put(r.Context(), req, agg)
	}
	writeJSON(w, http.StatusOK, agg)
}

func parseContextRequest(r *http.Request) (Request, error) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	req := Request{Asset: vars["asset"]}

	if raw := q.Get("sources"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			req.Sources = append(req.Sources, domain.Source(strings.TrimSpace(s)))
		}
	} else {
		req.Sources = append(req.Sources, domain.Sources...)
	}

	var err error
	if req.Since, err = time.Parse(time.RFC3339, q.Get("since")); err != nil {
		return req, err
	}
	if req.Until, err = time.Parse(time.RFC3339, q.Get("until")); err != nil {
		return req, err
	}
	return req, req.Validate()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}
