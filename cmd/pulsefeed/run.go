package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coinpulse/pulsefeed/internal/alert"
	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/config"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/dqm"
	"github.com/coinpulse/pulsefeed/internal/enrich"
	"github.com/coinpulse/pulsefeed/internal/guard"
	"github.com/coinpulse/pulsefeed/internal/ingest"
	"github.com/coinpulse/pulsefeed/internal/registry"
	"github.com/coinpulse/pulsefeed/internal/sched"
	"github.com/coinpulse/pulsefeed/internal/serve"
	"github.com/coinpulse/pulsefeed/internal/store"
	"github.com/coinpulse/pulsefeed/internal/store/postgres"
	"github.com/coinpulse/pulsefeed/internal/upstream"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// openStore picks the event store backend. The memory backend exists
// for local development and demos; it loses everything on restart.
func openStore(ctx context.Context, cfg config.Config, backend string) (store.EventStore, func(), error) {
	switch backend {
	case "memory":
		log.Warn().Msg("using in-memory event store, data will not survive a restart")
		return store.NewMemoryStore(), func() {}, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.NewEventsRepo(db, cfg.Database.QueryTimeout), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func newCache(cfg config.Config) *serve.Cache {
	if cfg.Cache.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Secrets.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	return serve.NewCache(rdb, cfg.Cache.TTL)
}

func newTransport(cfg config.Config) (alert.Transport, error) {
	if cfg.Secrets.TelegramBotToken == "" {
		log.Info().Msg("no telegram bot token, alerts go to the log")
		return alert.LogTransport{}, nil
	}
	return alert.NewTelegramTransport(cfg.Secrets.TelegramBotToken, cfg.Secrets.TelegramChatID)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, _ := cmd.Flags().GetString("store")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	st, closeStore, err := openStore(ctx, cfg, backend)
	if err != nil {
		return err
	}
	defer closeStore()

	assets, err := registry.NewAssetRegistry(ctx, registry.YAMLAssetLoader(cfg.Registry.AssetsPath), clk, cfg.Registry.RefreshTTL)
	if err != nil {
		return fmt.Errorf("load asset registry: %w", err)
	}
	sourceRegs := make(map[domain.Source]*registry.SourceRegistry, len(domain.Sources))
	for _, src := range domain.Sources {
		reg, err := registry.NewSourceRegistry(ctx, src, registry.YAMLSourceLoader(cfg.Registry.SourcesPath, src))
		if err != nil {
			return fmt.Errorf("load %s whitelist: %w", src, err)
		}
		sourceRegs[src] = reg
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return fmt.Errorf("telegram transport: %w", err)
	}
	alerter := alert.NewAlerter(transport, clk)

	fearGreed := upstream.NewFearGreedPoller(cfg.Upstream.FearGreedBaseURL, cfg.Secrets.ProxyURL, clk)

	var llm enrich.Classifier
	if cfg.Upstream.LLMBaseURL != "" {
		llm = enrich.NewHTTPClassifier(cfg.Upstream.LLMBaseURL, cfg.Secrets.LLMAPIKey)
	}

	// The pipeline observes through the monitor, the monitor reads the
	// guard's counters, and the guard feeds the pipeline. The function
	// sink closes that loop.
	var pipeline *enrich.Pipeline
	gd := guard.NewGuard(ingest.SinkFunc(func(ctx context.Context, ev domain.InboundEvent) error {
		return pipeline.Process(ctx, ev)
	}), clk)
	monitor := dqm.NewMonitor(gd, clk)
	pipeline = enrich.NewPipeline(st, llm, fearGreed, monitor, alerter)

	proxy := cfg.Secrets.ProxyURL
	workers := []ingest.Worker{
		ingest.NewTwitterWorker(
			upstream.NewTwitterClient(cfg.Upstream.TwitterBaseURL, cfg.Secrets.TwitterBearerToken, proxy),
			sourceRegs[domain.SourceTwitter], assets, gd, clk),
		ingest.NewRedditWorker(
			upstream.NewRedditClient(cfg.Upstream.RedditBaseURL, cfg.Secrets.RedditUserAgent, proxy),
			sourceRegs[domain.SourceReddit], assets, gd, clk),
		ingest.NewTelegramWorker(
			upstream.NewTelegramClient(cfg.Upstream.TelegramBaseURL, cfg.Secrets.TelegramBridgeKey, proxy),
			sourceRegs[domain.SourceTelegram], assets, gd, clk),
	}

	scheduler := sched.NewScheduler(workers, sched.OpenStateFile(cfg.StatePath), monitor, st, alerter, clk, cfg.Intervals)
	scheduler.ReportSchedule = cfg.ReportSchedule
	scheduler.ReportSink = transport

	server := serve.NewServer(cfg.Server, serve.NewAggregator(st), newCache(cfg))

	go fearGreed.Run(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- scheduler.Run(ctx) }()
	go func() { errCh <- server.ListenAndServe(ctx) }()

	log.Info().Str("version", version).Str("store", backend).Msg("pipeline started")

	// A failing listener or scheduler brings the whole process down.
	firstErr := <-errCh
	stop()
	if err := <-errCh; err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func runServeOnly(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, "postgres")
	if err != nil {
		return err
	}
	defer closeStore()

	server := serve.NewServer(cfg.Server, serve.NewAggregator(st), newCache(cfg))
	log.Info().Str("version", version).Msg("read-only server started")
	return server.ListenAndServe(ctx)
}
