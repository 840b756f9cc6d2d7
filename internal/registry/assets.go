// Package registry holds the in-process asset and source whitelists.
// Registries are shared read-only with periodic reloads; a reload
// failure always preserves the previous state unchanged.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
)

// DefaultAssetTTL is how long a loaded asset snapshot stays fresh.
const DefaultAssetTTL = 5 * time.Minute

// AssetLoader supplies the current operator-managed asset set.
type AssetLoader func(ctx context.Context) ([]domain.Asset, error)

type keywordMatcher struct {
	symbol   string
	priority int
	order    int
	patterns []*regexp.Regexp
}

// AssetRegistry caches active assets and answers keyword lookups.
// Single writer (reload), many readers; the matcher snapshot is
// replaced atomically under the lock.
type AssetRegistry struct {
	loader AssetLoader
	clk    clock.Clock
	ttl    time.Duration

	mu       sync.RWMutex
	matchers []keywordMatcher
	assets   map[string]domain.Asset
	loadedAt time.Time
}

// NewAssetRegistry builds a registry and performs the initial load.
// Startup load failure is fatal to the caller.
func NewAssetRegistry(ctx context.Context, loader AssetLoader, clk clock.Clock, ttl time.Duration) (*AssetRegistry, error) {
	if ttl <= 0 {
		ttl = DefaultAssetTTL
	}
	r := &AssetRegistry{loader: loader, clk: clk, ttl: ttl}
	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial asset load: %w", err)
	}
	return r, nil
}

// Reload fetches a fresh asset set and swaps it in. On error the
// previous snapshot is kept.
func (r *AssetRegistry) Reload(ctx context.Context) error {
	assets, err := r.loader(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("asset registry reload failed, keeping previous snapshot")
		return fmt.Errorf("load assets: %w", err)
	}

	matchers, bySymbol, err := buildMatchers(assets)
	if err != nil {
		log.Warn().Err(err).Msg("asset registry rebuild failed, keeping previous snapshot")
		return err
	}

	r.mu.Lock()
	r.matchers = matchers
	r.assets = bySymbol
	r.loadedAt = r.clk.Now()
	r.mu.Unlock()

	log.Debug().Int("assets", len(bySymbol)).Msg("asset registry reloaded")
	return nil
}

// MaybeReload refreshes the snapshot if the TTL has elapsed. Errors
// are already logged by Reload and deliberately swallowed here: stale
// but valid beats absent.
func (r *AssetRegistry) MaybeReload(ctx context.Context) {
	r.mu.RLock()
	stale := r.clk.Now().Sub(r.loadedAt) >= r.ttl
	r.mu.RUnlock()
	if stale {
		_ = r.Reload(ctx)
	}
}

func buildMatchers(assets []domain.Asset) ([]keywordMatcher, map[string]domain.Asset, error) {
	matchers := make([]keywordMatcher, 0, len(assets))
	bySymbol := make(map[string]domain.Asset, len(assets))

	for i, a := range assets {
		if a.Symbol == "" {
			return nil, nil, fmt.Errorf("asset at index %d has empty symbol", i)
		}
		if _, dup := bySymbol[a.Symbol]; dup {
			return nil, nil, fmt.Errorf("duplicate asset symbol %q", a.Symbol)
		}
		bySymbol[a.Symbol] = a
		if !a.Active {
			continue
		}
		m := keywordMatcher{symbol: a.Symbol, priority: a.Priority, order: i}
		for _, kw := range a.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			// Word-boundary semantics: keyword delimited by whitespace,
			// '$', '#' or the string boundary on both sides.
			p, err := regexp.Compile(`(?i)(?:^|[\s$#])` + regexp.QuoteMeta(kw) + `(?:[\s$#]|$)`)
			if err != nil {
				return nil, nil, fmt.Errorf("asset %s keyword %q: %w", a.Symbol, kw, err)
			}
			m.patterns = append(m.patterns, p)
		}
		if len(m.patterns) > 0 {
			matchers = append(matchers, m)
		}
	}

	// Higher priority wins; ties break by first-seen order.
	sort.SliceStable(matchers, func(i, j int) bool {
		if matchers[i].priority != matchers[j].priority {
			return matchers[i].priority > matchers[j].priority
		}
		return matchers[i].order < matchers[j].order
	})

	return matchers, bySymbol, nil
}

// DetectAsset returns the highest-priority active asset whose keyword
// set matches text, or "" when nothing matches.
func (r *AssetRegistry) DetectAsset(text string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.matchers {
		for _, p := range m.patterns {
			if p.MatchString(text) {
				return m.symbol
			}
		}
	}
	return ""
}

// ContainsAny reports whether any active asset keyword matches text.
func (r *AssetRegistry) ContainsAny(text string) bool {
	return r.DetectAsset(text) != ""
}

// Get returns the asset for symbol.
func (r *AssetRegistry) Get(symbol string) (domain.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[symbol]
	return a, ok
}
