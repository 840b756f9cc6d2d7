package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

// SourceLoader supplies the whitelist entries for one source kind.
type SourceLoader func(ctx context.Context) ([]domain.SourceEntry, error)

// SourceRegistry holds the closed whitelist for a single platform.
// Any handle not present (or present but disabled) is discarded before
// any processing.
type SourceRegistry struct {
	source domain.Source
	loader SourceLoader

	mu      sync.RWMutex
	byKey   map[string]domain.SourceEntry
	ordered []domain.SourceEntry
}

// NewSourceRegistry builds a registry for source and performs the
// initial load.
func NewSourceRegistry(ctx context.Context, source domain.Source, loader SourceLoader) (*SourceRegistry, error) {
	r := &SourceRegistry{source: source, loader: loader}
	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial %s whitelist load: %w", source, err)
	}
	return r, nil
}

// Reload replaces the whitelist. On error the previous state is kept.
func (r *SourceRegistry) Reload(ctx context.Context) error {
	entries, err := r.loader(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", string(r.source)).Msg("source whitelist reload failed, keeping previous snapshot")
		return fmt.Errorf("load %s whitelist: %w", r.source, err)
	}

	byKey := make(map[string]domain.SourceEntry, len(entries))
	ordered := make([]domain.SourceEntry, 0, len(entries))
	for _, e := range entries {
		key := normalizeHandle(e.Handle)
		if key == "" {
			return fmt.Errorf("%s whitelist entry %q has empty handle", r.source, e.ID)
		}
		if _, dup := byKey[key]; dup {
			return fmt.Errorf("%s whitelist has duplicate handle %q", r.source, e.Handle)
		}
		byKey[key] = e
		if e.Enabled {
			ordered = append(ordered, e)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	r.mu.Lock()
	r.byKey = byKey
	r.ordered = ordered
	r.mu.Unlock()

	log.Debug().Str("source", string(r.source)).Int("entries", len(byKey)).Int("enabled", len(ordered)).Msg("source whitelist reloaded")
	return nil
}

// Source returns the platform this registry guards.
func (r *SourceRegistry) Source() domain.Source { return r.source }

// IsWhitelisted reports whether handle names an enabled entry.
func (r *SourceRegistry) IsWhitelisted(handle string) bool {
	_, ok := r.Get(handle)
	return ok
}

// Get returns the enabled entry for handle. Disabled entries are
// treated identically to absent ones.
func (r *SourceRegistry) Get(handle string) (domain.SourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[normalizeHandle(handle)]
	if !ok || !e.Enabled {
		return domain.SourceEntry{}, false
	}
	return e, true
}

// Lookup returns the entry for handle regardless of its enabled flag,
// so callers can distinguish "never whitelisted" from "disabled" when
// counting drop reasons. Ingestion decisions must use Get instead.
func (r *SourceRegistry) Lookup(handle string) (domain.SourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[normalizeHandle(handle)]
	return e, ok
}

// EnabledSources returns the enabled entries ordered by priority desc.
func (r *SourceRegistry) EnabledSources() []domain.SourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SourceEntry, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
