// Package guard implements the time-sync guard, the sole authority on
// timestamp validity between ingestion and enrichment. It re-parses the
// raw upstream timestamp itself rather than trusting the worker's
// parse, keeps a per (source, asset) tracker of the latest accepted
// event time, and owns the per-source dedup stores.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/ingest"
	"github.com/coinpulse/pulsefeed/internal/metrics"
)

// Rejection reasons as they appear on the guard_dropped_total metric.
const (
	ReasonMalformed  = "malformed"
	ReasonFuture     = "future"
	ReasonLate       = "late"
	ReasonOutOfOrder = "out_of_order"
	ReasonDuplicate  = "duplicate"
)

// latenessFor is the maximum acceptable age of an event at guard time.
func latenessFor(src domain.Source) time.Duration {
	switch src {
	case domain.SourceTwitter:
		return 15 * time.Second
	case domain.SourceTelegram:
		return 30 * time.Second
	default:
		return 120 * time.Second
	}
}

// toleranceFor is how far behind the tracked high-water mark an event
// may arrive and still be accepted.
func toleranceFor(src domain.Source) time.Duration {
	switch src {
	case domain.SourceTwitter:
		return 5 * time.Second
	case domain.SourceTelegram:
		return 10 * time.Second
	default:
		return 60 * time.Second
	}
}

type trackerKey struct {
	source domain.Source
	asset  string
}

// SourceStats are cumulative per-source guard counters. The DQM reads
// them to derive the time-integrity rate.
type SourceStats struct {
	Passed      int64
	DroppedLate int64
	Total       int64
}

// Guard sits between the workers and the enrichment pipeline. Workers
// from all three sources call Process concurrently.
type Guard struct {
	next ingest.Sink
	clk  clock.Clock

	mu    sync.Mutex
	last  map[trackerKey]time.Time
	dedup map[domain.Source]*ingest.DedupStore
	stats map[domain.Source]*SourceStats
}

// NewGuard wires a guard in front of next with one dedup store per
// source at that source's TTL.
func NewGuard(next ingest.Sink, clk clock.Clock) *Guard {
	g := &Guard{
		next:  next,
		clk:   clk,
		last:  make(map[trackerKey]time.Time),
		dedup: make(map[domain.Source]*ingest.DedupStore),
		stats: make(map[domain.Source]*SourceStats),
	}
	for _, src := range []domain.Source{domain.SourceTwitter, domain.SourceReddit, domain.SourceTelegram} {
		g.dedup[src] = ingest.NewDedupStore(ingest.DedupTTL(src), clk)
		g.stats[src] = &SourceStats{}
	}
	return g
}

// parseStrict accepts only RFC 3339 with an explicit offset, which
// also guarantees at least second precision. Finer precision is kept
// by truncating, never by rejecting.
func parseStrict(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp missing")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", raw, err)
	}
	return t.UTC().Truncate(time.Second), nil
}

// dedupKey identifies an event for guard-level deduplication. Unlike
// the storage fingerprint it includes the asset, so the same text
// matched to two assets is two distinct events.
func dedupKey(ev domain.RawEvent) string {
	return ev.Asset + "|" + domain.FingerprintEvent(ev.Source, ev.Text, ev.EventTime)
}

// Process runs the five checks in their fixed order and, on accept,
// forwards the event unmodified. A rejection is not an error; the
// caller sees nil either way and the counters carry the outcome.
func (g *Guard) Process(ctx context.Context, ev domain.InboundEvent) error {
	src := ev.Event.Source
	now := g.clk.Now()

	eventTime, err := parseStrict(ev.RawTimestamp)
	if err != nil {
		g.reject(src, ReasonMalformed)
		return nil
	}
	if eventTime.After(now) {
		g.reject(src, ReasonFuture)
		return nil
	}
	if now.Sub(eventTime) > latenessFor(src) {
		g.reject(src, ReasonLate)
		return nil
	}

	key := trackerKey{source: src, asset: ev.Event.Asset}

	g.mu.Lock()
	last := g.last[key]
	if !last.IsZero() && eventTime.Before(last.Add(-toleranceFor(src))) {
		g.mu.Unlock()
		g.reject(src, ReasonOutOfOrder)
		return nil
	}
	if g.dedup[src].Seen(dedupKey(ev.Event)) {
		g.mu.Unlock()
		g.reject(src, ReasonDuplicate)
		return nil
	}
	if eventTime.After(last) {
		g.last[key] = eventTime
	}
	st := g.stats[src]
	st.Passed++
	st.Total++
	g.mu.Unlock()

	metrics.GuardPassed.WithLabelValues(string(src)).Inc()
	return g.next.Process(ctx, ev)
}

func (g *Guard) reject(src domain.Source, reason string) {
	g.mu.Lock()
	st := g.stats[src]
	st.Total++
	if reason == ReasonLate {
		st.DroppedLate++
	}
	g.mu.Unlock()

	metrics.GuardDropped.WithLabelValues(string(src), reason).Inc()
	log.Debug().Str("source", string(src)).Str("reason", reason).Msg("guard rejected event")
}

// Stats returns a copy of the cumulative counters for one source.
func (g *Guard) Stats(src domain.Source) SourceStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.stats[src]; ok {
		return *st
	}
	return SourceStats{}
}
