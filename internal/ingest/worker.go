// Package ingest implements the three source workers. Each worker
// owns its velocity and dedup state, applies the source's filter
// chain in its fixed order and hands surviving events to the pipeline
// sorted by ascending event time.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/metrics"
)

// Drop reasons, shared across sources where the semantics coincide.
const (
	DropNotWhitelisted   = "not_whitelisted"
	DropSourceDisabled   = "source_disabled"
	DropGlobalRate       = "global_rate_exceeded"
	DropSourceRate       = "source_rate_exceeded"
	DropEmptyText        = "empty_text"
	DropNoAssetMatch     = "no_asset_match"
	DropBadTimestamp     = "bad_timestamp"
	DropRetweetNoQuote   = "retweet_without_quote"
	DropProtectedAccount = "protected_account"
	DropPromoted         = "promoted"
	DropZeroEngagement   = "zero_engagement"
	DropMissingFields    = "missing_fields"
	DropDeletedAuthor    = "deleted_author"
	DropNonPositiveScore = "nonpositive_score"
	DropDeletedBody      = "deleted_body"
	DropForwardUnknown   = "forward_unknown_source"
	DropBotAuthor        = "bot_author"
	DropBatchDuplicate   = "batch_duplicate"
)

// Sink receives worker-accepted events. In production this is the
// time-sync guard feeding the enrichment pipeline.
type Sink interface {
	Process(ctx context.Context, ev domain.InboundEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev domain.InboundEvent) error

func (f SinkFunc) Process(ctx context.Context, ev domain.InboundEvent) error {
	return f(ctx, ev)
}

// CycleMetrics summarizes one worker cycle for the scheduler. Workers
// surface counts only, never individual errors.
type CycleMetrics struct {
	Source          domain.Source
	Fetched         int
	Accepted        int
	Drops           map[string]int
	LastProcessedID string
	MaxEventTime    time.Time
}

func newCycleMetrics(source domain.Source) CycleMetrics {
	return CycleMetrics{Source: source, Drops: make(map[string]int)}
}

func (m *CycleMetrics) drop(reason string) {
	m.Drops[reason]++
	metrics.IngestDropped.WithLabelValues(string(m.Source), reason).Inc()
}

func (m *CycleMetrics) accept(id string, eventTime time.Time) {
	m.Accepted++
	if id > m.LastProcessedID {
		m.LastProcessedID = id
	}
	if eventTime.After(m.MaxEventTime) {
		m.MaxEventTime = eventTime
	}
	metrics.IngestAccepted.WithLabelValues(string(m.Source)).Inc()
}

// Worker is the uniform contract every source worker exposes to the
// scheduler.
type Worker interface {
	Source() domain.Source
	RunCycle(ctx context.Context, now time.Time, cursor domain.Cursor) (CycleMetrics, error)
}

// parseEventTime validates and parses an upstream timestamp. It must
// be RFC 3339 with an explicit offset; fractional seconds are
// truncated. The guard re-validates independently.
func parseEventTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp missing")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", raw, err)
	}
	return t.UTC().Truncate(time.Second), nil
}

// release sorts the accepted batch by ascending event time and hands
// each event to the sink. This boundary is the only place where
// out-of-order items within a batch are reordered.
func release(ctx context.Context, sink Sink, batch []domain.InboundEvent) error {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Event.EventTime.Before(batch[j].Event.EventTime)
	})
	for _, ev := range batch {
		if err := sink.Process(ctx, ev); err != nil {
			return fmt.Errorf("pipeline handoff: %w", err)
		}
	}
	return nil
}

func ptr(f float64) *float64 { return &f }
