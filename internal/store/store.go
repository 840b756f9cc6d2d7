// Package store persists the four event kinds. The Postgres
// implementation is the production sink; the memory implementation
// backs tests and the --store=memory development mode.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

// ErrDuplicateFingerprint reports a raw insert whose fingerprint is
// already present. The pipeline treats it as a silent abort, never as
// a failure.
var ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

// QueryFilter bounds a read. Source nil means all sources. Reads never
// write.
type QueryFilter struct {
	Asset          string
	From           time.Time
	To             time.Time
	Source         *domain.Source
	IncludeDropped bool
}

// EnrichedRecord joins one raw event with its sentiment and risk rows.
type EnrichedRecord struct {
	Raw       domain.RawEvent
	Sentiment domain.SentimentEvent
	Risk      domain.RiskEvent
}

// EventStore is the transactional sink for enriched events plus the
// pure read interface consumed by the serving layer.
type EventStore interface {
	// InsertEnriched writes the raw, sentiment and risk rows
	// atomically. Returns ErrDuplicateFingerprint when the raw
	// fingerprint exists; in that case nothing is written.
	InsertEnriched(ctx context.Context, raw domain.RawEvent, sent domain.SentimentEvent, risk domain.RiskEvent) error

	// InsertQuality appends one DQM emission.
	InsertQuality(ctx context.Context, q domain.QualityEvent) error

	// QueryEnriched returns records in ascending event-time order.
	QueryEnriched(ctx context.Context, f QueryFilter) ([]EnrichedRecord, error)

	// QueryQuality returns DQM emissions in [from, to] ascending.
	QueryQuality(ctx context.Context, from, to time.Time) ([]domain.QualityEvent, error)

	// MarkDropped excludes a raw event from normal reads after a
	// partial write could not be rolled back.
	MarkDropped(ctx context.Context, rawID uuid.UUID) error
}

// MemoryStore is an in-process EventStore with the same dedup
// semantics as the Postgres unique constraint.
type MemoryStore struct {
	mu           sync.Mutex
	records      []EnrichedRecord
	quality      []domain.QualityEvent
	fingerprints map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fingerprints: make(map[string]struct{})}
}

func (m *MemoryStore) InsertEnriched(ctx context.Context, raw domain.RawEvent, sent domain.SentimentEvent, risk domain.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.fingerprints[raw.Fingerprint]; dup {
		return ErrDuplicateFingerprint
	}
	m.fingerprints[raw.Fingerprint] = struct{}{}
	m.records = append(m.records, EnrichedRecord{Raw: raw, Sentiment: sent, Risk: risk})
	return nil
}

func (m *MemoryStore) InsertQuality(ctx context.Context, q domain.QualityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quality = append(m.quality, q)
	return nil
}

func (m *MemoryStore) QueryEnriched(ctx context.Context, f QueryFilter) ([]EnrichedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []EnrichedRecord
	for _, r := range m.records {
		if !matches(r.Raw, f) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Raw.EventTime.Before(out[j].Raw.EventTime)
	})
	return out, nil
}

func (m *MemoryStore) QueryQuality(ctx context.Context, from, to time.Time) ([]domain.QualityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.QualityEvent
	for _, q := range m.quality {
		if !from.IsZero() && q.EventTime.Before(from) {
			continue
		}
		if !to.IsZero() && q.EventTime.After(to) {
			continue
		}
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EventTime.Before(out[j].EventTime)
	})
	return out, nil
}

func (m *MemoryStore) MarkDropped(ctx context.Context, rawID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].Raw.ID == rawID {
			m.records[i].Raw.Dropped = true
			return nil
		}
	}
	return nil
}

// QualityEvents returns a copy of the stored DQM emissions.
func (m *MemoryStore) QualityEvents() []domain.QualityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.QualityEvent, len(m.quality))
	copy(out, m.quality)
	return out
}

func matches(raw domain.RawEvent, f QueryFilter) bool {
	if f.Asset != "" && raw.Asset != f.Asset {
		return false
	}
	if f.Source != nil && raw.Source != *f.Source {
		return false
	}
	if raw.Dropped && !f.IncludeDropped {
		return false
	}
	if !f.From.IsZero() && raw.EventTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && raw.EventTime.After(f.To) {
		return false
	}
	return true
}
