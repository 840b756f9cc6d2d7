// Package serve exposes already-computed context over HTTP: the
// aggregated read interface, health, and metrics. It performs pure
// reads only.
package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/store"
)

// Window bounds for one aggregation request.
const (
	MinWindow = 30 * time.Second
	MaxWindow = 300 * time.Second
)

// Request is one aggregation query.
type Request struct {
	Asset   string
	Sources []domain.Source
	Since   time.Time
	Until   time.Time
}

// Validate enforces the read-interface contract.
func (r Request) Validate() error {
	if r.Asset == "" {
		return fmt.Errorf("asset is required")
	}
	if !r.Since.Before(r.Until) {
		return fmt.Errorf("t_since must precede t_until")
	}
	window := r.Until.Sub(r.Since)
	if window < MinWindow || window > MaxWindow {
		return fmt.Errorf("window %s outside [%s, %s]", window, MinWindow, MaxWindow)
	}
	if len(r.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for _, s := range r.Sources {
		if !s.Valid() {
			return fmt.Errorf("unknown source %q", s)
		}
	}
	return nil
}

// Sentiment is the aggregated sentiment block.
type Sentiment struct {
	Label      int     `json:"label"`
	Confidence float64 `json:"confidence"`
}

// RiskIndicators aggregates the stage-3 fields across the window.
type RiskIndicators struct {
	SocialOverheat bool                 `json:"social_overheat"`
	PanicRisk      bool                 `json:"panic_risk"`
	FOMORisk       bool                 `json:"fomo_risk"`
	FearGreedIndex *int                 `json:"fear_greed_index,omitempty"`
	FearGreedZone  domain.FearGreedZone `json:"fear_greed_zone"`
}

// DataQuality is the worst status per dimension over the window.
type DataQuality struct {
	Overall          domain.OverallQuality `json:"overall"`
	Availability     domain.Availability   `json:"availability"`
	TimeIntegrity    domain.TimeIntegrity  `json:"time_integrity"`
	Volume           domain.VolumeStatus   `json:"volume"`
	SourceBalance    domain.BalanceStatus  `json:"source_balance"`
	AnomalyFrequency domain.AnomalyStatus  `json:"anomaly_frequency"`
}

// Aggregate is the response of the read interface.
type Aggregate struct {
	Sentiment      Sentiment      `json:"sentiment"`
	RiskIndicators RiskIndicators `json:"risk_indicators"`
	DataQuality    DataQuality    `json:"data_quality"`
	RecordCount    int            `json:"record_count"`
	Window         string         `json:"window"`
}

// Aggregator computes read-interface responses from the event store.
type Aggregator struct {
	store store.EventStore
}

// NewAggregator wraps the store with the aggregation rules.
func NewAggregator(st store.EventStore) *Aggregator {
	return &Aggregator{store: st}
}

// Aggregate validates and answers one request.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (Aggregate, error) {
	if err := req.Validate(); err != nil {
		return Aggregate{}, err
	}

	wanted := make(map[domain.Source]struct{}, len(req.Sources))
	for _, s := range req.Sources {
		wanted[s] = struct{}{}
	}

	recs, err := a.store.QueryEnriched(ctx, store.QueryFilter{
		Asset: req.Asset,
		From:  req.Since,
		To:    req.Until,
	})
	if err != nil {
		return Aggregate{}, fmt.Errorf("aggregate query: %w", err)
	}

	out := Aggregate{
		Window: req.Until.Sub(req.Since).String(),
		RiskIndicators: RiskIndicators{
			FearGreedZone: domain.ZoneUnknown,
		},
		DataQuality: DataQuality{
			Overall:          domain.QualityHealthy,
			Availability:     domain.AvailabilityOK,
			TimeIntegrity:    domain.TimeIntegrityOK,
			Volume:           domain.VolumeNormal,
			SourceBalance:    domain.BalanceNormal,
			AnomalyFrequency: domain.AnomalyNormal,
		},
	}

	// Sentiment label by reliability-weighted majority, confidence by
	// plain mean. Risk booleans OR; scalars from the newest record.
	labelWeight := make(map[int]float64)
	confidenceSum := 0.0
	for _, rec := range recs {
		if _, ok := wanted[rec.Raw.Source]; !ok {
			continue
		}
		out.RecordCount++
		labelWeight[rec.Sentiment.FinalLabel] += rec.Raw.SourceReliability
		confidenceSum += rec.Sentiment.FinalConfidence

		out.RiskIndicators.SocialOverheat = out.RiskIndicators.SocialOverheat || rec.Risk.SocialOverheat
		out.RiskIndicators.PanicRisk = out.RiskIndicators.PanicRisk || rec.Risk.PanicRisk
		out.RiskIndicators.FOMORisk = out.RiskIndicators.FOMORisk || rec.Risk.FOMORisk

		// Records arrive in ascending event-time order, so the last
		// matching one wins.
		out.RiskIndicators.FearGreedIndex = rec.Risk.FearGreedIndex
		out.RiskIndicators.FearGreedZone = rec.Risk.FearGreedZone
	}
	if out.RecordCount > 0 {
		out.Sentiment.Label = majorityLabel(labelWeight)
		out.Sentiment.Confidence = confidenceSum / float64(out.RecordCount)
	}

	quality, err := a.store.QueryQuality(ctx, req.Since, req.Until)
	if err != nil {
		return Aggregate{}, fmt.Errorf("aggregate quality query: %w", err)
	}
	for _, q := range quality {
		out.DataQuality.merge(q)
	}
	return out, nil
}

// majorityLabel picks the label with the highest reliability weight.
// An exact tie resolves to neutral.
func majorityLabel(weights map[int]float64) int {
	best, bestWeight := 0, -1.0
	tied := false
	for _, label := range []int{-1, 0, 1} {
		w, ok := weights[label]
		if !ok {
			continue
		}
		switch {
		case w > bestWeight:
			best, bestWeight, tied = label, w, false
		case w == bestWeight:
			tied = true
		}
	}
	if tied {
		return 0
	}
	return best
}

func (d *DataQuality) merge(q domain.QualityEvent) {
	d.Overall = worst(d.Overall, q.Overall, overallRank)
	d.Availability = worst(d.Availability, q.Availability, availabilityRank)
	d.TimeIntegrity = worst(d.TimeIntegrity, q.TimeIntegrity, integrityRank)
	d.Volume = worst(d.Volume, q.Volume, volumeRank)
	d.SourceBalance = worst(d.SourceBalance, q.SourceBalance, balanceRank)
	d.AnomalyFrequency = worst(d.AnomalyFrequency, q.AnomalyFrequency, anomalyRank)
}

func worst[T comparable](a, b T, rank func(T) int) T {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func overallRank(q domain.OverallQuality) int {
	switch q {
	case domain.QualityDegraded:
		return 1
	case domain.QualityCritical:
		return 2
	default:
		return 0
	}
}

func availabilityRank(a domain.Availability) int {
	switch a {
	case domain.AvailabilityDegraded:
		return 1
	case domain.AvailabilityDown:
		return 2
	default:
		return 0
	}
}

func integrityRank(t domain.TimeIntegrity) int {
	switch t {
	case domain.TimeIntegrityUnstable:
		return 1
	case domain.TimeIntegrityCritical:
		return 2
	default:
		return 0
	}
}

func volumeRank(v domain.VolumeStatus) int {
	if v == domain.VolumeNormal {
		return 0
	}
	return 1
}

func balanceRank(b domain.BalanceStatus) int {
	if b == domain.BalanceNormal {
		return 0
	}
	return 1
}

func anomalyRank(a domain.AnomalyStatus) int {
	if a == domain.AnomalyNormal {
		return 0
	}
	return 1
}
