package enrich

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/metrics"
	"github.com/coinpulse/pulsefeed/internal/store"
)

// FearGreedProvider supplies the optional market-wide fear/greed
// index. Nil means the value is currently unknown.
type FearGreedProvider interface {
	Current() *int
}

// Observer sees every fully written event. The DQM and the alerter
// both sit behind this; observation never blocks or fails the
// pipeline.
type Observer interface {
	Observe(raw domain.RawEvent, risk domain.RiskEvent)
}

// Pipeline runs raw insert, sentiment and risk for one event at a
// time. It implements the worker sink contract downstream of the
// guard.
type Pipeline struct {
	store     store.EventStore
	llm       Classifier
	fearGreed FearGreedProvider
	observers []Observer
}

// NewPipeline wires the enrichment stages. llm and fearGreed may be
// nil; observers may be empty.
func NewPipeline(st store.EventStore, llm Classifier, fearGreed FearGreedProvider, observers ...Observer) *Pipeline {
	if llm == nil {
		llm = NoopClassifier{}
	}
	return &Pipeline{store: st, llm: llm, fearGreed: fearGreed, observers: observers}
}

// Process enriches and persists one guard-accepted event. A dropped
// event writes nothing and is not an error to the caller; failures are
// counted per stage.
func (p *Pipeline) Process(ctx context.Context, ev domain.InboundEvent) error {
	raw := ev.Event

	sent := p.sentiment(ctx, raw)

	var index *int
	if p.fearGreed != nil {
		index = p.fearGreed.Current()
	}
	risk := DeriveRisk(raw, sent, index)
	risk.ID = uuid.New()

	err := p.store.InsertEnriched(ctx, raw, sent, risk)
	if errors.Is(err, store.ErrDuplicateFingerprint) {
		// Re-ingest of known content. Silent by contract.
		return nil
	}
	if err != nil {
		metrics.StageErrors.WithLabelValues("store").Inc()
		log.Error().Err(err).Str("asset", raw.Asset).Msg("enriched write failed, event dropped")
		return nil
	}

	metrics.EventsStored.WithLabelValues("raw").Inc()
	metrics.EventsStored.WithLabelValues("sentiment").Inc()
	metrics.EventsStored.WithLabelValues("risk").Inc()

	for _, o := range p.observers {
		o.Observe(raw, risk)
	}
	return nil
}

// sentiment runs the rule scorer and, on zero lexicon matches, the
// optional LLM fallback. A rule match always wins over the LLM.
func (p *Pipeline) sentiment(ctx context.Context, raw domain.RawEvent) domain.SentimentEvent {
	counts, rawScore, normalized, label := ScoreText(raw.Text)

	sent := domain.SentimentEvent{
		ID:              uuid.New(),
		RawEventID:      raw.ID,
		EventTime:       raw.EventTime,
		Counts:          counts,
		RawScore:        rawScore,
		NormalizedScore: normalized,
		RuleLabel:       label,
		FinalLabel:      label,
		FinalConfidence: math.Abs(normalized),
	}
	if counts.Total() > 0 {
		return sent
	}

	cls, err := p.llm.Classify(ctx, raw.Text)
	if err != nil {
		metrics.StageErrors.WithLabelValues("llm").Inc()
		log.Warn().Err(err).Msg("llm fallback failed, keeping neutral label")
		return sent
	}
	if cls == nil {
		return sent
	}
	sent.LLMUsed = true
	sent.LLMLabel = &cls.Label
	sent.LLMConfidence = &cls.Confidence
	sent.FinalLabel = cls.Label
	sent.FinalConfidence = cls.Confidence
	return sent
}
