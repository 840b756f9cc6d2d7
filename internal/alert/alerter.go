// Package alert evaluates risk and quality triggers, collapses
// repeats per dedup key inside the rate-limit window, and delivers
// plain-text advisory notifications. Alerts never carry trading
// instructions.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/dqm"
	"github.com/coinpulse/pulsefeed/internal/metrics"
)

// Kind enumerates the eight alert kinds.
type Kind string

const (
	KindSocialOverheat  Kind = "SOCIAL_OVERHEAT"
	KindPanicRisk       Kind = "PANIC_RISK"
	KindFOMORisk        Kind = "FOMO_RISK"
	KindExtremeEmotion  Kind = "EXTREME_MARKET_EMOTION"
	KindQualityDegraded Kind = "DATA_QUALITY_DEGRADED"
	KindQualityCritical Kind = "DATA_QUALITY_CRITICAL"
	KindSourceDelay     Kind = "SOURCE_DELAY"
	KindSourceDown      Kind = "SOURCE_DOWN"
)

// Outcome of one dispatch.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// Transport delivers one plain-text message synchronously.
type Transport interface {
	Send(ctx context.Context, text string) error
}

// Trigger is one alert-worthy observation.
type Trigger struct {
	Kind    Kind
	Asset   string
	Source  domain.Source // set only for source alerts
	Details string
}

// dedupKey is deliberately independent of time so repeated triggers
// inside the window collapse. Source is part of the key only for
// source alerts.
func (t Trigger) dedupKey() string {
	return string(t.Kind) + "|" + t.Asset + "|" + string(t.Source)
}

// DefaultRateWindow is the per-key suppression window.
const DefaultRateWindow = 600 * time.Second

// Alerter owns the dedup bookkeeping and the delivery retries. Risk
// triggers arrive through Observe on the pipeline's observer hook and
// are dispatched by Run; quality triggers come from the scheduler's
// DQM loop.
type Alerter struct {
	transport   Transport
	clk         clock.Clock
	rateWindow  time.Duration
	retryDelays []time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time

	queue chan Trigger
}

// NewAlerter wires an alerter with the default 600s window and
// 1s/2s/4s retry backoff.
func NewAlerter(transport Transport, clk clock.Clock) *Alerter {
	return &Alerter{
		transport:   transport,
		clk:         clk,
		rateWindow:  DefaultRateWindow,
		retryDelays: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		lastSent:    make(map[string]time.Time),
		queue:       make(chan Trigger, 256),
	}
}

// Observe implements the pipeline observer hook. It evaluates the
// risk triggers and enqueues them without blocking the pipeline; a
// full queue drops the trigger (the next matching event re-raises it).
func (a *Alerter) Observe(raw domain.RawEvent, risk domain.RiskEvent) {
	if risk.SocialOverheat {
		a.enqueue(Trigger{Kind: KindSocialOverheat, Asset: raw.Asset,
			Details: fmt.Sprintf("velocity: %.1f, coordinated posting detected", raw.Velocity)})
	}
	if risk.PanicRisk {
		a.enqueue(Trigger{Kind: KindPanicRisk, Asset: raw.Asset,
			Details: fmt.Sprintf("negative sentiment at velocity %.1f", raw.Velocity)})
	}
	if risk.FOMORisk {
		a.enqueue(Trigger{Kind: KindFOMORisk, Asset: raw.Asset,
			Details: fmt.Sprintf("positive sentiment with fear/greed index %d", deref(risk.FearGreedIndex))})
	}
	if risk.FearGreedZone == domain.ZoneExtremeFear || risk.FearGreedZone == domain.ZoneExtremeGreed {
		a.enqueue(Trigger{Kind: KindExtremeEmotion, Asset: raw.Asset,
			Details: fmt.Sprintf("market emotion zone: %s", risk.FearGreedZone)})
	}
}

// EvaluateQuality turns one DQM snapshot into quality and source
// triggers and dispatches them inline (the DQM loop is already
// asynchronous to the pipeline).
func (a *Alerter) EvaluateQuality(ctx context.Context, snap dqm.Snapshot) {
	switch snap.Event.Overall {
	case domain.QualityCritical:
		a.Dispatch(ctx, Trigger{Kind: KindQualityCritical,
			Details: qualityDetails(snap.Event)})
	case domain.QualityDegraded:
		a.Dispatch(ctx, Trigger{Kind: KindQualityDegraded,
			Details: qualityDetails(snap.Event)})
	}
	for src, avail := range snap.PerSource {
		switch avail {
		case domain.AvailabilityDegraded:
			a.Dispatch(ctx, Trigger{Kind: KindSourceDelay, Source: src,
				Details: fmt.Sprintf("source %s delayed", src)})
		case domain.AvailabilityDown:
			a.Dispatch(ctx, Trigger{Kind: KindSourceDown, Source: src,
				Details: fmt.Sprintf("source %s not delivering", src)})
		}
	}
}

func qualityDetails(ev domain.QualityEvent) string {
	return fmt.Sprintf("availability: %s, time_integrity: %s, volume: %s, balance: %s, anomaly: %s",
		ev.Availability, ev.TimeIntegrity, ev.Volume, ev.SourceBalance, ev.AnomalyFrequency)
}

func (a *Alerter) enqueue(t Trigger) {
	select {
	case a.queue <- t:
	default:
		log.Warn().Str("kind", string(t.Kind)).Msg("alert queue full, trigger dropped")
	}
}

// Run dispatches queued risk triggers until ctx is done.
func (a *Alerter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-a.queue:
			a.Dispatch(ctx, t)
		}
	}
}

// Dispatch applies the rate limit and delivers. Bookkeeping advances
// only on successful send, so a failed send never suppresses the next
// attempt.
func (a *Alerter) Dispatch(ctx context.Context, t Trigger) Outcome {
	key := t.dedupKey()
	now := a.clk.Now()

	a.mu.Lock()
	last, seen := a.lastSent[key]
	a.mu.Unlock()
	if seen && now.Sub(last) < a.rateWindow {
		metrics.AlertsSent.WithLabelValues(string(t.Kind), string(OutcomeSuppressed)).Inc()
		return OutcomeSuppressed
	}

	text, err := Format(t, now)
	if err != nil {
		metrics.AlertsSent.WithLabelValues(string(t.Kind), string(OutcomeFailed)).Inc()
		log.Error().Err(err).Str("kind", string(t.Kind)).Msg("alert formatting refused")
		return OutcomeFailed
	}

	if err := a.sendWithRetry(ctx, text); err != nil {
		metrics.AlertsSent.WithLabelValues(string(t.Kind), string(OutcomeFailed)).Inc()
		log.Error().Err(err).Str("kind", string(t.Kind)).Msg("alert delivery failed")
		return OutcomeFailed
	}

	a.mu.Lock()
	a.lastSent[key] = now
	a.mu.Unlock()
	metrics.AlertsSent.WithLabelValues(string(t.Kind), string(OutcomeSent)).Inc()
	return OutcomeSent
}

func (a *Alerter) sendWithRetry(ctx context.Context, text string) error {
	var err error
	for attempt := 0; attempt <= len(a.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.retryDelays[attempt-1]):
			}
		}
		if err = a.transport.Send(ctx, text); err == nil {
			return nil
		}
	}
	return err
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
