package dqm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/guard"
)

type fakeGuardStats struct {
	stats map[domain.Source]guard.SourceStats
}

func (f *fakeGuardStats) Stats(src domain.Source) guard.SourceStats {
	return f.stats[src]
}

func observeAll(m *Monitor) {
	for _, src := range domain.Sources {
		m.Observe(domain.RawEvent{Source: src}, domain.RiskEvent{})
	}
}

func TestMonitor_HealthyWhenAllSourcesFresh(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	m := NewMonitor(nil, clk)
	observeAll(m)

	snap := m.Evaluate()
	assert.Equal(t, domain.QualityHealthy, snap.Event.Overall)
	assert.Equal(t, domain.AvailabilityOK, snap.Event.Availability)
	assert.Equal(t, 3, snap.WindowEvents)
}

func TestMonitor_TwitterSilenceDegradesThenCritical(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	m := NewMonitor(nil, clk)
	observeAll(m)

	// 65s of Twitter silence while Reddit and Telegram stay fresh.
	clk.Advance(65 * time.Second)
	m.Observe(domain.RawEvent{Source: domain.SourceReddit}, domain.RiskEvent{})
	m.Observe(domain.RawEvent{Source: domain.SourceTelegram}, domain.RiskEvent{})

	snap := m.Evaluate()
	assert.Equal(t, domain.AvailabilityDegraded, snap.PerSource[domain.SourceTwitter])
	assert.Equal(t, domain.AvailabilityDegraded, snap.Event.Availability)
	assert.Equal(t, domain.QualityDegraded, snap.Event.Overall)

	// 310s of silence crosses the down threshold.
	clk.Advance(245 * time.Second)
	m.Observe(domain.RawEvent{Source: domain.SourceReddit}, domain.RiskEvent{})
	m.Observe(domain.RawEvent{Source: domain.SourceTelegram}, domain.RiskEvent{})

	snap = m.Evaluate()
	assert.Equal(t, domain.AvailabilityDown, snap.PerSource[domain.SourceTwitter])
	assert.Equal(t, domain.QualityCritical, snap.Event.Overall)
}

func TestMonitor_TimeIntegrityFromGuardDeltas(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	gs := &fakeGuardStats{stats: map[domain.Source]guard.SourceStats{
		domain.SourceTwitter: {Total: 100, DroppedLate: 2},
	}}
	m := NewMonitor(gs, clk)
	observeAll(m)

	snap := m.Evaluate()
	assert.Equal(t, domain.TimeIntegrityOK, snap.Event.TimeIntegrity, "2% late")

	// Next interval: 10 more late out of 100 more total.
	gs.stats[domain.SourceTwitter] = guard.SourceStats{Total: 200, DroppedLate: 12}
	observeAll(m)
	snap = m.Evaluate()
	assert.Equal(t, domain.TimeIntegrityUnstable, snap.Event.TimeIntegrity, "10% late in the interval")

	// Then 40 late out of 100.
	gs.stats[domain.SourceTwitter] = guard.SourceStats{Total: 300, DroppedLate: 52}
	observeAll(m)
	snap = m.Evaluate()
	assert.Equal(t, domain.TimeIntegrityCritical, snap.Event.TimeIntegrity)
	assert.Equal(t, domain.QualityCritical, snap.Event.Overall)
}

func TestMonitor_VolumeAgainstScaledBaseline(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC))
	m := NewMonitor(nil, clk)

	// 55 events spread over the 55 minutes before the current window:
	// baseline = 55 * 5/55 = 5 per window.
	for i := 0; i < 55; i++ {
		m.Observe(domain.RawEvent{Source: domain.SourceTwitter}, domain.RiskEvent{})
		clk.Advance(time.Minute)
	}
	clk.Advance(5 * time.Minute)

	// 16 events in the current window: ratio 3.2.
	for i := 0; i < 16; i++ {
		m.Observe(domain.RawEvent{Source: domain.SourceTwitter}, domain.RiskEvent{})
	}
	snap := m.Evaluate()
	assert.Equal(t, domain.VolumeAbnormallyHigh, snap.Event.Volume)
}

func TestMonitor_VolumeLowAgainstBaseline(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC))
	m := NewMonitor(nil, clk)

	for i := 0; i < 55; i++ {
		m.Observe(domain.RawEvent{Source: domain.SourceTwitter}, domain.RiskEvent{})
		clk.Advance(time.Minute)
	}
	clk.Advance(5 * time.Minute)

	// One event in the current window: ratio 0.2 against a baseline of 5.
	m.Observe(domain.RawEvent{Source: domain.SourceTwitter}, domain.RiskEvent{})
	snap := m.Evaluate()
	assert.Equal(t, domain.VolumeAbnormallyLow, snap.Event.Volume)
}

func TestMonitor_SourceBalance(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	m := NewMonitor(nil, clk)

	// 8 of 10 events from one source is past the 70% line.
	for i := 0; i < 8; i++ {
		m.Observe(domain.RawEvent{Source: domain.SourceTwitter}, domain.RiskEvent{})
	}
	m.Observe(domain.RawEvent{Source: domain.SourceReddit}, domain.RiskEvent{})
	m.Observe(domain.RawEvent{Source: domain.SourceTelegram}, domain.RiskEvent{})

	snap := m.Evaluate()
	assert.Equal(t, domain.BalanceImbalanced, snap.Event.SourceBalance)
	assert.Equal(t, domain.QualityDegraded, snap.Event.Overall)
}

func TestMonitor_AnomalyFrequency(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	m := NewMonitor(nil, clk)

	m.Observe(domain.RawEvent{Source: domain.SourceTwitter}, domain.RiskEvent{PanicRisk: true})
	m.Observe(domain.RawEvent{Source: domain.SourceReddit}, domain.RiskEvent{})

	snap := m.Evaluate()
	assert.Equal(t, domain.AnomalyPersistent, snap.Event.AnomalyFrequency, "half the window is anomalous, threshold is inclusive")

	m.Observe(domain.RawEvent{Source: domain.SourceTelegram}, domain.RiskEvent{})
	snap = m.Evaluate()
	assert.Equal(t, domain.AnomalyNormal, snap.Event.AnomalyFrequency)
}

func TestMonitor_EmptyWindowIsNominal(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	m := NewMonitor(nil, clk)

	snap := m.Evaluate()
	assert.Equal(t, domain.VolumeNormal, snap.Event.Volume)
	assert.Equal(t, domain.BalanceNormal, snap.Event.SourceBalance)
	assert.Equal(t, domain.AnomalyNormal, snap.Event.AnomalyFrequency)
	assert.Zero(t, snap.WindowEvents)
}
