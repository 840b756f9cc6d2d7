// Package dqm implements the data-quality monitor. It observes every
// event the pipeline fully writes, keeps a bounded rolling window, and
// emits a quality event on demand (the scheduler asks every 60s). It
// never modifies events and never blocks the pipeline.
package dqm

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/guard"
	"github.com/coinpulse/pulsefeed/internal/metrics"
)

// DefaultWindow is the rolling observation window.
const DefaultWindow = 5 * time.Minute

// baselineSpan is how much history feeds the volume baseline.
const baselineSpan = time.Hour

// Availability thresholds per source, in seconds-since-last-event.
func availabilityThresholds(src domain.Source) (degraded, down time.Duration) {
	switch src {
	case domain.SourceTwitter:
		return 60 * time.Second, 300 * time.Second
	case domain.SourceTelegram:
		return 120 * time.Second, 600 * time.Second
	default:
		return 900 * time.Second, 3600 * time.Second
	}
}

// GuardStats exposes the guard's cumulative per-source counters.
type GuardStats interface {
	Stats(src domain.Source) guard.SourceStats
}

type observation struct {
	at        time.Time
	source    domain.Source
	anomalous bool
}

// Snapshot is one DQM evaluation: the emitted quality event plus the
// per-source availability the alerter needs for source alerts.
type Snapshot struct {
	Event        domain.QualityEvent
	PerSource    map[domain.Source]domain.Availability
	WindowEvents int
}

// Monitor tracks rolling health across the three sources.
type Monitor struct {
	clk    clock.Clock
	guard  GuardStats
	window time.Duration

	mu        sync.Mutex
	started   time.Time
	lastSeen  map[domain.Source]time.Time
	history   []observation
	lastGuard map[domain.Source]guard.SourceStats
}

// NewMonitor builds a monitor over the default 5-minute window. guards
// may be nil in tests that do not exercise time integrity.
func NewMonitor(g GuardStats, clk clock.Clock) *Monitor {
	return &Monitor{
		clk:       clk,
		guard:     g,
		window:    DefaultWindow,
		started:   clk.Now(),
		lastSeen:  make(map[domain.Source]time.Time),
		lastGuard: make(map[domain.Source]guard.SourceStats),
	}
}

// Observe records one fully written event. Called synchronously by the
// pipeline; keep it cheap.
func (m *Monitor) Observe(raw domain.RawEvent, risk domain.RiskEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	m.lastSeen[raw.Source] = now
	m.history = append(m.history, observation{
		at:        now,
		source:    raw.Source,
		anomalous: risk.SocialOverheat || risk.PanicRisk || raw.ManipulationFlag,
	})
	m.trimLocked(now)
}

func (m *Monitor) trimLocked(now time.Time) {
	cutoff := now.Add(-baselineSpan)
	start := 0
	for start < len(m.history) && m.history[start].at.Before(cutoff) {
		start++
	}
	m.history = m.history[start:]
}

// Evaluate computes the five dimensions and the overall status at the
// current clock reading.
func (m *Monitor) Evaluate() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	m.trimLocked(now)

	perSource := make(map[domain.Source]domain.Availability, len(domain.Sources))
	availability := domain.AvailabilityOK
	for _, src := range domain.Sources {
		a := m.availabilityLocked(src, now)
		perSource[src] = a
		if worseAvailability(a, availability) {
			availability = a
		}
	}

	integrity := m.timeIntegrityLocked()
	volume := m.volumeLocked(now)
	balance := m.balanceLocked(now)
	anomaly := m.anomalyLocked(now)

	overall := domain.QualityHealthy
	switch {
	case availability == domain.AvailabilityDown || integrity == domain.TimeIntegrityCritical:
		overall = domain.QualityCritical
	case availability != domain.AvailabilityOK || integrity != domain.TimeIntegrityOK ||
		volume != domain.VolumeNormal || balance != domain.BalanceNormal || anomaly != domain.AnomalyNormal:
		overall = domain.QualityDegraded
	}

	ev := domain.QualityEvent{
		ID:               uuid.New(),
		EventTime:        now,
		Overall:          overall,
		Availability:     availability,
		TimeIntegrity:    integrity,
		Volume:           volume,
		SourceBalance:    balance,
		AnomalyFrequency: anomaly,
	}
	m.export(ev)

	return Snapshot{Event: ev, PerSource: perSource, WindowEvents: m.countWindowLocked(now)}
}

func (m *Monitor) availabilityLocked(src domain.Source, now time.Time) domain.Availability {
	last, ok := m.lastSeen[src]
	if !ok {
		last = m.started
	}
	degraded, down := availabilityThresholds(src)
	since := now.Sub(last)
	switch {
	case since <= degraded:
		return domain.AvailabilityOK
	case since <= down:
		return domain.AvailabilityDegraded
	default:
		return domain.AvailabilityDown
	}
}

// timeIntegrityLocked rates the guard's late drops since the previous
// evaluation.
func (m *Monitor) timeIntegrityLocked() domain.TimeIntegrity {
	if m.guard == nil {
		return domain.TimeIntegrityOK
	}
	var late, total int64
	for _, src := range domain.Sources {
		cur := m.guard.Stats(src)
		prev := m.lastGuard[src]
		late += cur.DroppedLate - prev.DroppedLate
		total += cur.Total - prev.Total
		m.lastGuard[src] = cur
	}
	if total == 0 {
		return domain.TimeIntegrityOK
	}
	rate := float64(late) / float64(total)
	switch {
	case rate < 0.05:
		return domain.TimeIntegrityOK
	case rate <= 0.15:
		return domain.TimeIntegrityUnstable
	default:
		return domain.TimeIntegrityCritical
	}
}

func (m *Monitor) countWindowLocked(now time.Time) int {
	cutoff := now.Add(-m.window)
	n := 0
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].at.Before(cutoff) {
			break
		}
		n++
	}
	return n
}

// volumeLocked compares the current window count against the previous
// hour scaled to the window length. No history means no baseline and
// a normal verdict.
func (m *Monitor) volumeLocked(now time.Time) domain.VolumeStatus {
	current := m.countWindowLocked(now)
	prior := len(m.history) - current
	if prior == 0 {
		return domain.VolumeNormal
	}
	span := baselineSpan - m.window
	baseline := float64(prior) * float64(m.window) / float64(span)
	if baseline == 0 {
		return domain.VolumeNormal
	}
	ratio := float64(current) / baseline
	switch {
	case ratio < 0.3:
		return domain.VolumeAbnormallyLow
	case ratio > 3.0:
		return domain.VolumeAbnormallyHigh
	default:
		return domain.VolumeNormal
	}
}

func (m *Monitor) balanceLocked(now time.Time) domain.BalanceStatus {
	cutoff := now.Add(-m.window)
	counts := make(map[domain.Source]int)
	total := 0
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].at.Before(cutoff) {
			break
		}
		counts[m.history[i].source]++
		total++
	}
	if total == 0 {
		return domain.BalanceNormal
	}
	for _, n := range counts {
		if float64(n)/float64(total) > 0.7 {
			return domain.BalanceImbalanced
		}
	}
	return domain.BalanceNormal
}

func (m *Monitor) anomalyLocked(now time.Time) domain.AnomalyStatus {
	cutoff := now.Add(-m.window)
	total, anomalous := 0, 0
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].at.Before(cutoff) {
			break
		}
		total++
		if m.history[i].anomalous {
			anomalous++
		}
	}
	if total == 0 {
		return domain.AnomalyNormal
	}
	if float64(anomalous)/float64(total) >= 0.5 {
		return domain.AnomalyPersistent
	}
	return domain.AnomalyNormal
}

// export publishes the dimensions as numeric gauges: 0 nominal, 1
// degraded, 2 critical-tier.
func (m *Monitor) export(ev domain.QualityEvent) {
	metrics.QualityDimension.WithLabelValues("availability").Set(availabilityScore(ev.Availability))
	metrics.QualityDimension.WithLabelValues("time_integrity").Set(integrityScore(ev.TimeIntegrity))
	metrics.QualityDimension.WithLabelValues("volume").Set(boolScore(ev.Volume != domain.VolumeNormal))
	metrics.QualityDimension.WithLabelValues("source_balance").Set(boolScore(ev.SourceBalance != domain.BalanceNormal))
	metrics.QualityDimension.WithLabelValues("anomaly_frequency").Set(boolScore(ev.AnomalyFrequency != domain.AnomalyNormal))
	metrics.QualityDimension.WithLabelValues("overall").Set(overallScore(ev.Overall))
}

func worseAvailability(a, b domain.Availability) bool {
	return availabilityScore(a) > availabilityScore(b)
}

func availabilityScore(a domain.Availability) float64 {
	switch a {
	case domain.AvailabilityDegraded:
		return 1
	case domain.AvailabilityDown:
		return 2
	default:
		return 0
	}
}

func integrityScore(t domain.TimeIntegrity) float64 {
	switch t {
	case domain.TimeIntegrityUnstable:
		return 1
	case domain.TimeIntegrityCritical:
		return 2
	default:
		return 0
	}
}

func overallScore(q domain.OverallQuality) float64 {
	switch q {
	case domain.QualityDegraded:
		return 1
	case domain.QualityCritical:
		return 2
	default:
		return 0
	}
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
