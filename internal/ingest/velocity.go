package ingest

import (
	"sync"
	"time"
)

// velocityKey identifies one mention stream.
type velocityKey struct {
	entry string
	asset string
}

// VelocityTracker keeps a bounded ring of recent event times per
// (entry, asset) and computes the short/long window mention ratio on
// event time. Owned exclusively by one worker.
type VelocityTracker struct {
	short   time.Duration
	long    time.Duration
	buckets int // long/short ratio used as the normalizer

	mu      sync.Mutex
	streams map[velocityKey][]time.Time
}

// NewVelocityTracker builds a tracker with the given short and long
// windows. buckets is the number of short windows that fit the long
// window in the source formula (60 for Twitter, 8 for Reddit, 6 for
// Telegram).
func NewVelocityTracker(short, long time.Duration, buckets int) *VelocityTracker {
	return &VelocityTracker{
		short:   short,
		long:    long,
		buckets: buckets,
		streams: make(map[velocityKey][]time.Time),
	}
}

// Observe records one mention at eventTime and returns the velocity:
// shortCount / (longCount / buckets). The current mention counts in
// both windows. A stream whose long window holds only the current
// mention has no baseline and reports a neutral 1.0.
func (v *VelocityTracker) Observe(entry, asset string, eventTime time.Time) float64 {
	key := velocityKey{entry: entry, asset: asset}

	v.mu.Lock()
	defer v.mu.Unlock()

	times := append(v.streams[key], eventTime)

	// Trim everything outside the long window, keeping the ring bounded.
	cutoff := eventTime.Add(-v.long)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	times = times[start:]
	v.streams[key] = times

	shortCutoff := eventTime.Add(-v.short)
	shortCount := 0
	for i := len(times) - 1; i >= 0; i-- {
		if !times[i].After(shortCutoff) {
			break
		}
		shortCount++
	}

	if len(times) <= 1 {
		return 1.0
	}
	longRate := float64(len(times)) / float64(v.buckets)
	return float64(shortCount) / longRate
}

// Snapshot returns the number of tracked streams; DQM reads this
// through the worker's metrics copy, never the map itself.
func (v *VelocityTracker) Snapshot() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.streams)
}
