// Package ratelimit enforces the per-source-entry and global ingestion
// caps. The contract is the per-window cap; token buckets of
// equivalent capacity implement it.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coinpulse/pulsefeed/internal/clock"
)

// Caps defines the rolling-window caps for one source.
type Caps struct {
	PerEntry int           // max accepted items per entry per window
	Global   int           // max accepted items across all entries per window
	Window   time.Duration // rolling window length
}

// SourceLimiter tracks one source's entry-level and global budgets.
// Counters are advanced on the injected clock so guard tests stay
// reproducible.
type SourceLimiter struct {
	clk  clock.Clock
	caps Caps

	mu      sync.RWMutex
	global  *rate.Limiter
	entries map[string]*rate.Limiter
}

// NewSourceLimiter builds a limiter for the given caps.
func NewSourceLimiter(caps Caps, clk clock.Clock) *SourceLimiter {
	if caps.Window <= 0 {
		caps.Window = time.Minute
	}
	return &SourceLimiter{
		clk:     clk,
		caps:    caps,
		global:  newBucket(caps.Global, caps.Window),
		entries: make(map[string]*rate.Limiter),
	}
}

func newBucket(n int, window time.Duration) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(n)/window.Seconds()), n)
}

func (l *SourceLimiter) entryBucket(handle string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.entries[handle]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.entries[handle]; ok {
		return b
	}
	b = newBucket(l.caps.PerEntry, l.caps.Window)
	l.entries[handle] = b
	return b
}

// AllowGlobal consumes one token from the source-wide budget.
func (l *SourceLimiter) AllowGlobal() bool {
	return l.global.AllowN(l.clk.Now(), 1)
}

// AllowEntry consumes one token from handle's budget. An entry-level
// cap override of 0 falls back to the source default.
func (l *SourceLimiter) AllowEntry(handle string) bool {
	return l.entryBucket(handle).AllowN(l.clk.Now(), 1)
}

// AllowEntryCapped consumes one token from handle's budget, honoring a
// per-entry cap override when it is tighter than the source default.
// Where per-run and per-window caps conflict, the smaller applies.
func (l *SourceLimiter) AllowEntryCapped(handle string, capOverride int) bool {
	if capOverride > 0 && capOverride < l.caps.PerEntry {
		l.mu.Lock()
		if _, ok := l.entries[handle]; !ok {
			l.entries[handle] = newBucket(capOverride, l.caps.Window)
		}
		l.mu.Unlock()
	}
	return l.AllowEntry(handle)
}

// Reset clears every bucket; used between test scenarios.
func (l *SourceLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global = newBucket(l.caps.Global, l.caps.Window)
	l.entries = make(map[string]*rate.Limiter)
}
