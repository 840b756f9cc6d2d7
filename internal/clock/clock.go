// Package clock provides the single time source injected into every
// component so tests can pin the wall clock.
package clock

import "time"

// Clock supplies wall-clock time. One instance is shared per scheduler
// instance; production code never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

// Wall is the production clock.
type Wall struct{}

func (Wall) Now() time.Time { return time.Now().UTC() }

// New returns the production wall clock.
func New() Clock { return Wall{} }

// Fixed is a settable clock for tests.
type Fixed struct {
	t time.Time
}

// NewFixed creates a fixed clock pinned at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{t: t.UTC()} }

func (f *Fixed) Now() time.Time { return f.t }

// Set pins the clock to t.
func (f *Fixed) Set(t time.Time) { f.t = t.UTC() }

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.t = f.t.Add(d) }
