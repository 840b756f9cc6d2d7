package ingest

import (
	"sync"
	"time"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
)

// DedupTTL returns the per-source fingerprint retention window.
func DedupTTL(source domain.Source) time.Duration {
	switch source {
	case domain.SourceTwitter:
		return 5 * time.Minute
	case domain.SourceTelegram:
		return 10 * time.Minute
	case domain.SourceReddit:
		return 30 * time.Minute
	}
	return 5 * time.Minute
}

// DedupStore is a rolling fingerprint -> first-seen map with a TTL.
// Owned exclusively by one worker or by the guard.
type DedupStore struct {
	ttl time.Duration
	clk clock.Clock

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDedupStore builds a store with the given TTL.
func NewDedupStore(ttl time.Duration, clk clock.Clock) *DedupStore {
	return &DedupStore{ttl: ttl, clk: clk, seen: make(map[string]time.Time)}
}

// Seen records key and reports whether it was already present within
// the TTL. Expired entries are evicted opportunistically.
func (d *DedupStore) Seen(key string) bool {
	now := d.clk.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if first, ok := d.seen[key]; ok {
		if now.Sub(first) < d.ttl {
			return true
		}
	}
	d.seen[key] = now
	d.evictLocked(now)
	return false
}

// evictLocked drops expired entries. Called with the lock held; the
// map stays bounded by TTL x ingest rate.
func (d *DedupStore) evictLocked(now time.Time) {
	if len(d.seen) < 4096 {
		return
	}
	for k, first := range d.seen {
		if now.Sub(first) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Len reports the number of retained fingerprints.
func (d *DedupStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
