package ingest

import (
	"sync"
	"time"

	"github.com/coinpulse/pulsefeed/internal/clock"
)

// manipulationWindow is how long a normalized fingerprint stays
// relevant for cross-chat correlation.
const manipulationWindow = 5 * time.Minute

// manipulationChats is the minimum number of distinct chats carrying
// the same normalized fingerprint before the flag trips.
const manipulationChats = 3

type sighting struct {
	chat string
	at   time.Time
}

// ManipulationDetector correlates normalized message fingerprints
// across Telegram chats inside a rolling window. Owned exclusively by
// the Telegram worker.
type ManipulationDetector struct {
	clk clock.Clock

	mu        sync.Mutex
	sightings map[string][]sighting
}

// NewManipulationDetector builds an empty detector.
func NewManipulationDetector(clk clock.Clock) *ManipulationDetector {
	return &ManipulationDetector{clk: clk, sightings: make(map[string][]sighting)}
}

// Observe records fingerprint seen in chat and reports whether the
// fingerprint has now appeared in at least manipulationChats distinct
// chats within the window.
func (m *ManipulationDetector) Observe(fingerprint, chat string) bool {
	now := m.clk.Now()
	cutoff := now.Add(-manipulationWindow)

	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.sightings[fingerprint][:0]
	for _, s := range m.sightings[fingerprint] {
		if s.at.After(cutoff) {
			live = append(live, s)
		}
	}
	live = append(live, sighting{chat: chat, at: now})
	m.sightings[fingerprint] = live

	chats := make(map[string]struct{}, len(live))
	for _, s := range live {
		chats[s.chat] = struct{}{}
	}
	return len(chats) >= manipulationChats
}
