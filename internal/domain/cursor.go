package domain

import "time"

// Cursor is the persistent per-source position owned by the scheduler.
// Cursors are never silently reset; a failed cycle preserves them.
type Cursor struct {
	LastEventTime   time.Time `json:"last_event_time"`
	LastProcessedID string    `json:"last_processed_id"`
	LastRunTime     time.Time `json:"last_run_time"`
}

// InboundEvent is a worker-accepted event on its way to the time-sync
// guard. RawTimestamp is the upstream-declared timestamp exactly as
// received; the guard is the sole authority on its validity.
type InboundEvent struct {
	Event        RawEvent
	RawTimestamp string
}
