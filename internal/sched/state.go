package sched

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

// StateFile persists per-source cursors as a single JSON object keyed
// by source name. Writes are atomic (write temp, then rename); a
// corrupt file is treated as empty and logged, never silently reset.
type StateFile struct {
	path string

	mu      sync.Mutex
	cursors map[domain.Source]domain.Cursor
}

// OpenStateFile loads existing state from path, tolerating a missing
// or corrupt file.
func OpenStateFile(path string) *StateFile {
	s := &StateFile{path: path, cursors: make(map[domain.Source]domain.Cursor)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("state file unreadable, starting with empty cursors")
		return s
	}
	if err := json.Unmarshal(data, &s.cursors); err != nil {
		log.Error().Err(err).Str("path", path).Msg("state file corrupt, starting with empty cursors")
		s.cursors = make(map[domain.Source]domain.Cursor)
	}
	return s
}

// Cursor returns the stored cursor for src, zero if none.
func (s *StateFile) Cursor(src domain.Source) domain.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[src]
}

// SetCursor records a cursor update in memory. Flush persists it.
func (s *StateFile) SetCursor(src domain.Source, c domain.Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[src] = c
}

// Flush writes the full cursor map atomically.
func (s *StateFile) Flush() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.cursors, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
