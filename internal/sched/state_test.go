package sched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

func TestStateFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := OpenStateFile(path)
	cursor := domain.Cursor{
		LastEventTime:   time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		LastProcessedID: "tw-991",
		LastRunTime:     time.Date(2026, 8, 24, 12, 0, 10, 0, time.UTC),
	}
	s.SetCursor(domain.SourceTwitter, cursor)
	require.NoError(t, s.Flush())

	reloaded := OpenStateFile(path)
	assert.Equal(t, cursor, reloaded.Cursor(domain.SourceTwitter))
	assert.Zero(t, reloaded.Cursor(domain.SourceReddit), "unset sources read as empty cursors")
}

func TestStateFile_MissingFileIsEmpty(t *testing.T) {
	s := OpenStateFile(filepath.Join(t.TempDir(), "never-written.json"))
	assert.Zero(t, s.Cursor(domain.SourceTwitter))
}

func TestStateFile_CorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := OpenStateFile(path)
	assert.Zero(t, s.Cursor(domain.SourceTwitter), "corrupt state is empty, never invented")

	// And the file is recoverable by the next flush.
	s.SetCursor(domain.SourceReddit, domain.Cursor{LastProcessedID: "rd-5"})
	require.NoError(t, s.Flush())
	assert.Equal(t, "rd-5", OpenStateFile(path).Cursor(domain.SourceReddit).LastProcessedID)
}

func TestStateFile_FlushIsAtomicReplacement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := OpenStateFile(path)
	s.SetCursor(domain.SourceTelegram, domain.Cursor{LastProcessedID: "tg-1"})
	require.NoError(t, s.Flush())
	s.SetCursor(domain.SourceTelegram, domain.Cursor{LastProcessedID: "tg-2"})
	require.NoError(t, s.Flush())

	// No temp files left behind next to the state file.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "tg-2", OpenStateFile(path).Cursor(domain.SourceTelegram).LastProcessedID)
}
