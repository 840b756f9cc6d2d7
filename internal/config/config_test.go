package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulsefeed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Intervals.Twitter)
	assert.Equal(t, 300*time.Second, cfg.Intervals.Reddit)
	assert.Equal(t, "config/assets.yaml", cfg.Registry.AssetsPath)
	assert.Equal(t, "0 8 * * *", cfg.ReportSchedule)
}

func TestLoad_FileOverridesAndDefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
intervals:
  twitter: 15s
server:
  addr: "0.0.0.0:9090"
  read_timeout: 5s
  write_timeout: 5s
  idle_timeout: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Intervals.Twitter)
	assert.Equal(t, 20*time.Second, cfg.Intervals.Telegram, "unset field keeps its default")
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
}

func TestLoad_EnvBuildsDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PASSWORD", "hunter2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t,
		"host=db.internal port=5432 dbname=pulsefeed user=pulsefeed password=hunter2 sslmode=disable",
		cfg.Database.DSN)
}

func TestLoad_ExplicitDSNWins(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://u:p@h/db")
	t.Setenv("DB_HOST", "ignored")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/db", cfg.Database.DSN)
}

func TestLoad_TelegramTokenRequiresChatID(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	_, err := Load("")
	require.Error(t, err)

	t.Setenv("TELEGRAM_CHANNEL_ID", "-1001234")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234), cfg.Secrets.TelegramChatID)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"sub-second interval", "intervals:\n  dqm: 500ms\n"},
		{"idle exceeds open", "database:\n  max_open_conns: 2\n  max_idle_conns: 5\n"},
		{"malformed yaml", "intervals: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadChatID(t *testing.T) {
	t.Setenv("TELEGRAM_CHANNEL_ID", "not-a-number")
	_, err := Load("")
	assert.Error(t, err)
}
