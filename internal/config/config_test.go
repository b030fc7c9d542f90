package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "focusift.db", cfg.DatabasePath)
	assert.Equal(t, "/tmp/focusift.sock", cfg.SocketPath)
	assert.Equal(t, "local", cfg.LocalUser)
	assert.Equal(t, 240, cfg.Timer.MaxMinutes)
	assert.Equal(t, 25, cfg.Timer.DefaultMinutes)
	assert.Equal(t, 3, cfg.Distraction.Threshold)
	assert.False(t, cfg.Distraction.TerminateOnHidden)
	assert.Equal(t, 1000, cfg.MaxUsers)
	assert.Equal(t, "bucket", cfg.Suggestion.Policy)
	assert.Equal(t, 10, cfg.Suggestion.ShortMinutes)
	assert.Equal(t, 30, cfg.Suggestion.LongMinutes)
	assert.Equal(t, "sqlite", cfg.Feedback.Backend)
	assert.Equal(t, "local", cfg.Persistence.Mode)
	assert.Equal(t, 5*time.Second, cfg.Persistence.Timeout())
	assert.Equal(t, "X-Forwarded-User", cfg.Identity.UserHeader)
	assert.Equal(t, 2*time.Second, cfg.CollectionInterval())
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
database_path: /var/lib/focusift/focusift.db
listen_addr: ":9000"
timer:
  max_minutes: 90
distraction:
  threshold: 5
  terminate_on_hidden: true
suggestion:
  policy: score
visibility:
  enabled: true
  focus_apps: [code, kitty]
persistence:
  mode: remote
  endpoint: https://focus.example.com
  timeout_seconds: 3
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/focusift/focusift.db", cfg.DatabasePath)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 90, cfg.Timer.MaxMinutes)
	assert.Equal(t, 5, cfg.Distraction.Threshold)
	assert.True(t, cfg.Distraction.TerminateOnHidden)
	assert.Equal(t, "score", cfg.Suggestion.Policy)
	assert.Equal(t, []string{"code", "kitty"}, cfg.Visibility.FocusApps)
	assert.Equal(t, "remote", cfg.Persistence.Mode)
	assert.Equal(t, 3*time.Second, cfg.Persistence.Timeout())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("FOCUSIFT_LOCAL_USER", "dana")
	t.Setenv("FOCUSIFT_SUGGESTION_POLICY", "random")
	t.Setenv("FOCUSIFT_TIMER_MAX_MINUTES", "60")

	cfg, err := LoadConfig(writeConfig(t, "local_user: someone-else\n"))
	require.NoError(t, err)
	assert.Equal(t, "dana", cfg.LocalUser)
	assert.Equal(t, "random", cfg.Suggestion.Policy)
	assert.Equal(t, 60, cfg.Timer.MaxMinutes)
}

func TestLoadConfigClampsBadValues(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
collection_interval_seconds: 0
timer:
  max_minutes: 0
  default_minutes: 500
distraction:
  threshold: -1
suggestion:
  policy: magic
  short_minutes: 40
  long_minutes: 20
feedback:
  backend: redis
persistence:
  mode: carrier-pigeon
`))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.CollectionIntervalSeconds)
	assert.Equal(t, 240, cfg.Timer.MaxMinutes)
	assert.Equal(t, 25, cfg.Timer.DefaultMinutes)
	assert.Equal(t, 3, cfg.Distraction.Threshold)
	assert.Equal(t, "bucket", cfg.Suggestion.Policy)
	assert.Equal(t, 10, cfg.Suggestion.ShortMinutes)
	assert.Equal(t, 30, cfg.Suggestion.LongMinutes)
	assert.Equal(t, "sqlite", cfg.Feedback.Backend)
	assert.Equal(t, "local", cfg.Persistence.Mode)
}

func TestLoadConfigRejects(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "persistence:\n  mode: remote\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(writeConfig(t, "feedback:\n  backend: file\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	} {
		assert.Equal(t, want, (&Config{LogLevel: in}).SlogLevel(), in)
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	example, err := LoadConfig(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	defaults, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.False(t, example.Distraction.TerminateOnHidden)
	assert.Equal(t, defaults.Distraction, example.Distraction)
	assert.Equal(t, defaults.Timer, example.Timer)
	assert.Equal(t, defaults.Suggestion, example.Suggestion)
	assert.Equal(t, defaults.Persistence, example.Persistence)
	assert.Equal(t, defaults.Identity, example.Identity)
	assert.Equal(t, defaults.ListenAddr, example.ListenAddr)
	assert.Equal(t, defaults.MaxUsers, example.MaxUsers)
}
