package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "brokerpilot.db", cfg.Storage.SQLitePath)
	require.Len(t, cfg.Brokers, 1)
	assert.Equal(t, "simulator", cfg.Brokers[0].Kind)
	assert.Equal(t, 2*time.Second, cfg.Refresh.Throttle())
	assert.Equal(t, 10*time.Minute, cfg.Refresh.StaleAfter())
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
storage:
  sqlite_path: /var/lib/orders.db
auth:
  jwt_secret: file-secret
refresh:
  throttle_seconds: 5
  stale_after_minutes: 30
brokers:
  - id: tradier-live
    kind: tradier
    token: tok-abc
    token_expiry: "2025-06-17T00:00:00Z"
  - id: alpaca-live
    kind: alpaca
    api_key: k
    api_secret: s
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/var/lib/orders.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.Refresh.Throttle())
	assert.Equal(t, 30*time.Minute, cfg.Refresh.StaleAfter())
	assert.Equal(t, "debug", cfg.LogLevel)

	require.Len(t, cfg.Brokers, 2)
	assert.Equal(t, "tradier-live", cfg.Brokers[0].ID)
	assert.Equal(t, "tok-abc", cfg.Brokers[0].Token)
	assert.Equal(t, "alpaca", cfg.Brokers[1].Kind)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)

	t.Setenv("PORT", "7070")
	t.Setenv("SQLITE_PATH", "/tmp/override.db")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("REFRESH_THROTTLE_SECONDS", "9")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 9*time.Second, cfg.Refresh.Throttle())
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "unknown broker kind",
			content: `
brokers:
  - id: x
    kind: etrade
`,
			wantErr: "unknown kind",
		},
		{
			name: "missing broker id",
			content: `
brokers:
  - kind: simulator
`,
			wantErr: "require an id",
		},
		{
			name: "duplicate broker id",
			content: `
brokers:
  - id: sim
    kind: simulator
  - id: sim
    kind: simulator
`,
			wantErr: "duplicate broker id",
		},
		{
			name: "empty jwt secret",
			content: `
auth:
  jwt_secret: ""
`,
			wantErr: "jwt_secret",
		},
	}

	t.Setenv("JWT_SECRET", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "brokers: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}
