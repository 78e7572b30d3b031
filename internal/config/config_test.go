package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func required() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost/circles",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(required()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Presence.GracePeriod)
	assert.Equal(t, 30, cfg.History.PageSize)
	assert.Equal(t, 100, cfg.History.MaxPageSize)
	assert.Equal(t, time.UTC, cfg.History.Location)
	assert.Equal(t, []string{"*"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, 5.0, cfg.WebSocket.MessageRate)
	assert.Equal(t, 10, cfg.WebSocket.MessageBurst)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.EventTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestOverrides(t *testing.T) {
	vars := required()
	vars["PORT"] = "9000"
	vars["PRESENCE_GRACE_PERIOD"] = "2s"
	vars["HISTORY_PAGE_SIZE"] = "20"
	vars["WS_ALLOWED_ORIGINS"] = "https://app.example.test, https://admin.example.test,"
	vars["WS_EVENT_TIMEOUT"] = "750ms"
	vars["LOG_LEVEL"] = "debug"
	vars["LOG_FORMAT"] = "TEXT"

	cfg, err := FromEnv(lookupFrom(vars))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Presence.GracePeriod)
	assert.Equal(t, 20, cfg.History.PageSize)
	assert.Equal(t, []string{"https://app.example.test", "https://admin.example.test"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.WebSocket.EventTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestInvalidValuesNameTheKey(t *testing.T) {
	vars := required()
	vars["PORT"] = "eighty"
	vars["PRESENCE_GRACE_PERIOD"] = "soon"
	vars["LOG_FORMAT"] = "xml"
	vars["WS_EVENT_TIMEOUT"] = "0s"
	delete(vars, "JWT_SECRET")

	_, err := FromEnv(lookupFrom(vars))
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid PORT")
	assert.ErrorContains(t, err, "invalid PRESENCE_GRACE_PERIOD")
	assert.ErrorContains(t, err, "invalid LOG_FORMAT")
	assert.ErrorContains(t, err, "invalid WS_EVENT_TIMEOUT")
	assert.ErrorContains(t, err, "JWT_SECRET is required")
}

func TestPageSizeBounds(t *testing.T) {
	vars := required()
	vars["HISTORY_PAGE_SIZE"] = "50"
	vars["HISTORY_MAX_PAGE_SIZE"] = "10"

	_, err := FromEnv(lookupFrom(vars))
	assert.ErrorContains(t, err, "invalid HISTORY_MAX_PAGE_SIZE")
}
