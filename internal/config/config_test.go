package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8600", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.Equal(t, "/sw.js", cfg.Worker.ScriptURL)
	assert.Equal(t, "/", cfg.Worker.Scope)
	assert.Equal(t, time.Hour, cfg.Worker.UpdateCheckInterval)

	assert.Equal(t, "runtime.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Loading.MaxLoadTime)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("PORT", "9000")
	os.Setenv("VAPID_PUBLIC_KEY", "test-key")
	os.Setenv("MAX_LOAD_TIME_MS", "3s")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("VAPID_PUBLIC_KEY")
		os.Unsetenv("MAX_LOAD_TIME_MS")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "test-key", cfg.Push.VAPIDPublicKey)
	assert.Equal(t, 3*time.Second, cfg.Loading.MaxLoadTime)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()
	assert.NotNil(t, cfg)
	assert.NotEmpty(t, cfg.Server.Port)
}
