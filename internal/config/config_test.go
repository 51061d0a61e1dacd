package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://matchapro.web.bps.go.id/dirgc", cfg.Target.URL)
	assert.Equal(t, 30, cfg.Browser.WebTimeoutSecs)
	assert.Equal(t, 300000, cfg.Browser.IdleTimeoutMs)
	assert.Equal(t, "safe", cfg.RateLimit.Profile)
	assert.Equal(t, 0.60, cfg.Matcher.Threshold)
	assert.Equal(t, 0.05, cfg.Matcher.Margin)
	assert.Equal(t, 2, cfg.Matcher.MinTokenLen)
	assert.Contains(t, cfg.Matcher.StopWords, "pt")
	assert.Equal(t, 50, cfg.RunLog.CheckpointEvery)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GROUNDCHECK_RATELIMIT_PROFILE", "ultra")
	t.Setenv("GROUNDCHECK_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ultra", cfg.RateLimit.Profile)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "console"})
	assert.NoError(t, err)
}
