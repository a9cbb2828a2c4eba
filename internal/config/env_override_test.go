package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLASSPANE_DEBUGGER_URL", "http://127.0.0.1:9333")
	t.Setenv("CLASSPANE_HEADLESS", "true")
	t.Setenv("CLASSPANE_LOG_LEVEL", "debug")
	t.Setenv("CLASSPANE_METRICS_ADDR", "127.0.0.1:9100")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "http://127.0.0.1:9333", cfg.Browser.DebuggerURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides_IgnoresMalformedBool(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLASSPANE_HEADLESS", "sometimes")

	cfg := DefaultConfig()
	cfg.Browser.Headless = true
	cfg.applyEnvOverrides()

	assert.True(t, cfg.Browser.Headless)
}

func TestEnvOverrides_AppliedOnLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLASSPANE_METRICS_ADDR", ":9200")

	dir := t.TempDir()
	path := DefaultPath(dir)
	require.NoError(t, DefaultConfig().Save(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
}
