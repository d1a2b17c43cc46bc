package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PUBLIC_HOST", "calls.example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "gpt-4o-realtime-preview", cfg.OpenAI.RealtimeModel)
	assert.Equal(t, 2500*time.Millisecond, cfg.LookupTimeout())
	assert.InDelta(t, 0.55, cfg.Lookup.MinScore, 1e-9)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17")
	t.Setenv("CUSTOMER_LOOKUP_TIMEOUT_MS", "1000")
	t.Setenv("CALL_RATE_LIMIT", "5.5")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("TRACE_EXPORTER", "otlp")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "gpt-4o-realtime-preview-2024-12-17", cfg.OpenAI.RealtimeModel)
	assert.Equal(t, time.Second, cfg.LookupTimeout())
	assert.InDelta(t, 5.5, cfg.Limits.CallsPerSecond, 1e-9)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
}

func TestYAMLFileWithEnvPrecedence(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":7000"
lookup:
  timeout_ms: 1500
limits:
  calls_per_second: 3
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CUSTOMER_LOOKUP_TIMEOUT_MS", "2000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ListenAddr)
	// Environment wins over the file.
	assert.Equal(t, 2*time.Second, cfg.LookupTimeout())
	assert.InDelta(t, 3.0, cfg.Limits.CallsPerSecond, 1e-9)
}

func TestValidateReportsAllMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PUBLIC_HOST", "")

	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "PUBLIC_HOST")
}

func TestValidateTwilioCredentialsPaired(t *testing.T) {
	cfg := &Config{
		OpenAI:     OpenAIConfig{APIKey: "sk-test"},
		PublicHost: "calls.example.com",
		Twilio:     TwilioConfig{AccountSid: "AC123"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWILIO_ACCOUNT_SID")
}
