// Package config loads service configuration from an optional YAML file and
// the environment; environment variables override file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	// ListenAddr is the HTTP/WebSocket listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// PublicHost is the externally reachable host used when composing the
	// media-stream URL handed to the telephony provider, e.g.
	// "calls.example.com".
	PublicHost string `yaml:"public_host"`

	OpenAI   OpenAIConfig   `yaml:"openai"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	Database DatabaseConfig `yaml:"database"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Limits   LimitsConfig   `yaml:"limits"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// OpenAIConfig configures the AI engine connections.
type OpenAIConfig struct {
	APIKey           string `yaml:"api_key"`
	RealtimeModel    string `yaml:"realtime_model"`
	RealtimeEndpoint string `yaml:"realtime_endpoint"`
	EmbeddingModel   string `yaml:"embedding_model"`
}

// TwilioConfig configures the telephony provider's REST surface. Optional:
// without credentials, recording and spoken hangups are disabled.
type TwilioConfig struct {
	AccountSid string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
}

// DatabaseConfig configures Postgres. Optional: without a URL the service
// runs on in-memory stores.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LookupConfig tunes the customer-context lookup.
type LookupConfig struct {
	TimeoutMs int     `yaml:"timeout_ms"`
	MinScore  float64 `yaml:"min_score"`
}

// LimitsConfig tunes the per-business call-setup rate limiter.
type LimitsConfig struct {
	CallsPerSecond float64 `yaml:"calls_per_second"`
	Burst          int     `yaml:"burst"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "stdout" or "otlp"; ignored when tracing is disabled.
	Exporter     string `yaml:"exporter"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads configuration. A .env file is loaded if present, then the YAML
// file named by CONFIG_FILE (when set), then environment variables on top.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr: ":8080",
		OpenAI: OpenAIConfig{
			RealtimeModel:  "gpt-4o-realtime-preview",
			EmbeddingModel: "text-embedding-3-small",
		},
		Lookup:  LookupConfig{TimeoutMs: 2500, MinScore: 0.55},
		Limits:  LimitsConfig{CallsPerSecond: 2, Burst: 5},
		Tracing: TracingConfig{Exporter: "stdout"},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	if port := os.Getenv("PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	setString(&cfg.PublicHost, "PUBLIC_HOST")

	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.RealtimeModel, "OPENAI_REALTIME_MODEL")
	setString(&cfg.OpenAI.RealtimeEndpoint, "OPENAI_REALTIME_ENDPOINT")
	setString(&cfg.OpenAI.EmbeddingModel, "OPENAI_EMBEDDING_MODEL")

	setString(&cfg.Twilio.AccountSid, "TWILIO_ACCOUNT_SID")
	setString(&cfg.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")

	setString(&cfg.Database.URL, "DATABASE_URL")

	setInt(&cfg.Lookup.TimeoutMs, "CUSTOMER_LOOKUP_TIMEOUT_MS")
	setFloat(&cfg.Lookup.MinScore, "CUSTOMER_LOOKUP_MIN_SCORE")

	setFloat(&cfg.Limits.CallsPerSecond, "CALL_RATE_LIMIT")
	setInt(&cfg.Limits.Burst, "CALL_RATE_BURST")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Exporter, "TRACE_EXPORTER")
	setString(&cfg.Tracing.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Validate reports all missing required settings at once.
func (c *Config) Validate() error {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.PublicHost == "" {
		missing = append(missing, "PUBLIC_HOST")
	}
	if (c.Twilio.AccountSid == "") != (c.Twilio.AuthToken == "") {
		missing = append(missing, "TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LookupTimeout returns the lookup timeout as a duration.
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.Lookup.TimeoutMs) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
