// Package config holds the runtime configuration for the orchestration core.
//
// Configuration is resolved in three layers: hard defaults, an optional YAML
// file, and environment variables. Environment variables always win, so a
// deployment can override a checked-in file without editing it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the resolved configuration for one process.
type Config struct {
	// Redis holds the connection and key lifetime settings for the message
	// cache and the stream fan-out.
	Redis RedisConfig `yaml:"redis"`

	// Providers holds upstream endpoints and timeouts.
	Providers ProviderConfig `yaml:"providers"`

	// ControlPlane is the internal persistence API.
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`

	// Orchestrator holds loop bounds and polling cadences.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Truncator configures prompt token budgeting.
	Truncator TruncatorConfig `yaml:"truncator"`

	// SurfaceTraceback includes Go stack traces in submitted tool-error
	// payloads when true. Keep off outside development.
	SurfaceTraceback bool `yaml:"surface_traceback"`

	// Log configures the structured logger.
	Log LogConfig `yaml:"log"`
}

// RedisConfig configures the shared Redis pool and key lifetimes.
type RedisConfig struct {
	// URL is the Redis endpoint, e.g. "redis://localhost:6379/0".
	URL string `yaml:"url"`

	// HistoryTTL bounds thread:{id}:history keys. Default 3600s.
	HistoryTTL time.Duration `yaml:"history_ttl"`

	// StreamTTL bounds stream:{run_id} keys. Default 3600s.
	StreamTTL time.Duration `yaml:"stream_ttl"`

	// HistoryLimit caps cached messages per thread. Default 200.
	HistoryLimit int `yaml:"history_limit"`

	// StreamMaxLen is the approximate MAXLEN for run streams. Default 1000.
	StreamMaxLen int64 `yaml:"stream_maxlen"`
}

// ProviderConfig configures upstream model providers.
type ProviderConfig struct {
	// HyperbolicBaseURL and TogetherBaseURL override the OpenAI-compatible
	// endpoints for those providers.
	HyperbolicBaseURL string `yaml:"hyperbolic_base_url"`
	TogetherBaseURL   string `yaml:"together_base_url"`

	// Timeout is the connect/read/total timeout for provider calls.
	// Default 30s.
	Timeout time.Duration `yaml:"timeout"`

	// ClientCacheSize bounds the memoized client cache. Default 32.
	ClientCacheSize int `yaml:"client_cache_size"`
}

// ControlPlaneConfig configures the internal persistence API client.
type ControlPlaneConfig struct {
	// BaseURL is the control-plane endpoint (ASSISTANTS_BASE_URL).
	BaseURL string `yaml:"base_url"`

	// AdminAPIKey authenticates the internal client (ADMIN_API_KEY).
	AdminAPIKey string `yaml:"admin_api_key"`
}

// OrchestratorConfig configures loop bounds and polling cadences.
type OrchestratorConfig struct {
	// MaxTurns bounds the stream → tool → stream recursion. Default 10.
	MaxTurns int `yaml:"max_turns"`

	// ConsumerPollInterval is the cadence of the consumer-tool completion
	// poll. Default 1s.
	ConsumerPollInterval time.Duration `yaml:"consumer_poll_interval"`

	// ConsumerMaxWait bounds consumer-tool polling. Default 60s.
	ConsumerMaxWait time.Duration `yaml:"consumer_max_wait"`

	// CancelPollInterval is the cadence of the cancellation monitor.
	// Default 1s.
	CancelPollInterval time.Duration `yaml:"cancel_poll_interval"`

	// TurnSettle is the pause between a platform-only tool turn and the
	// next provider call, giving the store time to settle. Default 500ms.
	TurnSettle time.Duration `yaml:"turn_settle"`

	// RunExpiry is how long a run may sit in a non-terminal state before
	// the expiry sweeper marks it expired. Default 1h.
	RunExpiry time.Duration `yaml:"run_expiry"`
}

// TruncatorConfig configures prompt token budgeting.
type TruncatorConfig struct {
	// Model is the tokenizer model id (TRUNCATOR_MODEL). When the encoding
	// cannot be loaded the truncator falls back to cl100k_base.
	Model string `yaml:"model"`

	// MaxContextWindow is the assumed context size in tokens. Default 8192.
	MaxContextWindow int `yaml:"max_context_window"`

	// Threshold is the usable fraction of the window. Default 0.8.
	Threshold float64 `yaml:"threshold"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level: "debug", "info", "warn", "error". Default "info".
	Level string `yaml:"level"`

	// Format: "json" or "text". Default "json".
	Format string `yaml:"format"`
}

// Default returns the hard defaults applied before any file or environment
// overrides.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			URL:          "redis://localhost:6379/0",
			HistoryTTL:   time.Hour,
			StreamTTL:    time.Hour,
			HistoryLimit: 200,
			StreamMaxLen: 1000,
		},
		Providers: ProviderConfig{
			HyperbolicBaseURL: "https://api.hyperbolic.xyz/v1",
			TogetherBaseURL:   "https://api.together.xyz/v1",
			Timeout:           30 * time.Second,
			ClientCacheSize:   32,
		},
		Orchestrator: OrchestratorConfig{
			MaxTurns:             10,
			ConsumerPollInterval: time.Second,
			ConsumerMaxWait:      60 * time.Second,
			CancelPollInterval:   time.Second,
			TurnSettle:           500 * time.Millisecond,
			RunExpiry:            time.Hour,
		},
		Truncator: TruncatorConfig{
			MaxContextWindow: 8192,
			Threshold:        0.8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// FromEnv resolves configuration from hard defaults plus the recognized
// environment variables.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := envSeconds("REDIS_HISTORY_TTL_SECONDS"); v > 0 {
		c.Redis.HistoryTTL = v
	}
	if v := envSeconds("REDIS_STREAM_TTL_SECONDS"); v > 0 {
		c.Redis.StreamTTL = v
	}
	if v := os.Getenv("ASSISTANTS_BASE_URL"); v != "" {
		c.ControlPlane.BaseURL = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		c.ControlPlane.AdminAPIKey = v
	}
	if v := os.Getenv("HYPERBOLIC_BASE_URL"); v != "" {
		c.Providers.HyperbolicBaseURL = v
	}
	if v := os.Getenv("TOGETHER_BASE_URL"); v != "" {
		c.Providers.TogetherBaseURL = v
	}
	if v := os.Getenv("TRUNCATOR_MODEL"); v != "" {
		c.Truncator.Model = v
	}
	if v := envSeconds("CONSUMER_POLL_INTERVAL"); v > 0 {
		c.Orchestrator.ConsumerPollInterval = v
	}
	if v := envSeconds("CONSUMER_MAX_WAIT"); v > 0 {
		c.Orchestrator.ConsumerMaxWait = v
	}
	if truthy(os.Getenv("SURFACE_TRACEBACK")) {
		c.SurfaceTraceback = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// envSeconds reads an environment variable holding a whole number of seconds.
func envSeconds(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
