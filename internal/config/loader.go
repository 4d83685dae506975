package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file over the hard defaults and then
// applies environment overrides. ${VAR} references in the file are expanded
// before parsing.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work at all. It does not try
// to second-guess tuning values.
func (c *Config) Validate() error {
	if c.Redis.HistoryLimit <= 0 {
		return fmt.Errorf("redis.history_limit must be positive")
	}
	if c.Orchestrator.MaxTurns <= 0 {
		return fmt.Errorf("orchestrator.max_turns must be positive")
	}
	if c.Truncator.Threshold <= 0 || c.Truncator.Threshold > 1 {
		return fmt.Errorf("truncator.threshold must be in (0, 1]")
	}
	if c.Truncator.MaxContextWindow <= 0 {
		return fmt.Errorf("truncator.max_context_window must be positive")
	}
	return nil
}
