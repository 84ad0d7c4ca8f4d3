// Package config loads orchestrator configuration from defaults, an optional
// config.yaml in the run directory, and BUCLE_* environment variables, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BUCLE_"

// Validation strategy constants.
const (
	StrategyStrict  = "strict"
	StrategyLenient = "lenient"
)

// Config carries every externally sourced knob the orchestrator core reads.
type Config struct {
	CommitPrefix             string   `koanf:"commit_prefix"`
	ValidationStrategy       string   `koanf:"validation_strategy"`
	ValidationCommands       []string `koanf:"validation_commands"`
	CompactionThresholdBytes int64    `koanf:"compaction_threshold_bytes"`
	CompactionInterval       int      `koanf:"compaction_interval"`
	ContextBudgetTokens      int      `koanf:"context_budget_tokens"`
	RetryExhaustionStatus    string   `koanf:"retry_exhaustion_status"`
	MaxIterations            int      `koanf:"max_iterations"`
	LogLevel                 string   `koanf:"log_level"`
	LogFile                  string   `koanf:"log_file"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		CommitPrefix:             "bucle:",
		ValidationStrategy:       StrategyStrict,
		CompactionThresholdBytes: 256 * 1024,
		CompactionInterval:       5,
		ContextBudgetTokens:      32000,
		RetryExhaustionStatus:    "failed",
		MaxIterations:            50,
		LogLevel:                 "info",
	}
}

// Load reads configuration for the given run directory. A missing config.yaml
// is not an error; environment variables always apply.
func Load(runDir string) (*Config, error) {
	k := koanf.New(".")

	cfg := Defaults()
	configPath := filepath.Join(runDir, "config.yaml")
	if content, err := os.ReadFile(configPath); err == nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// BUCLE_COMPACTION_INTERVAL -> compaction_interval
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	switch c.ValidationStrategy {
	case StrategyStrict, StrategyLenient:
	default:
		return fmt.Errorf("invalid validation_strategy %q (want strict or lenient)", c.ValidationStrategy)
	}
	switch c.RetryExhaustionStatus {
	case "failed", "skipped":
	default:
		return fmt.Errorf("invalid retry_exhaustion_status %q (want failed or skipped)", c.RetryExhaustionStatus)
	}
	if c.CompactionThresholdBytes <= 0 {
		return fmt.Errorf("compaction_threshold_bytes must be positive, got %d", c.CompactionThresholdBytes)
	}
	if c.CompactionInterval <= 0 {
		return fmt.Errorf("compaction_interval must be positive, got %d", c.CompactionInterval)
	}
	if c.ContextBudgetTokens <= 0 {
		return fmt.Errorf("context_budget_tokens must be positive, got %d", c.ContextBudgetTokens)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}
