package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with pointer fields so a config file can
// override individual settings without clobbering the rest.
type fileConfig struct {
	DefaultMode     *string            `yaml:"default_mode"`
	WaveConcurrency *int               `yaml:"wave_concurrency"`
	TaskTimeout     *Duration          `yaml:"task_timeout"`
	Retry           *fileRetryConfig   `yaml:"retry"`
	Breaker         *fileBreakerConfig `yaml:"breaker"`
	HistoryPath     *string            `yaml:"history_path"`
}

type fileRetryConfig struct {
	InitialInterval     *Duration `yaml:"initial_interval"`
	MaxInterval         *Duration `yaml:"max_interval"`
	MaxElapsedTime      *Duration `yaml:"max_elapsed_time"`
	Multiplier          *float64  `yaml:"multiplier"`
	RandomizationFactor *float64  `yaml:"randomization_factor"`
}

type fileBreakerConfig struct {
	ConsecutiveFailures *uint32   `yaml:"consecutive_failures"`
	OpenTimeout         *Duration `yaml:"open_timeout"`
}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed YAML returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.taskflow/config.yaml
// Project: .taskflow/config.yaml (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".taskflow", "config.yaml")
	projectPath := filepath.Join(".taskflow", "config.yaml")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a YAML config file and overlays its set fields onto
// the base config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded fileConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.DefaultMode != nil {
		base.DefaultMode = *loaded.DefaultMode
	}
	if loaded.WaveConcurrency != nil {
		base.WaveConcurrency = *loaded.WaveConcurrency
	}
	if loaded.TaskTimeout != nil {
		base.TaskTimeout = *loaded.TaskTimeout
	}
	if loaded.HistoryPath != nil {
		base.HistoryPath = *loaded.HistoryPath
	}

	if loaded.Retry != nil {
		if loaded.Retry.InitialInterval != nil {
			base.Retry.InitialInterval = *loaded.Retry.InitialInterval
		}
		if loaded.Retry.MaxInterval != nil {
			base.Retry.MaxInterval = *loaded.Retry.MaxInterval
		}
		if loaded.Retry.MaxElapsedTime != nil {
			base.Retry.MaxElapsedTime = *loaded.Retry.MaxElapsedTime
		}
		if loaded.Retry.Multiplier != nil {
			base.Retry.Multiplier = *loaded.Retry.Multiplier
		}
		if loaded.Retry.RandomizationFactor != nil {
			base.Retry.RandomizationFactor = *loaded.Retry.RandomizationFactor
		}
	}

	if loaded.Breaker != nil {
		if loaded.Breaker.ConsecutiveFailures != nil {
			base.Breaker.ConsecutiveFailures = *loaded.Breaker.ConsecutiveFailures
		}
		if loaded.Breaker.OpenTimeout != nil {
			base.Breaker.OpenTimeout = *loaded.Breaker.OpenTimeout
		}
	}

	return nil
}
