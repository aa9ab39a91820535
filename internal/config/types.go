package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use "30s" / "2m" strings.
type Duration time.Duration

// UnmarshalYAML parses a duration string into the wrapper.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back to its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetryConfig tunes the exponential backoff around worker calls.
type RetryConfig struct {
	InitialInterval     Duration `yaml:"initial_interval"`
	MaxInterval         Duration `yaml:"max_interval"`
	MaxElapsedTime      Duration `yaml:"max_elapsed_time"`
	Multiplier          float64  `yaml:"multiplier"`
	RandomizationFactor float64  `yaml:"randomization_factor"`
}

// BreakerConfig tunes the per-agent-type circuit breaker.
type BreakerConfig struct {
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Failures before the circuit opens
	OpenTimeout         Duration `yaml:"open_timeout"`         // How long the circuit stays open
}

// Config is the top-level scheduler configuration.
type Config struct {
	DefaultMode     string        `yaml:"default_mode"`     // "sequential", "parallel", or "fork_join"
	WaveConcurrency int           `yaml:"wave_concurrency"` // Max concurrent tasks per fork/join wave (0 = unbounded)
	TaskTimeout     Duration      `yaml:"task_timeout"`     // Per-task worker timeout (0 disables, matching the original behavior)
	Retry           RetryConfig   `yaml:"retry"`
	Breaker         BreakerConfig `yaml:"breaker"`
	HistoryPath     string        `yaml:"history_path"` // SQLite outcome archive ("" disables)
}
