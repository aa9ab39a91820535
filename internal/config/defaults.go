package config

import (
	"time"
)

// DefaultConfig returns the built-in configuration used when no config file
// overrides a setting.
func DefaultConfig() *Config {
	return &Config{
		DefaultMode:     "fork_join",
		WaveConcurrency: 4,
		TaskTimeout:     0, // No per-task bound unless the operator opts in
		Retry: RetryConfig{
			InitialInterval:     Duration(100 * time.Millisecond),
			MaxInterval:         Duration(10 * time.Second),
			MaxElapsedTime:      Duration(2 * time.Minute),
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         Duration(30 * time.Second),
		},
		HistoryPath: "",
	}
}
