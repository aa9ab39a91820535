package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/palentir/taskflow/internal/config"
	"github.com/palentir/taskflow/internal/scheduler"
)

// RetryConfig configures exponential backoff retry behavior for worker calls.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func retryConfigFrom(cfg config.RetryConfig) RetryConfig {
	return RetryConfig{
		InitialInterval:     cfg.InitialInterval.Std(),
		MaxInterval:         cfg.MaxInterval.Std(),
		MaxElapsedTime:      cfg.MaxElapsedTime.Std(),
		Multiplier:          cfg.Multiplier,
		RandomizationFactor: cfg.RandomizationFactor,
	}
}

// BreakerRegistry manages per-agent-type circuit breakers. A misbehaving
// OSINT source (dead API, revoked key) trips the breaker for that agent type
// only; the rest of the batch keeps running.
type BreakerRegistry struct {
	mu          sync.Mutex
	breakers    map[string]*gobreaker.CircuitBreaker
	threshold   uint32
	openTimeout time.Duration
}

// NewBreakerRegistry creates a new circuit breaker registry. threshold is the
// number of consecutive failures before the circuit opens; openTimeout is how
// long it stays open before testing recovery.
func NewBreakerRegistry(threshold uint32, openTimeout time.Duration) *BreakerRegistry {
	if threshold == 0 {
		threshold = 5
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &BreakerRegistry{
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
		threshold:   threshold,
		openTimeout: openTimeout,
	}
}

// Get returns the circuit breaker for the given agent type, creating it on
// first access.
func (r *BreakerRegistry) Get(agentType string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentType]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentType,
		MaxRequests: 3, // Allow 3 test requests in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Don't count caller cancellation as a worker failure
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[agentType] = cb
	return cb
}

// runWithRetry invokes the worker with exponential backoff retry and circuit
// breaker protection. Cancellation and an open circuit are permanent; every
// other worker error is retried until the backoff budget is exhausted.
func runWithRetry(ctx context.Context, w Worker, spec scheduler.TaskSpec, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) (map[string]any, error) {
	var result map[string]any

	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		out, err := cb.Execute(func() (interface{}, error) {
			return w.RunTask(ctx, spec)
		})

		if err != nil {
			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}

			// Context cancelled - stop retrying
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}

			return err
		}

		if out != nil {
			result = out.(map[string]any)
		}
		return nil
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = retryCfg.InitialInterval
	backoffPolicy.MaxInterval = retryCfg.MaxInterval
	backoffPolicy.MaxElapsedTime = retryCfg.MaxElapsedTime
	backoffPolicy.Multiplier = retryCfg.Multiplier
	backoffPolicy.RandomizationFactor = retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(backoffPolicy, ctx))
	return result, err
}
