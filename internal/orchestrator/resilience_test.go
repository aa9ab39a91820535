package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/palentir/taskflow/internal/scheduler"
)

// TestRunWithRetryTransientFailure verifies a flaky worker eventually
// succeeds within the backoff budget.
func TestRunWithRetryTransientFailure(t *testing.T) {
	attempts := 0
	worker := WorkerFunc(func(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient network error")
		}
		return map[string]any{"ok": true}, nil
	})

	cb := NewBreakerRegistry(1000, time.Second).Get("test")
	cfg := testRetryConfig()
	cfg.MaxElapsedTime = time.Second

	result, err := runWithRetry(context.Background(), worker, scheduler.TaskSpec{ID: "t1"}, cb, cfg)
	if err != nil {
		t.Fatalf("runWithRetry() error = %v after %d attempts", err, attempts)
	}
	if attempts != 3 {
		t.Errorf("worker called %d times, want 3", attempts)
	}
	if result["ok"] != true {
		t.Errorf("result = %v", result)
	}
}

// TestRunWithRetryExhaustsBudget verifies a persistently failing worker
// returns its error once the backoff budget runs out.
func TestRunWithRetryExhaustsBudget(t *testing.T) {
	worker := WorkerFunc(func(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error) {
		return nil, errors.New("permanent api error")
	})

	cb := NewBreakerRegistry(1000, time.Second).Get("test")

	_, err := runWithRetry(context.Background(), worker, scheduler.TaskSpec{ID: "t1"}, cb, testRetryConfig())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

// TestRunWithRetryContextCancellation verifies cancellation stops the retry
// loop promptly instead of waiting out the budget.
func TestRunWithRetryContextCancellation(t *testing.T) {
	worker := WorkerFunc(func(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error) {
		return nil, errors.New("keep retrying")
	})

	ctx, cancel := context.WithCancel(context.Background())

	cb := NewBreakerRegistry(1000, time.Second).Get("test")
	cfg := testRetryConfig()
	cfg.InitialInterval = 50 * time.Millisecond
	cfg.MaxElapsedTime = 10 * time.Second

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := runWithRetry(ctx, worker, scheduler.TaskSpec{ID: "t1"}, cb, cfg)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed > time.Second {
		t.Errorf("retry loop took %s to notice cancellation", elapsed)
	}
}

// TestBreakerOpensAfterConsecutiveFailures verifies the circuit trips at the
// threshold and rejects further calls without invoking the worker.
func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	worker := WorkerFunc(func(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error) {
		calls++
		return nil, errors.New("api key revoked")
	})

	reg := NewBreakerRegistry(3, time.Minute)
	cb := reg.Get("shodan")

	// No-retry config: each runWithRetry is one worker attempt
	cfg := testRetryConfig()
	cfg.MaxElapsedTime = time.Nanosecond

	for i := 0; i < 3; i++ {
		if _, err := runWithRetry(context.Background(), worker, scheduler.TaskSpec{ID: "t"}, cb, cfg); err == nil {
			t.Fatal("expected worker error")
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open after 3 consecutive failures", cb.State())
	}

	callsBefore := calls
	_, err := runWithRetry(context.Background(), worker, scheduler.TaskSpec{ID: "t"}, cb, cfg)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if calls != callsBefore {
		t.Errorf("worker was invoked while the circuit was open")
	}
}

// TestBreakerPerAgentType verifies breakers are isolated per agent type.
func TestBreakerPerAgentType(t *testing.T) {
	reg := NewBreakerRegistry(3, time.Minute)

	whois := reg.Get("whois")
	shodan := reg.Get("shodan")
	if whois == shodan {
		t.Fatal("distinct agent types should get distinct breakers")
	}
	if reg.Get("whois") != whois {
		t.Error("same agent type should reuse its breaker")
	}
}

// TestBreakerIgnoresCancellation verifies caller cancellation does not count
// toward tripping the circuit.
func TestBreakerIgnoresCancellation(t *testing.T) {
	reg := NewBreakerRegistry(2, time.Minute)
	cb := reg.Get("dns")

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, context.Canceled
		})
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed: cancellations are not failures", cb.State())
	}
}

// TestBreakerRegistryDefaults verifies zero values fall back to sane
// thresholds.
func TestBreakerRegistryDefaults(t *testing.T) {
	reg := NewBreakerRegistry(0, 0)
	if reg.threshold != 5 {
		t.Errorf("threshold = %d, want default 5", reg.threshold)
	}
	if reg.openTimeout != 30*time.Second {
		t.Errorf("openTimeout = %s, want default 30s", reg.openTimeout)
	}
}
