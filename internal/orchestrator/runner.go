package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/palentir/taskflow/internal/events"
	"github.com/palentir/taskflow/internal/scheduler"
)

// ExecutionMode selects the concurrency discipline for a batch.
type ExecutionMode string

const (
	// ModeSequential runs one task at a time, rotating tasks whose
	// dependencies are not yet met to the back of the queue.
	ModeSequential ExecutionMode = "sequential"

	// ModeParallel launches every queued task at once with NO dependency
	// gating. Declared dependencies are silently ignored; use it only for
	// batches known to be independent.
	ModeParallel ExecutionMode = "parallel"

	// ModeForkJoin repeatedly executes the ready frontier as one concurrent
	// wave, joining on the whole wave before computing the next.
	ModeForkJoin ExecutionMode = "fork_join"
)

// requeueFactor bounds the sequential policy: a task is rotated to the back
// of the queue at most this many times per queued task before the policy
// gives up on the remainder. Liveness safeguard, not a correctness knob.
const requeueFactor = 10

// runner drives the three execution policies over one registry. All three
// share executeOne; they differ only in how many tasks they put in flight.
type runner struct {
	reg         *scheduler.Registry
	worker      Worker
	locks       *scheduler.TargetLockManager
	hooks       *Hooks
	bus         *events.EventBus
	breakers    *BreakerRegistry
	retry       RetryConfig
	taskTimeout time.Duration
	waveLimit   int
}

// runSequential pops the front of the queue one task at a time. A task whose
// dependencies are unmet is rotated to the back; total iterations are bounded
// so a never-satisfiable dependency cannot spin the loop forever. On hitting
// the bound the remaining queue is abandoned (still enumerable via Status)
// and whatever finished so far is returned.
func (r *runner) runSequential(ctx context.Context) []scheduler.TaskOutcome {
	var results []scheduler.TaskOutcome

	maxIterations := r.reg.QueueLen() * requeueFactor
	iteration := 0

	for iteration < maxIterations {
		if ctx.Err() != nil {
			log.Printf("WARNING: sequential execution stopped: %v", ctx.Err())
			break
		}
		iteration++

		rec, ok := r.reg.FrontIfReady()
		if !ok {
			break // Queue drained
		}
		if rec == nil {
			continue // Front not ready, rotated to the back
		}

		if outcome, recorded := r.executeOne(ctx, rec); recorded {
			results = append(results, outcome)
		}
	}

	if iteration >= maxIterations && r.reg.QueueLen() > 0 {
		log.Printf("WARNING: sequential execution stopped after %d iterations with %d tasks still queued", maxIterations, r.reg.QueueLen())
	}

	return results
}

// runParallel snapshots the whole queue and launches every task at once.
// Dependencies are deliberately not consulted. Failures are captured per
// task; one task failing never cancels its siblings.
func (r *runner) runParallel(ctx context.Context) []scheduler.TaskOutcome {
	snapshot := r.reg.QueuedRecords()
	if len(snapshot) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results []scheduler.TaskOutcome
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range snapshot {
		rec := rec
		g.Go(func() error {
			if outcome, recorded := r.executeOne(gctx, rec); recorded {
				mu.Lock()
				results = append(results, outcome)
				mu.Unlock()
			}
			return nil // Task failures live in the registry, not here
		})
	}
	_ = g.Wait()

	return results
}

// runForkJoin executes the batch as topological waves: compute the ready
// frontier, run it concurrently, join, repeat. Wave n+1 sees only the
// successes of waves <= n. An empty frontier over a non-empty queue means the
// remaining tasks depend on failed or cancelled work; the loop stops early
// rather than spinning, and the stuck tasks stay visible through Status.
func (r *runner) runForkJoin(ctx context.Context) []scheduler.TaskOutcome {
	var (
		mu      sync.Mutex
		results []scheduler.TaskOutcome
	)

	for r.reg.QueueLen() > 0 {
		if ctx.Err() != nil {
			log.Printf("WARNING: fork/join execution stopped: %v", ctx.Err())
			break
		}

		frontier := r.reg.Ready()
		if len(frontier) == 0 {
			log.Printf("WARNING: no ready tasks with %d still queued, stopping fork/join", r.reg.QueueLen())
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		if r.waveLimit > 0 {
			g.SetLimit(r.waveLimit)
		}
		for _, rec := range frontier {
			rec := rec
			g.Go(func() error {
				if outcome, recorded := r.executeOne(gctx, rec); recorded {
					mu.Lock()
					results = append(results, outcome)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait() // Join: the whole wave settles before the next frontier
	}

	return results
}

// executeOne is the common execution primitive: transition to running, fire
// start hooks, invoke the worker through the resilience wrapper and target
// locks, record the terminal state with elapsed time, fire the matching
// hooks. The task always leaves the executing bucket before this returns.
// The second return is false when no outcome was recorded, which happens
// when the task was cancelled before or during execution.
func (r *runner) executeOne(ctx context.Context, rec *scheduler.TaskRecord) (scheduler.TaskOutcome, bool) {
	spec := rec.Spec

	if err := r.reg.MarkRunning(spec.ID); err != nil {
		// Cancelled between frontier computation and launch.
		log.Printf("WARNING: skipping task %q: %v", spec.ID, err)
		return scheduler.TaskOutcome{}, false
	}

	r.hooks.fireStart(spec)
	r.publish(events.TopicTask, events.TaskStartedEvent{
		ID:        spec.ID,
		Title:     spec.Title,
		AgentType: spec.AgentType,
		Timestamp: time.Now().UTC(),
	})

	runCtx := ctx
	if r.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.taskTimeout)
		defer cancel()
	}

	r.locks.AcquireAll(spec.Targets)
	result, err := runWithRetry(runCtx, r.worker, spec, r.breakers.Get(spec.AgentType), r.retry)
	r.locks.ReleaseAll(spec.Targets)

	if err != nil {
		outcome, markErr := r.reg.MarkFailed(spec.ID, err)
		if markErr != nil {
			// Cancelled while in flight; the failure is discarded.
			log.Printf("WARNING: discarding failure of task %q: %v", spec.ID, markErr)
			return scheduler.TaskOutcome{}, false
		}
		r.hooks.fireFailed(outcome)
		r.publish(events.TopicTask, events.TaskFailedEvent{
			ID:            outcome.TaskID,
			Err:           outcome.Err,
			ExecutionTime: outcome.ExecutionTime,
			Timestamp:     outcome.Timestamp,
		})
		r.publishProgress()
		return outcome, true
	}

	outcome, markErr := r.reg.MarkCompleted(spec.ID, result)
	if markErr != nil {
		// Cancelled while in flight; the result is discarded.
		log.Printf("WARNING: discarding result of task %q: %v", spec.ID, markErr)
		return scheduler.TaskOutcome{}, false
	}
	r.hooks.fireComplete(outcome)
	r.publish(events.TopicTask, events.TaskCompletedEvent{
		ID:            outcome.TaskID,
		ExecutionTime: outcome.ExecutionTime,
		Timestamp:     outcome.Timestamp,
	})
	r.publishProgress()
	return outcome, true
}

func (r *runner) publish(topic string, event events.Event) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(topic, event)
}

func (r *runner) publishProgress() {
	if r.bus == nil {
		return
	}
	s := r.reg.Status()
	r.bus.Publish(events.TopicBatch, events.BatchProgressEvent{
		Queued:    s.Queued,
		Executing: s.Executing,
		Completed: s.Completed,
		Failed:    s.Failed,
		Total:     s.Total,
		Timestamp: time.Now().UTC(),
	})
}
