package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/palentir/taskflow/internal/config"
	"github.com/palentir/taskflow/internal/events"
	"github.com/palentir/taskflow/internal/history"
	"github.com/palentir/taskflow/internal/scheduler"
)

// Orchestrator is the caller-facing scheduler API: it generates a batch of
// tasks for a query, runs it under the requested execution mode, and exposes
// lifecycle state, cancellation, and callback registration. One orchestrator
// tracks tasks across submissions; completed and failed history accumulates
// until cancelled away or the process ends.
type Orchestrator struct {
	generator Generator
	worker    Worker
	cfg       *config.Config

	reg      *scheduler.Registry
	locks    *scheduler.TargetLockManager
	hooks    *Hooks
	breakers *BreakerRegistry
	bus      *events.EventBus
	history  history.Store

	run *runner
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithBus attaches an event bus that receives task lifecycle and batch
// progress events.
func WithBus(bus *events.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithHistory attaches an outcome archive. Terminal outcomes of every
// submission are recorded in it; archiving errors are logged, never raised.
func WithHistory(store history.Store) Option {
	return func(o *Orchestrator) { o.history = store }
}

// New creates an Orchestrator around the two collaborators. A nil cfg uses
// the built-in defaults.
func New(gen Generator, worker Worker, cfg *config.Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	o := &Orchestrator{
		generator: gen,
		worker:    worker,
		cfg:       cfg,
		reg:       scheduler.NewRegistry(),
		locks:     scheduler.NewTargetLockManager(),
		hooks:     NewHooks(),
		breakers:  NewBreakerRegistry(cfg.Breaker.ConsecutiveFailures, cfg.Breaker.OpenTimeout.Std()),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.run = &runner{
		reg:         o.reg,
		worker:      o.worker,
		locks:       o.locks,
		hooks:       o.hooks,
		bus:         o.bus,
		breakers:    o.breakers,
		retry:       retryConfigFrom(cfg.Retry),
		taskTimeout: cfg.TaskTimeout.Std(),
		waveLimit:   cfg.WaveConcurrency,
	}

	return o
}

// SubmitQuery generates tasks for the query, enqueues them, and runs them
// under the given mode. The returned slice holds one outcome per task that
// reached a terminal state during the call; tasks left queued behind failed
// dependencies are excluded but remain enumerable via GetStatus.
//
// Partial failure never surfaces as an error: per-task failures are reported
// inside the outcomes. The call itself only errors when generation fails or
// the generated batch is invalid (duplicate IDs, dependency cycle). An
// unknown mode is logged and yields an empty result.
func (o *Orchestrator) SubmitQuery(ctx context.Context, query string, graphContext map[string]any, mode ExecutionMode) ([]scheduler.TaskOutcome, error) {
	log.Printf("Processing query %q in %s mode", query, mode)

	specs, err := o.generator.GenerateTasks(ctx, query, graphContext)
	if err != nil {
		return nil, fmt.Errorf("task generation failed: %w", err)
	}
	if len(specs) == 0 {
		log.Printf("WARNING: no tasks generated for query %q", query)
		return nil, nil
	}

	records, err := scheduler.BuildBatch(specs)
	if err != nil {
		return nil, fmt.Errorf("invalid task batch: %w", err)
	}

	batchID := uuid.NewString()
	o.reg.Enqueue(records)
	log.Printf("Enqueued %d tasks for batch %s", len(records), batchID)

	var results []scheduler.TaskOutcome
	switch mode {
	case ModeSequential:
		results = o.run.runSequential(ctx)
	case ModeParallel:
		results = o.run.runParallel(ctx)
	case ModeForkJoin:
		results = o.run.runForkJoin(ctx)
	default:
		log.Printf("ERROR: unknown execution mode %q", mode)
		return nil, nil
	}

	o.archive(ctx, batchID, query, results)
	return results, nil
}

// archive records the batch and its terminal outcomes in the history store.
func (o *Orchestrator) archive(ctx context.Context, batchID, query string, outcomes []scheduler.TaskOutcome) {
	if o.history == nil {
		return
	}

	if err := o.history.SaveBatch(ctx, batchID, query); err != nil {
		log.Printf("WARNING: failed to archive batch %s: %v", batchID, err)
		return
	}
	for _, outcome := range outcomes {
		if err := o.history.SaveOutcome(ctx, batchID, outcome); err != nil {
			log.Printf("WARNING: failed to archive outcome of task %q: %v", outcome.TaskID, err)
		}
	}
}

// CancelTask removes a task from the queue, or from the executing
// bookkeeping if it is in flight (best effort: the worker call is not
// preempted). Returns false if the task is unknown or already terminal.
func (o *Orchestrator) CancelTask(id string) bool {
	ok := o.reg.CancelOne(id)
	if ok && o.bus != nil {
		o.bus.Publish(events.TopicTask, events.TaskCancelledEvent{ID: id, Timestamp: time.Now().UTC()})
	}
	return ok
}

// CancelAllTasks clears the queued and executing buckets. Completed and
// failed history is untouched.
func (o *Orchestrator) CancelAllTasks() {
	log.Printf("Cancelling all tasks")
	o.reg.CancelAll()
}

// GetStatus returns a snapshot of the lifecycle bucket counts.
func (o *Orchestrator) GetStatus() scheduler.StatusSnapshot {
	return o.reg.Status()
}

// GetSummary returns the snapshot plus the serialized bucket contents.
func (o *Orchestrator) GetSummary() scheduler.Summary {
	return o.reg.Summary()
}

// CompletedTasks returns the outcomes of all completed tasks.
func (o *Orchestrator) CompletedTasks() []scheduler.TaskOutcome {
	return o.reg.CompletedOutcomes()
}

// FailedTasks returns the outcomes of all failed tasks.
func (o *Orchestrator) FailedTasks() []scheduler.TaskOutcome {
	return o.reg.FailedOutcomes()
}

// RegisterOnStart adds a callback fired when a task starts.
func (o *Orchestrator) RegisterOnStart(hook StartHook) { o.hooks.RegisterOnStart(hook) }

// RegisterOnComplete adds a callback fired when a task completes.
func (o *Orchestrator) RegisterOnComplete(hook OutcomeHook) { o.hooks.RegisterOnComplete(hook) }

// RegisterOnFailed adds a callback fired when a task fails.
func (o *Orchestrator) RegisterOnFailed(hook OutcomeHook) { o.hooks.RegisterOnFailed(hook) }

// ParseMode converts a config or CLI string into an ExecutionMode.
func ParseMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ModeSequential, ModeParallel, ModeForkJoin:
		return ExecutionMode(s), nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}
