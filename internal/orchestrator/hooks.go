package orchestrator

import (
	"log"
	"sync"

	"github.com/palentir/taskflow/internal/scheduler"
)

// StartHook runs when a task transitions to running.
type StartHook func(spec scheduler.TaskSpec) error

// OutcomeHook runs when a task reaches a terminal state.
type OutcomeHook func(outcome scheduler.TaskOutcome) error

// Hooks holds the registered lifecycle callbacks. Each category fires
// synchronously, exactly once per transition, before the policy proceeds.
// A hook that returns an error or panics is logged and isolated; it can
// never abort scheduling.
type Hooks struct {
	mu         sync.RWMutex
	onStart    []StartHook
	onComplete []OutcomeHook
	onFailed   []OutcomeHook
}

// NewHooks creates an empty hook set.
func NewHooks() *Hooks {
	return &Hooks{}
}

// RegisterOnStart adds a callback fired when a task starts.
func (h *Hooks) RegisterOnStart(hook StartHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStart = append(h.onStart, hook)
}

// RegisterOnComplete adds a callback fired when a task completes.
func (h *Hooks) RegisterOnComplete(hook OutcomeHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onComplete = append(h.onComplete, hook)
}

// RegisterOnFailed adds a callback fired when a task fails.
func (h *Hooks) RegisterOnFailed(hook OutcomeHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFailed = append(h.onFailed, hook)
}

func (h *Hooks) fireStart(spec scheduler.TaskSpec) {
	h.mu.RLock()
	hooks := append([]StartHook(nil), h.onStart...)
	h.mu.RUnlock()

	for _, hook := range hooks {
		safeCall(spec.ID, "start", func() error { return hook(spec) })
	}
}

func (h *Hooks) fireComplete(outcome scheduler.TaskOutcome) {
	h.mu.RLock()
	hooks := append([]OutcomeHook(nil), h.onComplete...)
	h.mu.RUnlock()

	for _, hook := range hooks {
		safeCall(outcome.TaskID, "complete", func() error { return hook(outcome) })
	}
}

func (h *Hooks) fireFailed(outcome scheduler.TaskOutcome) {
	h.mu.RLock()
	hooks := append([]OutcomeHook(nil), h.onFailed...)
	h.mu.RUnlock()

	for _, hook := range hooks {
		safeCall(outcome.TaskID, "failed", func() error { return hook(outcome) })
	}
}

// safeCall invokes one hook, containing both errors and panics.
func safeCall(taskID, category string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("ERROR: %s callback for task %q panicked: %v", category, taskID, rec)
		}
	}()

	if err := fn(); err != nil {
		log.Printf("ERROR: %s callback for task %q failed: %v", category, taskID, err)
	}
}
