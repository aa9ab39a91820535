package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StatusSnapshot is a point-in-time count of every lifecycle bucket.
// Snapshots taken while a policy is running are eventually consistent.
type StatusSnapshot struct {
	Queued    int `json:"queued_tasks"`
	Executing int `json:"executing_tasks"`
	Completed int `json:"completed_tasks"`
	Failed    int `json:"failed_tasks"`
	Total     int `json:"total_tasks"`
}

// TaskBrief is the serialized view of a non-terminal task.
type TaskBrief struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	State TaskState `json:"state"`
}

// Summary is the full serialized view of the registry's buckets.
type Summary struct {
	Status    StatusSnapshot `json:"status"`
	Completed []TaskOutcome  `json:"completed_tasks"`
	Failed    []TaskOutcome  `json:"failed_tasks"`
	Executing []TaskBrief    `json:"executing_tasks"`
	Queued    []TaskBrief    `json:"queued_tasks"`
}

// Registry owns the four lifecycle collections. Every task ID lives in
// exactly one of queued, executing, completed, or failed at any observable
// instant; cancelled records leave the partition entirely. All mutation goes
// through transition methods under one mutex, so concurrent wave workers can
// never corrupt the partition.
type Registry struct {
	mu        sync.Mutex
	queued    []*TaskRecord
	executing map[string]*TaskRecord
	completed map[string]*TaskRecord
	failed    map[string]*TaskRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executing: make(map[string]*TaskRecord),
		completed: make(map[string]*TaskRecord),
		failed:    make(map[string]*TaskRecord),
	}
}

// Enqueue appends records to the back of the queue. A record whose ID is
// already tracked (in any bucket) is skipped with a warning; batches are
// deduplicated at ingestion, so this only triggers across batches.
func (r *Registry) Enqueue(records []*TaskRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if r.containsLocked(rec.Spec.ID) {
			log.Printf("WARNING: task %q is already tracked, skipping enqueue", rec.Spec.ID)
			continue
		}
		r.queued = append(r.queued, rec)
	}
}

func (r *Registry) containsLocked(id string) bool {
	if _, ok := r.executing[id]; ok {
		return true
	}
	if _, ok := r.completed[id]; ok {
		return true
	}
	if _, ok := r.failed[id]; ok {
		return true
	}
	for _, rec := range r.queued {
		if rec.Spec.ID == id {
			return true
		}
	}
	return false
}

// QueueLen returns the number of queued tasks.
func (r *Registry) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queued)
}

// QueuedRecords returns clones of all queued records in queue order.
func (r *Registry) QueuedRecords() []*TaskRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*TaskRecord, 0, len(r.queued))
	for _, rec := range r.queued {
		out = append(out, cloneRecord(rec))
	}
	return out
}

// MarkRunning moves a queued task into the executing bucket. Returns an
// error if the task is no longer queued, which happens when it was cancelled
// between frontier computation and launch.
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, rec := range r.queued {
		if rec.Spec.ID != id {
			continue
		}
		r.queued = append(r.queued[:i], r.queued[i+1:]...)
		rec.State = TaskRunning
		rec.StartedAt = time.Now().UTC()
		r.executing[id] = rec
		return nil
	}
	return fmt.Errorf("task %q is not queued", id)
}

// MarkCompleted moves an executing task into the completed bucket and
// returns its outcome. Returns an error if the task is not executing, which
// happens when it was cancelled while in flight; the result is discarded.
func (r *Registry) MarkCompleted(id string, result map[string]any) (TaskOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.executing[id]
	if !ok {
		return TaskOutcome{}, fmt.Errorf("task %q is not executing", id)
	}

	delete(r.executing, id)
	rec.State = TaskCompleted
	rec.FinishedAt = time.Now().UTC()
	rec.Result = result
	r.completed[id] = rec
	return rec.Outcome(), nil
}

// MarkFailed moves an executing task into the failed bucket with the
// stringified cause and returns its outcome. Same cancellation caveat as
// MarkCompleted.
func (r *Registry) MarkFailed(id string, cause error) (TaskOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.executing[id]
	if !ok {
		return TaskOutcome{}, fmt.Errorf("task %q is not executing", id)
	}

	delete(r.executing, id)
	rec.State = TaskFailed
	rec.FinishedAt = time.Now().UTC()
	if cause != nil {
		rec.Err = cause.Error()
	}
	r.failed[id] = rec
	return rec.Outcome(), nil
}

// CancelOne removes a task from the queue, or from the executing bookkeeping
// if it is in flight. Cancelling an executing task does not stop the worker;
// the scheduler has no preemption primitive, so the in-flight call runs to
// completion and its result is discarded. Returns false if the task is in
// neither bucket (unknown or already terminal). Idempotent.
func (r *Registry) CancelOne(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, rec := range r.queued {
		if rec.Spec.ID != id {
			continue
		}
		r.queued = append(r.queued[:i], r.queued[i+1:]...)
		rec.State = TaskCancelled
		return true
	}

	if rec, ok := r.executing[id]; ok {
		delete(r.executing, id)
		rec.State = TaskCancelled
		return true
	}

	return false
}

// CancelAll clears the queued and executing buckets. Completed and failed
// tasks are untouched.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.queued {
		rec.State = TaskCancelled
	}
	r.queued = nil

	for id, rec := range r.executing {
		rec.State = TaskCancelled
		delete(r.executing, id)
	}
}

// Status returns a snapshot of the bucket counts.
func (r *Registry) Status() StatusSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Registry) statusLocked() StatusSnapshot {
	s := StatusSnapshot{
		Queued:    len(r.queued),
		Executing: len(r.executing),
		Completed: len(r.completed),
		Failed:    len(r.failed),
	}
	s.Total = s.Queued + s.Executing + s.Completed + s.Failed
	return s
}

// Summary returns the snapshot plus the serialized contents of each bucket.
func (r *Registry) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := Summary{
		Status:    r.statusLocked(),
		Completed: make([]TaskOutcome, 0, len(r.completed)),
		Failed:    make([]TaskOutcome, 0, len(r.failed)),
		Executing: make([]TaskBrief, 0, len(r.executing)),
		Queued:    make([]TaskBrief, 0, len(r.queued)),
	}

	for _, rec := range r.completed {
		sum.Completed = append(sum.Completed, rec.Outcome())
	}
	for _, rec := range r.failed {
		sum.Failed = append(sum.Failed, rec.Outcome())
	}
	for _, rec := range r.executing {
		sum.Executing = append(sum.Executing, TaskBrief{ID: rec.Spec.ID, Title: rec.Spec.Title, State: rec.State})
	}
	for _, rec := range r.queued {
		sum.Queued = append(sum.Queued, TaskBrief{ID: rec.Spec.ID, Title: rec.Spec.Title, State: rec.State})
	}

	return sum
}

// CompletedOutcomes returns the outcomes of all completed tasks.
func (r *Registry) CompletedOutcomes() []TaskOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TaskOutcome, 0, len(r.completed))
	for _, rec := range r.completed {
		out = append(out, rec.Outcome())
	}
	return out
}

// FailedOutcomes returns the outcomes of all failed tasks.
func (r *Registry) FailedOutcomes() []TaskOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TaskOutcome, 0, len(r.failed))
	for _, rec := range r.failed {
		out = append(out, rec.Outcome())
	}
	return out
}
