package scheduler

import (
	"encoding/json"
	"time"
)

// TaskState represents the current lifecycle state of a task record.
type TaskState int

const (
	TaskPending   TaskState = iota // Waiting in the queue
	TaskRunning                    // Handed to the worker
	TaskCompleted                  // Worker returned successfully
	TaskFailed                     // Worker returned an error
	TaskCancelled                  // Removed before reaching a terminal state
)

// String returns the wire-friendly name of the state.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	}
	return "unknown"
}

// MarshalJSON serializes the state by name.
func (s TaskState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseState maps a wire-friendly state name back to its TaskState.
// Unknown names map to TaskPending.
func ParseState(s string) TaskState {
	switch s {
	case "running":
		return TaskRunning
	case "completed":
		return TaskCompleted
	case "failed":
		return TaskFailed
	case "cancelled":
		return TaskCancelled
	}
	return TaskPending
}

// Priority mirrors the generator's priority levels. The scheduler itself does
// not reorder by priority; it is carried for observers and the history store.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// DepRef is one dependency as declared by a generator: either a bare task ID
// or a resolved reference to another spec in the same batch. Ingestion
// normalizes both shapes into a canonical ID set on the record.
type DepRef struct {
	ID  string
	Ref *TaskSpec
}

// DepID declares a dependency by task ID.
func DepID(id string) DepRef { return DepRef{ID: id} }

// DepTask declares a dependency by direct reference to another spec.
func DepTask(spec *TaskSpec) DepRef { return DepRef{Ref: spec} }

// resolve returns the dependency's task ID, or false if the reference
// carries neither an ID nor a usable spec reference.
func (d DepRef) resolve() (string, bool) {
	if d.Ref != nil && d.Ref.ID != "" {
		return d.Ref.ID, true
	}
	if d.ID != "" {
		return d.ID, true
	}
	return "", false
}

// TaskSpec describes one unit of investigation work as produced by a
// generator. Specs are treated as immutable once ingested into a batch.
type TaskSpec struct {
	ID           string // Unique within a batch; assigned at ingestion if empty
	Type         string // e.g. "domain_analysis", "breach_research"
	Title        string // Human-readable title
	Description  string // Longer description passed to the worker
	Priority     Priority
	AgentType    string         // Which worker pool should handle the task
	Parameters   map[string]any // Opaque payload for the worker
	Targets      []string       // Resource keys serialized across concurrent tasks
	Dependencies []DepRef       // Tasks that must complete first
}

// TaskOutcome is the terminal result of one task execution. Failures travel
// as a value here, never as an error raised out of a policy loop.
type TaskOutcome struct {
	TaskID        string         `json:"task_id"`
	State         TaskState      `json:"state"`
	Result        map[string]any `json:"result,omitempty"`
	Err           string         `json:"error,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time_ns"`
	Timestamp     time.Time      `json:"timestamp"`
}

// TaskRecord is the scheduler's working entity for one spec. Records are
// owned by the Registry for their lifetime; callers only ever see clones.
type TaskRecord struct {
	Spec       TaskSpec
	DependsOn  []string // Normalized dependency IDs (dangling refs dropped)
	State      TaskState
	StartedAt  time.Time
	FinishedAt time.Time
	Result     map[string]any
	Err        string
}

// ExecutionTime returns the wall-clock duration of the task's execution,
// or zero if it never ran to a terminal state.
func (r *TaskRecord) ExecutionTime() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome builds the outcome value for a record in a terminal state.
func (r *TaskRecord) Outcome() TaskOutcome {
	return TaskOutcome{
		TaskID:        r.Spec.ID,
		State:         r.State,
		Result:        r.Result,
		Err:           r.Err,
		ExecutionTime: r.ExecutionTime(),
		Timestamp:     r.FinishedAt,
	}
}

func cloneRecord(rec *TaskRecord) *TaskRecord {
	if rec == nil {
		return nil
	}

	cp := *rec
	if rec.DependsOn != nil {
		cp.DependsOn = append([]string(nil), rec.DependsOn...)
	}
	if rec.Spec.Targets != nil {
		cp.Spec.Targets = append([]string(nil), rec.Spec.Targets...)
	}
	if rec.Spec.Dependencies != nil {
		cp.Spec.Dependencies = append([]DepRef(nil), rec.Spec.Dependencies...)
	}
	return &cp
}
