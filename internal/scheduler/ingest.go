package scheduler

import (
	"fmt"
	"log"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"
)

// BuildBatch converts generated specs into scheduler-owned records.
//
// Normalization happens in two passes, because a generator may reference a
// task that appears later in the list: the first pass creates every record
// and assigns IDs, the second resolves each dependency (bare ID or spec
// reference) into a canonical ID set. Dangling references are dropped with a
// warning rather than failing the batch.
//
// The batch is rejected if a task ID repeats or if the dependency graph
// contains a cycle.
func BuildBatch(specs []TaskSpec) ([]*TaskRecord, error) {
	known := make(map[string]*TaskRecord, len(specs))
	records := make([]*TaskRecord, 0, len(specs))

	for i := range specs {
		spec := specs[i]
		if spec.ID == "" {
			spec.ID = uuid.NewString()
		}
		if _, exists := known[spec.ID]; exists {
			return nil, fmt.Errorf("task with ID %q already exists in batch", spec.ID)
		}

		rec := &TaskRecord{Spec: spec, State: TaskPending}
		known[spec.ID] = rec
		records = append(records, rec)
	}

	for _, rec := range records {
		seen := make(map[string]bool)
		for _, dep := range rec.Spec.Dependencies {
			depID, ok := dep.resolve()
			if !ok {
				log.Printf("WARNING: task %q declares a dependency with no resolvable ID, skipping", rec.Spec.ID)
				continue
			}
			if _, exists := known[depID]; !exists {
				log.Printf("WARNING: dependency %q of task %q not found in batch, skipping", depID, rec.Spec.ID)
				continue
			}
			if seen[depID] {
				continue
			}
			seen[depID] = true
			rec.DependsOn = append(rec.DependsOn, depID)
		}
	}

	if err := checkAcyclic(records); err != nil {
		return nil, err
	}

	return records, nil
}

// checkAcyclic runs a topological sort over the normalized dependency edges
// and returns an error if the batch contains a cycle. Relying on "no ready
// tasks" to terminate a policy loop is not enough: a cyclic batch must be
// rejected before any task runs.
func checkAcyclic(records []*TaskRecord) error {
	var edges []toposort.Edge
	for _, rec := range records {
		if len(rec.DependsOn) == 0 {
			// Edge from nil keeps dependency-free tasks in the sort.
			edges = append(edges, toposort.Edge{nil, rec.Spec.ID})
			continue
		}
		for _, depID := range rec.DependsOn {
			// Edge (depID, taskID) means depID must come before taskID.
			edges = append(edges, toposort.Edge{depID, rec.Spec.ID})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("task batch contains a dependency cycle: %w", err)
	}
	return nil
}
