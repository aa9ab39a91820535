package scheduler

// Dependency resolution over the registry's queued bucket.
//
// A dependency is satisfied only by a COMPLETED task. Failed and cancelled
// dependencies never satisfy a dependent, so a task downstream of a failure
// starves in the queue rather than running against missing inputs. That is
// deliberate: the fork/join policy surfaces starvation by stopping when the
// frontier is empty, and the stuck tasks stay enumerable through Status.

// Ready returns clones of every queued record whose full dependency set has
// completed successfully. A task with no dependencies is always ready.
// Dangling dependency IDs were already dropped at ingestion, so they never
// block a task here.
func (r *Registry) Ready() []*TaskRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []*TaskRecord
	for _, rec := range r.queued {
		if r.depsMetLocked(rec) {
			ready = append(ready, cloneRecord(rec))
		}
	}
	return ready
}

func (r *Registry) depsMetLocked(rec *TaskRecord) bool {
	for _, depID := range rec.DependsOn {
		if _, ok := r.completed[depID]; !ok {
			return false
		}
	}
	return true
}

// FrontIfReady inspects the front of the queue for the sequential policy.
// If the front task's dependencies are met it is returned (cloned); otherwise
// it is rotated to the back so the next task gets a chance. The second return
// is false when the queue is empty.
func (r *Registry) FrontIfReady() (*TaskRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queued) == 0 {
		return nil, false
	}

	front := r.queued[0]
	if r.depsMetLocked(front) {
		return cloneRecord(front), true
	}

	r.queued = append(r.queued[1:], front)
	return nil, true
}
