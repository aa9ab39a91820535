package scheduler

import (
	"sort"
	"sync"
)

// TargetLockManager provides per-target mutual exclusion for concurrent task
// execution. OSINT sources are frequently rate limited per target (a domain,
// a username, an API identity), so two tasks declaring the same target must
// not hit it at the same time. Uses a keyed mutex pattern: each target gets
// its own mutex, so tasks touching disjoint targets still run concurrently.
type TargetLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-target mutexes
}

// NewTargetLockManager creates a new TargetLockManager.
func NewTargetLockManager() *TargetLockManager {
	return &TargetLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Acquire takes the per-target mutex, creating it on first access.
func (m *TargetLockManager) Acquire(target string) {
	m.mu.Lock()
	lock, exists := m.locks[target]
	if !exists {
		lock = &sync.Mutex{}
		m.locks[target] = lock
	}
	m.mu.Unlock()

	// Taken outside the manager lock so waiting on one target does not
	// block acquisition of unrelated targets.
	lock.Lock()
}

// Release drops the per-target mutex.
func (m *TargetLockManager) Release(target string) {
	m.mu.Lock()
	lock, exists := m.locks[target]
	m.mu.Unlock()

	if exists {
		lock.Unlock()
	}
}

// AcquireAll takes the locks for every given target. Targets are sorted
// lexicographically before acquisition so two tasks sharing a subset of
// targets cannot deadlock on each other. Duplicate targets are collapsed; a
// task declaring the same target twice must not deadlock on itself.
func (m *TargetLockManager) AcquireAll(targets []string) {
	for _, target := range sortedUnique(targets) {
		m.Acquire(target)
	}
}

// ReleaseAll drops the locks for every given target, in reverse sorted order
// for symmetry with AcquireAll.
func (m *TargetLockManager) ReleaseAll(targets []string) {
	sorted := sortedUnique(targets)
	for i := len(sorted) - 1; i >= 0; i-- {
		m.Release(sorted[i])
	}
}

func sortedUnique(targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)

	out := sorted[:1]
	for _, target := range sorted[1:] {
		if target != out[len(out)-1] {
			out = append(out, target)
		}
	}
	return out
}
