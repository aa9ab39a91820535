package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/palentir/taskflow/internal/scheduler"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestStoreRoundTrip archives a batch with outcomes and reads it back.
func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SaveBatch(ctx, "batch-1", "investigate example.com"); err != nil {
		t.Fatalf("SaveBatch() error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	outcomes := []scheduler.TaskOutcome{
		{
			TaskID:        "recon",
			State:         scheduler.TaskCompleted,
			Result:        map[string]any{"subdomains": float64(12)},
			ExecutionTime: 1500 * time.Millisecond,
			Timestamp:     now,
		},
		{
			TaskID:        "enrich",
			State:         scheduler.TaskFailed,
			Err:           "api quota exceeded",
			ExecutionTime: 300 * time.Millisecond,
			Timestamp:     now.Add(time.Second),
		},
	}
	for _, outcome := range outcomes {
		if err := store.SaveOutcome(ctx, "batch-1", outcome); err != nil {
			t.Fatalf("SaveOutcome(%s) error = %v", outcome.TaskID, err)
		}
	}

	got, err := store.ListOutcomes(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ListOutcomes() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(got))
	}

	// Ordered by finish time
	if got[0].TaskID != "recon" || got[1].TaskID != "enrich" {
		t.Errorf("order = [%s, %s], want [recon, enrich]", got[0].TaskID, got[1].TaskID)
	}
	if got[0].State != scheduler.TaskCompleted {
		t.Errorf("recon state = %v", got[0].State)
	}
	if got[0].Result["subdomains"] != float64(12) {
		t.Errorf("recon result = %v", got[0].Result)
	}
	if got[0].ExecutionTime != 1500*time.Millisecond {
		t.Errorf("recon execution time = %s", got[0].ExecutionTime)
	}
	if got[1].State != scheduler.TaskFailed || got[1].Err != "api quota exceeded" {
		t.Errorf("enrich outcome = %+v", got[1])
	}
}

// TestStoreUpsert verifies re-saving a batch or outcome updates in place.
func TestStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SaveBatch(ctx, "batch-1", "first query"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveBatch(ctx, "batch-1", "revised query"); err != nil {
		t.Fatal(err)
	}

	batches, err := store.ListBatches(ctx)
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1 after upsert", len(batches))
	}
	if batches[0].Query != "revised query" {
		t.Errorf("query = %q, want the revision", batches[0].Query)
	}

	outcome := scheduler.TaskOutcome{TaskID: "t1", State: scheduler.TaskFailed, Err: "boom", Timestamp: time.Now().UTC()}
	if err := store.SaveOutcome(ctx, "batch-1", outcome); err != nil {
		t.Fatal(err)
	}
	outcome.State = scheduler.TaskCompleted
	outcome.Err = ""
	if err := store.SaveOutcome(ctx, "batch-1", outcome); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListOutcomes(ctx, "batch-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d outcomes, want 1 after upsert", len(got))
	}
	if got[0].State != scheduler.TaskCompleted || got[0].Err != "" {
		t.Errorf("outcome = %+v, want the updated row", got[0])
	}
}

// TestStoreListBatchesEmpty verifies empty listings are not errors.
func TestStoreListBatchesEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batches, err := store.ListBatches(ctx)
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("got %d batches, want 0", len(batches))
	}

	outcomes, err := store.ListOutcomes(ctx, "nope")
	if err != nil {
		t.Fatalf("ListOutcomes() error = %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes, want 0", len(outcomes))
	}
}

// TestStorePurge verifies old batches and their outcomes are removed while
// newer ones survive.
func TestStorePurge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SaveBatch(ctx, "old", "old query"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveOutcome(ctx, "old", scheduler.TaskOutcome{TaskID: "t1", State: scheduler.TaskCompleted, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}

	// Purge with a future cutoff removes everything created so far
	removed, err := store.Purge(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	batches, err := store.ListBatches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("got %d batches after purge, want 0", len(batches))
	}

	// Outcomes went with their batch via the cascade
	outcomes, err := store.ListOutcomes(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d orphaned outcomes, want 0", len(outcomes))
	}

	// A cutoff in the past removes nothing
	if err := store.SaveBatch(ctx, "new", "new query"); err != nil {
		t.Fatal(err)
	}
	removed, err = store.Purge(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 for a past cutoff", removed)
	}
}
