package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/palentir/taskflow/internal/scheduler"
	_ "modernc.org/sqlite"
)

// BatchInfo describes one archived submission.
type BatchInfo struct {
	ID        string
	Query     string
	CreatedAt time.Time
}

// Store is the outcome archive: every task that reaches a terminal state
// during a submission is recorded here, keyed by batch. It backs the
// retention side of the scheduler that the in-memory registry does not
// cover (the registry only holds the current process's tasks).
type Store interface {
	SaveBatch(ctx context.Context, batchID, query string) error
	SaveOutcome(ctx context.Context, batchID string, outcome scheduler.TaskOutcome) error
	ListOutcomes(ctx context.Context, batchID string) ([]scheduler.TaskOutcome, error)
	ListBatches(ctx context.Context) ([]BatchInfo, error)

	// Purge deletes batches created before the cutoff, cascading to their
	// outcomes. Returns the number of batches removed.
	Purge(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and
// busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// Foreign keys need a PRAGMA with modernc.org/sqlite; the connection
	// string form is not supported.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
