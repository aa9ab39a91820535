package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/palentir/taskflow/internal/scheduler"
)

// SaveBatch records one submission. Idempotent: re-saving a batch updates
// its query text.
func (s *SQLiteStore) SaveBatch(ctx context.Context, batchID, query string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, query)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			query = excluded.query
	`, batchID, query)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// SaveOutcome records one terminal task outcome for a batch. The result
// payload is stored as JSON. Idempotent per (batch, task).
func (s *SQLiteStore) SaveOutcome(ctx context.Context, batchID string, outcome scheduler.TaskOutcome) error {
	var resultJSON []byte
	if outcome.Result != nil {
		var err error
		resultJSON, err = json.Marshal(outcome.Result)
		if err != nil {
			return fmt.Errorf("failed to encode result for task %s: %w", outcome.TaskID, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_outcomes (batch_id, task_id, state, result, error, execution_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, task_id) DO UPDATE SET
			state = excluded.state,
			result = excluded.result,
			error = excluded.error,
			execution_ms = excluded.execution_ms,
			finished_at = excluded.finished_at
	`, batchID, outcome.TaskID, outcome.State.String(), string(resultJSON), outcome.Err,
		outcome.ExecutionTime.Milliseconds(), outcome.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns all archived outcomes for a batch.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, batchID string) ([]scheduler.TaskOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, state, result, error, execution_ms, finished_at
		FROM task_outcomes
		WHERE batch_id = ?
		ORDER BY finished_at
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []scheduler.TaskOutcome
	for rows.Next() {
		var (
			outcome     scheduler.TaskOutcome
			state       string
			resultJSON  string
			executionMS int64
		)
		if err := rows.Scan(&outcome.TaskID, &state, &resultJSON, &outcome.Err, &executionMS, &outcome.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		outcome.State = scheduler.ParseState(state)
		outcome.ExecutionTime = time.Duration(executionMS) * time.Millisecond
		if resultJSON != "" {
			if err := json.Unmarshal([]byte(resultJSON), &outcome.Result); err != nil {
				return nil, fmt.Errorf("failed to decode result for task %s: %w", outcome.TaskID, err)
			}
		}

		outcomes = append(outcomes, outcome)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}

// ListBatches returns all archived batches, oldest first.
func (s *SQLiteStore) ListBatches(ctx context.Context) ([]BatchInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, created_at
		FROM batches
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []BatchInfo
	for rows.Next() {
		var info BatchInfo
		if err := rows.Scan(&info.ID, &info.Query, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	return batches, nil
}

// Purge deletes batches created before the cutoff; their outcomes go with
// them via the foreign key cascade.
func (s *SQLiteStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batches WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge batches: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}
