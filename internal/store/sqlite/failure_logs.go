package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glimte/sagaflow-go/saga"
)

// Compile-time interface check.
var _ saga.FailureLogStore = (*FailureLogStore)(nil)

// FailureLogStore appends saga failure logs to the saga_failure_logs table
type FailureLogStore struct {
	store *Store
}

// Append implements saga.FailureLogStore
func (f *FailureLogStore) Append(ctx context.Context, log saga.FailureLog) error {
	executed, err := marshalJSON(log.ExecutedSteps, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode executed steps: %w", err)
	}
	compensated, err := marshalJSON(log.CompensatedSteps, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode compensated steps: %w", err)
	}
	failures, err := marshalJSON(log.CompensationFailures, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode compensation failures: %w", err)
	}
	snapshot, err := marshalJSON(log.ContextSnapshot, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode context snapshot: %w", err)
	}

	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = f.store.now()
	}

	_, err = f.store.db.ExecContext(ctx, `
		INSERT INTO saga_failure_logs (
			saga_id, failed_step, exception_class, exception_message,
			executed_steps, compensated_steps, compensation_failures,
			context_snapshot, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		log.SagaID,
		string(log.FailedStep),
		log.ExceptionClass,
		log.ExceptionMessage,
		executed,
		compensated,
		failures,
		snapshot,
		formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert failure log %s: %w", log.SagaID, err)
	}
	return nil
}

// List implements saga.FailureLogStore
func (f *FailureLogStore) List(ctx context.Context) ([]saga.FailureLog, error) {
	rows, err := f.store.db.QueryContext(ctx, selectFailureLogs+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query failure logs: %w", err)
	}
	defer rows.Close()

	logs := make([]saga.FailureLog, 0)
	for rows.Next() {
		log, err := scanFailureLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failure logs: %w", err)
	}
	return logs, nil
}

// Find implements saga.FailureLogStore
func (f *FailureLogStore) Find(ctx context.Context, sagaID string) (saga.FailureLog, error) {
	row := f.store.db.QueryRowContext(ctx, selectFailureLogs+" WHERE saga_id = ? ORDER BY id LIMIT 1", sagaID)

	log, err := scanFailureLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return saga.FailureLog{}, fmt.Errorf("%w: %s", saga.ErrFailureLogNotFound, sagaID)
	}
	return log, err
}

const selectFailureLogs = `
	SELECT saga_id, failed_step, exception_class, exception_message,
	       executed_steps, compensated_steps, compensation_failures,
	       context_snapshot, created_at
	FROM saga_failure_logs`

type scanner interface {
	Scan(dest ...any) error
}

func scanFailureLog(row scanner) (saga.FailureLog, error) {
	var (
		log                                              saga.FailureLog
		failedStep, executed, compensated, failures, raw string
		createdAt                                        string
	)

	err := row.Scan(
		&log.SagaID,
		&failedStep,
		&log.ExceptionClass,
		&log.ExceptionMessage,
		&executed,
		&compensated,
		&failures,
		&raw,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.FailureLog{}, err
		}
		return saga.FailureLog{}, fmt.Errorf("failed to scan failure log: %w", err)
	}

	log.FailedStep = saga.StepID(failedStep)
	if err := json.Unmarshal([]byte(executed), &log.ExecutedSteps); err != nil {
		return saga.FailureLog{}, fmt.Errorf("failed to decode executed steps: %w", err)
	}
	if err := json.Unmarshal([]byte(compensated), &log.CompensatedSteps); err != nil {
		return saga.FailureLog{}, fmt.Errorf("failed to decode compensated steps: %w", err)
	}
	if err := json.Unmarshal([]byte(failures), &log.CompensationFailures); err != nil {
		return saga.FailureLog{}, fmt.Errorf("failed to decode compensation failures: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &log.ContextSnapshot); err != nil {
		return saga.FailureLog{}, fmt.Errorf("failed to decode context snapshot: %w", err)
	}
	if log.CreatedAt, err = parseTime(createdAt); err != nil {
		return saga.FailureLog{}, err
	}
	return log, nil
}

// marshalJSON encodes v, writing empty for nil slices and maps
func marshalJSON(v any, empty string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}
