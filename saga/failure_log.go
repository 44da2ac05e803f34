package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// FailureLog is the audit record written once for every failed saga
type FailureLog struct {
	SagaID               string                `json:"saga_id"`
	FailedStep           StepID                `json:"failed_step"`
	ExceptionClass       string                `json:"exception_class"`
	ExceptionMessage     string                `json:"exception_message"`
	ExecutedSteps        []StepID              `json:"executed_steps"`
	CompensatedSteps     []StepID              `json:"compensated_steps"`
	CompensationFailures []CompensationFailure `json:"compensation_failures"`
	ContextSnapshot      map[string]any        `json:"context_snapshot"`
	CreatedAt            time.Time             `json:"created_at"`
}

// CompensationFailure records a rollback that itself failed
type CompensationFailure struct {
	Step           StepID `json:"step"`
	ExceptionClass string `json:"exception_class"`
	Message        string `json:"message"`
}

// FailureLogStore persists failure logs. Logs are only ever appended.
type FailureLogStore interface {
	Append(ctx context.Context, log FailureLog) error
	List(ctx context.Context) ([]FailureLog, error)
	Find(ctx context.Context, sagaID string) (FailureLog, error)
}

// MemoryFailureLogStore keeps failure logs in insertion order in memory
type MemoryFailureLogStore struct {
	mu   sync.RWMutex
	seq  int64
	logs *btree.Map[int64, FailureLog]
}

// NewMemoryFailureLogStore creates an empty in-memory store
func NewMemoryFailureLogStore() *MemoryFailureLogStore {
	return &MemoryFailureLogStore{logs: btree.NewMap[int64, FailureLog](16)}
}

// Append implements FailureLogStore
func (s *MemoryFailureLogStore) Append(ctx context.Context, log FailureLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.logs.Set(s.seq, log)
	return nil
}

// List implements FailureLogStore
func (s *MemoryFailureLogStore) List(ctx context.Context) ([]FailureLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]FailureLog, 0, s.logs.Len())
	s.logs.Scan(func(_ int64, log FailureLog) bool {
		logs = append(logs, log)
		return true
	})
	return logs, nil
}

// Find implements FailureLogStore
func (s *MemoryFailureLogStore) Find(ctx context.Context, sagaID string) (FailureLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found FailureLog
		ok    bool
	)
	s.logs.Scan(func(_ int64, log FailureLog) bool {
		if log.SagaID == sagaID {
			found, ok = log, true
			return false
		}
		return true
	})
	if !ok {
		return FailureLog{}, fmt.Errorf("%w: %s", ErrFailureLogNotFound, sagaID)
	}
	return found, nil
}

// Len returns the number of stored logs
func (s *MemoryFailureLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Len()
}
