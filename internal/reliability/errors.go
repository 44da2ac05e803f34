package reliability

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Circuit breaker errors
	ErrCircuitOpen          = errors.New("circuit breaker: circuit is open")
	ErrCircuitHalfOpenLimit = errors.New("circuit breaker: half-open request limit reached")
)

// ValidationError reports bad operator input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CircuitBreakerError represents a circuit breaker error with context
type CircuitBreakerError struct {
	Name             string
	State            State
	Failures         int
	FailureThreshold int
	NextRetry        time.Time
}

func (e *CircuitBreakerError) Error() string {
	switch e.State {
	case StateOpen:
		retryIn := time.Until(e.NextRetry).Round(time.Second)
		return fmt.Sprintf("circuit breaker %s open: failures=%d/%d, retry in %v",
			e.Name, e.Failures, e.FailureThreshold, retryIn)
	case StateHalfOpen:
		return fmt.Sprintf("circuit breaker %s half-open: request limit reached", e.Name)
	default:
		return fmt.Sprintf("circuit breaker %s error in state %v", e.Name, e.State)
	}
}

func (e *CircuitBreakerError) Unwrap() error {
	if e.State == StateHalfOpen {
		return ErrCircuitHalfOpenLimit
	}
	return ErrCircuitOpen
}

// DLQError represents a dead letter queue error
type DLQError struct {
	Queue     string
	MessageID string
	Op        string
	Err       error
}

func (e *DLQError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("dlq error: %s failed in queue %s: %v", e.Op, e.Queue, e.Err)
	}
	return fmt.Sprintf("dlq error: %s failed for message %s in queue %s: %v",
		e.Op, e.MessageID, e.Queue, e.Err)
}

func (e *DLQError) Unwrap() error {
	return e.Err
}
