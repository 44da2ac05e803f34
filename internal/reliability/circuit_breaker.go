package reliability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing collaborator until a cool-down has passed
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	halfOpenInUse   int
	lastFailureTime time.Time

	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	halfOpenRequests int
	logger           *slog.Logger
	now              func() time.Time
}

// CircuitBreakerOption configures the circuit breaker
type CircuitBreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets the consecutive failures that open the circuit
func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = threshold
	}
}

// WithSuccessThreshold sets the successes needed in half-open state to close the circuit
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = threshold
	}
}

// WithTimeout sets how long the circuit stays open
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.timeout = timeout
	}
}

// WithHalfOpenRequests sets the max concurrent trial requests in half-open state
func WithHalfOpenRequests(requests int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenRequests = requests
	}
}

// WithName sets the circuit breaker name
func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithBreakerLogger sets the logger
func WithBreakerLogger(logger *slog.Logger) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(options ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		name:             "default",
		failureThreshold: 5,
		successThreshold: 2,
		timeout:          30 * time.Second,
		halfOpenRequests: 1,
		logger:           slog.Default(),
		now:              time.Now,
	}

	for _, opt := range options {
		opt(cb)
	}

	return cb
}

// Execute runs fn unless the circuit is open. Errors returned by fn count as failures.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		cb.release()
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears the counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed, "reset")
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		nextRetry := cb.lastFailureTime.Add(cb.timeout)
		if cb.now().Before(nextRetry) {
			return &CircuitBreakerError{
				Name:             cb.name,
				State:            StateOpen,
				Failures:         cb.failures,
				FailureThreshold: cb.failureThreshold,
				NextRetry:        nextRetry,
			}
		}
		cb.transition(StateHalfOpen, "timeout expired")
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInUse >= cb.halfOpenRequests {
			return &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
		}
		cb.halfOpenInUse++
	}
	return nil
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenInUse > 0 {
		cb.halfOpenInUse--
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenInUse > 0 {
		cb.halfOpenInUse--
	}

	if err != nil {
		cb.failures++
		cb.lastFailureTime = cb.now()
		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.failureThreshold {
				cb.transition(StateOpen, "failure threshold reached")
			}
		case StateHalfOpen:
			cb.transition(StateOpen, "failure in half-open state")
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.transition(StateClosed, "success threshold reached")
		}
	}
}

// transition must be called with the lock held
func (cb *CircuitBreaker) transition(to State, reason string) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	cb.halfOpenInUse = 0
	if to == StateClosed {
		cb.failures = 0
	}
	if from != to {
		cb.logger.Info("Circuit breaker state changed",
			"name", cb.name,
			"from", from.String(),
			"to", to.String(),
			"reason", reason)
	}
}
