package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sleeper waits between step attempts
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc is a function adapter for Sleeper
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// plannedStep is one entry of the execution plan
type plannedStep struct {
	id      StepID
	retries int
	delay   time.Duration
}

// StepOption configures a planned step
type StepOption func(*plannedStep)

// WithRetries sets how many times a failed step is retried
func WithRetries(n int) StepOption {
	return func(p *plannedStep) {
		if n > 0 {
			p.retries = n
		}
	}
}

// WithDelay sets the wait before each retry. The first attempt never waits.
func WithDelay(d time.Duration) StepOption {
	return func(p *plannedStep) {
		p.delay = d
	}
}

// Orchestrator runs a fixed sequence of steps. When a step fails for good,
// every step that already succeeded is rolled back in reverse order and a
// FailureLog is persisted. The plan is read-only during Execute, so one
// orchestrator can serve concurrent executions.
type Orchestrator struct {
	registry    *StepRegistry
	steps       []plannedStep
	failureLogs FailureLogStore
	events      EventBus
	sleeper     Sleeper
	logger      *slog.Logger
	newID       func() string
	now         func() time.Time
}

// OrchestratorOption configures the Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithFailureLogStore sets where failure logs are persisted
func WithFailureLogStore(store FailureLogStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.failureLogs = store
	}
}

// WithEventBus sets the bus that receives events after success
func WithEventBus(bus EventBus) OrchestratorOption {
	return func(o *Orchestrator) {
		o.events = bus
	}
}

// WithSleeper replaces the timer used between attempts
func WithSleeper(sleeper Sleeper) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleeper = sleeper
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator resolving steps from registry
func NewOrchestrator(registry *StepRegistry, options ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		failureLogs: NewMemoryFailureLogStore(),
		events:      NewLocalEventBus(),
		sleeper:     timerSleeper{},
		logger:      slog.Default(),
		newID:       func() string { return uuid.New().String() },
		now:         time.Now,
	}

	for _, opt := range options {
		opt(o)
	}

	return o
}

// AddStep appends a step to the plan
func (o *Orchestrator) AddStep(id StepID, options ...StepOption) *Orchestrator {
	step := plannedStep{id: id}
	for _, opt := range options {
		opt(&step)
	}
	o.steps = append(o.steps, step)
	return o
}

// Steps returns the planned step ids in order
func (o *Orchestrator) Steps() []StepID {
	ids := make([]StepID, len(o.steps))
	for i, s := range o.steps {
		ids[i] = s.id
	}
	return ids
}

type executedStep struct {
	id   StepID
	step Step
}

// Execute runs the plan against sc, or a new empty context when sc is nil.
// On failure the original step error is returned after compensation.
func (o *Orchestrator) Execute(ctx context.Context, sc *Context) (*Context, error) {
	if sc == nil {
		sc = NewContext()
	}

	defs := make([]StepDefinition, len(o.steps))
	for i, planned := range o.steps {
		def, err := o.registry.Lookup(planned.id)
		if err != nil {
			return nil, fmt.Errorf("invalid saga plan: %w", err)
		}
		defs[i] = def
	}

	var (
		executed []executedStep
		events   []Event
	)

	for i, planned := range o.steps {
		def := defs[i]

		step, err := o.runWithRetries(ctx, planned, def, sc)
		if err != nil {
			o.compensate(ctx, executed, sc, planned.id, err)
			return nil, err
		}
		executed = append(executed, executedStep{id: planned.id, step: step})

		if def.EmitsEvent() {
			event, err := def.Event(ctx, sc)
			if err != nil {
				o.compensate(ctx, executed, sc, planned.id, err)
				return nil, err
			}
			events = append(events, event)
		}
	}

	for _, event := range events {
		if err := o.events.Dispatch(ctx, event); err != nil {
			o.logger.Warn("Failed to dispatch saga event",
				"event", event.EventName(),
				"error", err)
		}
	}

	return sc, nil
}

func (o *Orchestrator) runWithRetries(ctx context.Context, planned plannedStep, def StepDefinition, sc *Context) (Step, error) {
	attempts := planned.retries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && planned.delay > 0 {
			if err := o.sleeper.Sleep(ctx, planned.delay); err != nil {
				return nil, err
			}
		}

		step := def.New()
		lastErr = step.Run(ctx, sc)
		if lastErr == nil {
			return step, nil
		}

		o.logger.Warn("Saga step failed",
			"step", planned.id,
			"attempt", attempt,
			"maxAttempts", attempts,
			"error", lastErr)
	}
	return nil, lastErr
}

func (o *Orchestrator) compensate(ctx context.Context, executed []executedStep, sc *Context, failed StepID, cause error) {
	// Compensation runs to completion even if the caller gave up.
	ctx = context.WithoutCancel(ctx)

	log := FailureLog{
		SagaID:               o.newID(),
		FailedStep:           failed,
		ExceptionClass:       errorKind(cause),
		ExceptionMessage:     cause.Error(),
		ExecutedSteps:        make([]StepID, 0, len(executed)),
		CompensatedSteps:     make([]StepID, 0, len(executed)),
		CompensationFailures: make([]CompensationFailure, 0),
	}
	for _, e := range executed {
		log.ExecutedSteps = append(log.ExecutedSteps, e.id)
	}

	for i := len(executed) - 1; i >= 0; i-- {
		e := executed[i]
		if err := e.step.Rollback(ctx, sc); err != nil {
			o.logger.Error("Saga compensation failed",
				"sagaId", log.SagaID,
				"step", e.id,
				"error", err)
			log.CompensationFailures = append(log.CompensationFailures, CompensationFailure{
				Step:           e.id,
				ExceptionClass: errorKind(err),
				Message:        err.Error(),
			})
			continue
		}
		log.CompensatedSteps = append(log.CompensatedSteps, e.id)
	}

	log.ContextSnapshot = sc.Flatten()
	log.CreatedAt = o.now().UTC()

	if err := o.failureLogs.Append(ctx, log); err != nil {
		o.logger.Warn("Failed to persist saga failure log, retrying with a stringified context",
			"sagaId", log.SagaID,
			"error", err)
		log.ContextSnapshot = stringifySnapshot(log.ContextSnapshot)
		if err := o.failureLogs.Append(ctx, log); err != nil {
			o.logger.Error("Failed to persist saga failure log",
				"sagaId", log.SagaID,
				"error", err)
		}
	}

	o.logger.Error("Saga failed",
		"sagaId", log.SagaID,
		"failedStep", failed,
		"executedSteps", log.ExecutedSteps,
		"compensatedSteps", log.CompensatedSteps,
		"error", cause)
}

// stringifySnapshot renders every snapshot value with fmt.Sprint so a store
// that cannot encode a value still gets the audit record.
func stringifySnapshot(snapshot map[string]any) map[string]any {
	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		out[k] = fmt.Sprint(v)
	}
	return out
}
