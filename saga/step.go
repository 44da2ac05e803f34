package saga

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// StepID identifies a registered step
type StepID string

// Step is one forward action of a saga and its compensation
type Step interface {
	// Run performs the forward action
	Run(ctx context.Context, sc *Context) error

	// Rollback compensates a successful Run
	Rollback(ctx context.Context, sc *Context) error
}

// StepFactory builds a fresh step instance for each attempt
type StepFactory func() Step

// EventProducer builds the event a step emits once the saga has succeeded
type EventProducer func(ctx context.Context, sc *Context) (Event, error)

// StepDefinition declares a step and its capabilities
type StepDefinition struct {
	ID  StepID
	New StepFactory
	// Event is set for steps that emit an event after success
	Event EventProducer
}

// EmitsEvent reports whether the step declared an event
func (d StepDefinition) EmitsEvent() bool {
	return d.Event != nil
}

// StepRegistry maps step ids to their definitions
type StepRegistry struct {
	steps *xsync.MapOf[StepID, StepDefinition]
}

// NewStepRegistry creates an empty registry
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{steps: xsync.NewMapOf[StepID, StepDefinition]()}
}

// Register adds a step definition, replacing any earlier one with the same id
func (r *StepRegistry) Register(def StepDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("step id cannot be empty")
	}
	if def.New == nil {
		return fmt.Errorf("step %s has no factory", def.ID)
	}
	r.steps.Store(def.ID, def)
	return nil
}

// MustRegister is like Register but panics on an invalid definition
func (r *StepRegistry) MustRegister(def StepDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered for id
func (r *StepRegistry) Lookup(id StepID) (StepDefinition, error) {
	def, ok := r.steps.Load(id)
	if !ok {
		return StepDefinition{}, fmt.Errorf("%w: %s", ErrStepNotRegistered, id)
	}
	return def, nil
}
