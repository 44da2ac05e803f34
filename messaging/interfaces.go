package messaging

import (
	"context"

	"github.com/glimte/sagaflow-go/contracts"
)

// Delivery is one item popped from a physical queue
type Delivery struct {
	// ID identifies the item within its driver
	ID string
	// Queue is the physical queue the item was popped from
	Queue string
	// Body is the encoded job
	Body []byte
	// Tag is the broker delivery tag, when the driver has one
	Tag uint64
}

// Queue is a durable queue that hands out items until they are deleted
type Queue interface {
	// Push appends an encoded job to the named physical queue
	Push(ctx context.Context, queue string, body []byte) error

	// Pop reserves the next item of the named queue. It returns ErrQueueEmpty
	// when nothing is waiting.
	Pop(ctx context.Context, queue string) (*Delivery, error)

	// Delete removes a popped item for good
	Delete(ctx context.Context, d *Delivery) error
}

// Releaser is implemented by drivers that can hand a reserved item out again
// before its reservation is recovered.
type Releaser interface {
	// Release returns a popped item to the head of its queue
	Release(ctx context.Context, d *Delivery) error
}

// Requeuer is implemented by drivers whose reservations outlive the process
// that made them.
type Requeuer interface {
	// Requeue returns every reserved item of queue to its head and reports
	// how many were moved.
	Requeue(ctx context.Context, queue string) (int, error)
}

// Handler handles one message resolved from the router
type Handler interface {
	Handle(ctx context.Context, msg contracts.QueueMessage) error
}

// HandlerFactory builds a fresh handler for each consumed job
type HandlerFactory func() Handler

// Processor does the actual work for a message. Any error it returns is
// turned into a retry or dead-letter re-publication by QueueHandler.
type Processor interface {
	Process(ctx context.Context, msg contracts.QueueMessage) error
}

// ProcessorFunc is a function adapter for Processor
type ProcessorFunc func(ctx context.Context, msg contracts.QueueMessage) error

// Process implements Processor
func (f ProcessorFunc) Process(ctx context.Context, msg contracts.QueueMessage) error {
	return f(ctx, msg)
}

// JobDispatcher pushes jobs onto their target physical queue
type JobDispatcher interface {
	Dispatch(ctx context.Context, job *Job) error
}
