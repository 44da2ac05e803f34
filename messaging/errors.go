package messaging

import "errors"

var (
	// ErrQueueEmpty is returned by Queue.Pop when no item is waiting
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrHandlerNotFound is returned when no handler is registered for a logical queue
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrUnrecognizedJob is returned when a popped payload is not an encoded job
	ErrUnrecognizedJob = errors.New("unrecognized job payload")
	// ErrUnknownDelivery is returned when deleting an item the queue does not hold
	ErrUnknownDelivery = errors.New("unknown delivery")
)
