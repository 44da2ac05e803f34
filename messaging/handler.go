package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/glimte/sagaflow-go/contracts"
)

const (
	// DefaultMaxRetries is the number of failed attempts before a message is dead-lettered
	DefaultMaxRetries = 3
	// RetrySuffix is appended to a logical queue name to form its retry queue
	RetrySuffix = "_retry"
	// DLQSuffix is appended to a logical queue name to form its dead-letter queue
	DLQSuffix = "_dlq"

	traceDepth = 5
)

// RetryQueue returns the retry queue of a logical queue
func RetryQueue(queue string) string { return queue + RetrySuffix }

// DeadLetterQueue returns the dead-letter queue of a logical queue
func DeadLetterQueue(queue string) string { return queue + DLQSuffix }

// DeadLetterHook is called once with the final envelope when a message is dead-lettered
type DeadLetterHook func(ctx context.Context, msg contracts.QueueMessage)

// QueueHandler supervises a Processor. Processing failures never escape
// Handle; they are recorded on the envelope and the envelope is re-published
// to the retry queue, or to the dead-letter queue once the retry budget is spent.
type QueueHandler struct {
	processor    Processor
	dispatcher   JobDispatcher
	maxRetries   int
	onDeadLetter DeadLetterHook
	logger       *slog.Logger
}

// QueueHandlerOption configures a QueueHandler
type QueueHandlerOption func(*QueueHandler)

// WithMaxRetries sets the retry budget
func WithMaxRetries(n int) QueueHandlerOption {
	return func(h *QueueHandler) {
		h.maxRetries = n
	}
}

// WithDeadLetterHook sets the hook called when a message is dead-lettered
func WithDeadLetterHook(hook DeadLetterHook) QueueHandlerOption {
	return func(h *QueueHandler) {
		h.onDeadLetter = hook
	}
}

// WithHandlerLogger sets the logger
func WithHandlerLogger(logger *slog.Logger) QueueHandlerOption {
	return func(h *QueueHandler) {
		h.logger = logger
	}
}

// NewQueueHandler wraps a processor with retry and dead-letter handling
func NewQueueHandler(processor Processor, dispatcher JobDispatcher, options ...QueueHandlerOption) *QueueHandler {
	h := &QueueHandler{
		processor:    processor,
		dispatcher:   dispatcher,
		maxRetries:   DefaultMaxRetries,
		onDeadLetter: func(context.Context, contracts.QueueMessage) {},
		logger:       slog.Default(),
	}

	for _, opt := range options {
		opt(h)
	}

	return h
}

// Handle processes the message. The only error it returns is a failure to
// re-publish a failed message; processing errors are never returned.
func (h *QueueHandler) Handle(ctx context.Context, msg contracts.QueueMessage) error {
	err := h.process(ctx, msg)
	if err == nil {
		return nil
	}

	trace := errorTrace(err)
	failed := msg.WithError(err.Error(), errorCode(err), &trace).WithIncrementedRetry()

	if failed.RetryCount() < h.maxRetries {
		h.logger.Warn("Message processing failed, scheduling retry",
			"messageId", msg.ID(),
			"queue", msg.Queue(),
			"retryCount", failed.RetryCount(),
			"error", err)
		return h.republish(ctx, failed, RetryQueue(msg.Queue()))
	}

	h.logger.Error("Message exhausted retries, moving to dead-letter queue",
		"messageId", msg.ID(),
		"queue", msg.Queue(),
		"retryCount", failed.RetryCount(),
		"error", err)
	if err := h.republish(ctx, failed, DeadLetterQueue(msg.Queue())); err != nil {
		return err
	}
	h.onDeadLetter(ctx, failed)
	return nil
}

// process runs the processor and turns a panic into an ordinary failure
func (h *QueueHandler) process(ctx context.Context, msg contracts.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Trace: callerTrace(3)}
		}
	}()
	return h.processor.Process(ctx, msg)
}

func (h *QueueHandler) republish(ctx context.Context, msg contracts.QueueMessage, queue string) error {
	if err := h.dispatcher.Dispatch(ctx, NewJob(msg).OnQueue(queue)); err != nil {
		h.logger.Error("Failed to republish message",
			"messageId", msg.ID(),
			"queue", queue,
			"error", err)
		return fmt.Errorf("failed to republish message %s to %s: %w", msg.ID(), queue, err)
	}
	return nil
}

// PanicError reports a panic raised by a processor
type PanicError struct {
	Value any
	Trace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("processor panicked: %v", e.Value)
}

// errorCode returns the code of the first error in the chain implementing
// Code() string, or "0".
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return "0"
}

// errorTrace returns the trace carried by the error, or the frames of the
// caller that observed it.
func errorTrace(err error) string {
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return panicErr.Trace
	}
	var traced interface{ Trace() string }
	if errors.As(err, &traced) {
		return traced.Trace()
	}
	return callerTrace(3)
}

// callerTrace formats up to five frames as file:line, newest first
func callerTrace(skip int) string {
	pcs := make([]uintptr, traceDepth)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])

	lines := make([]string, 0, traceDepth)
	for {
		frame, more := frames.Next()
		lines = append(lines, fmt.Sprintf("%s:%d", frame.File, frame.Line))
		if !more || len(lines) == traceDepth {
			break
		}
	}
	return strings.Join(lines, "\n")
}
