package reliability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glimte/sagaflow-go/messaging"
)

// ReprocessResult summarises one drain of a dead-letter queue
type ReprocessResult struct {
	Queue       string
	Reprocessed int
	Discarded   int
}

// Message returns the operator-facing summary
func (r ReprocessResult) Message() string {
	if r.Reprocessed == 0 {
		return fmt.Sprintf("No jobs found on [%s].", r.Queue)
	}
	return fmt.Sprintf("Reprocessed %d job(s) from [%s] back to their original queue.", r.Reprocessed, r.Queue)
}

// Reprocessor drains a dead-letter queue back into the original logical queues
type Reprocessor struct {
	queue      messaging.Queue
	dispatcher messaging.JobDispatcher
	logger     *slog.Logger
}

// ReprocessorOption configures the Reprocessor
type ReprocessorOption func(*Reprocessor)

// WithReprocessorLogger sets the logger
func WithReprocessorLogger(logger *slog.Logger) ReprocessorOption {
	return func(r *Reprocessor) {
		r.logger = logger
	}
}

// NewReprocessor creates a reprocessor popping from queue and republishing through dispatcher
func NewReprocessor(queue messaging.Queue, dispatcher messaging.JobDispatcher, options ...ReprocessorOption) *Reprocessor {
	r := &Reprocessor{
		queue:      queue,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// ValidateDLQName checks that name denotes a dead-letter queue
func ValidateDLQName(name string) error {
	if name == "" {
		return &ValidationError{Field: "queue", Message: "The --queue option is required."}
	}
	if !strings.HasSuffix(name, messaging.DLQSuffix) {
		return &ValidationError{
			Field:   "queue",
			Message: fmt.Sprintf("The queue name must end with %q. Example: orders%s", messaging.DLQSuffix, messaging.DLQSuffix),
		}
	}
	return nil
}

// Reprocess pops every item of the dead-letter queue, resets its envelope and
// republishes it to the envelope's logical queue. Items that are not encoded
// jobs are deleted and counted as discarded. A job that cannot be
// republished goes back to the dead-letter queue. A crash between republishing and
// deleting can deliver a message twice.
func (r *Reprocessor) Reprocess(ctx context.Context, dlqName string) (ReprocessResult, error) {
	result := ReprocessResult{Queue: dlqName}
	if err := ValidateDLQName(dlqName); err != nil {
		return result, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		d, err := r.queue.Pop(ctx, dlqName)
		if errors.Is(err, messaging.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return result, &DLQError{Queue: dlqName, Op: "pop", Err: err}
		}

		job, err := messaging.DecodeJob(d.Body)
		if err != nil {
			r.logger.Warn("Discarding unrecognized dead-letter item",
				"queue", dlqName,
				"deliveryId", d.ID,
				"error", err)
			if err := r.queue.Delete(ctx, d); err != nil {
				return result, &DLQError{Queue: dlqName, Op: "delete", Err: err}
			}
			result.Discarded++
			continue
		}

		msg := job.Message.WithReset()
		if err := r.dispatcher.Dispatch(ctx, messaging.NewJob(msg)); err != nil {
			if releaser, ok := r.queue.(messaging.Releaser); ok {
				if relErr := releaser.Release(ctx, d); relErr != nil {
					err = errors.Join(err, relErr)
				}
			}
			return result, &DLQError{Queue: dlqName, MessageID: msg.ID(), Op: "republish", Err: err}
		}
		if err := r.queue.Delete(ctx, d); err != nil {
			return result, &DLQError{Queue: dlqName, MessageID: msg.ID(), Op: "delete", Err: err}
		}

		r.logger.Info("Dead-letter message reprocessed",
			"messageId", msg.ID(),
			"from", dlqName,
			"queue", msg.Queue())
		result.Reprocessed++
	}

	return result, nil
}
