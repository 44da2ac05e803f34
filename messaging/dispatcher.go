package messaging

import (
	"context"
	"fmt"
	"log/slog"
)

// QueueDispatcher encodes jobs and pushes them onto a Queue
type QueueDispatcher struct {
	queue  Queue
	logger *slog.Logger
}

// DispatcherOption configures the QueueDispatcher
type DispatcherOption func(*QueueDispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *QueueDispatcher) {
		d.logger = logger
	}
}

// NewQueueDispatcher creates a dispatcher backed by the given queue
func NewQueueDispatcher(queue Queue, options ...DispatcherOption) *QueueDispatcher {
	d := &QueueDispatcher{
		queue:  queue,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Dispatch pushes the job onto its physical queue
func (d *QueueDispatcher) Dispatch(ctx context.Context, job *Job) error {
	if job.Queue() == "" {
		return fmt.Errorf("job for message %s has no target queue", job.Message.ID())
	}

	body, err := EncodeJob(job)
	if err != nil {
		return err
	}

	if err := d.queue.Push(ctx, job.Queue(), body); err != nil {
		return fmt.Errorf("failed to push job to %s: %w", job.Queue(), err)
	}

	d.logger.Debug("Job dispatched",
		"messageId", job.Message.ID(),
		"queue", job.Queue(),
		"retryCount", job.Message.RetryCount())
	return nil
}
