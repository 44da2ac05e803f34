package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker consumes physical queues and hands each job to the handler its
// logical queue resolves to.
type Worker struct {
	queue        Queue
	router       *Router
	queues       []string
	concurrency  int
	pollInterval time.Duration
	requeue      bool
	logger       *slog.Logger
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithConcurrency sets the number of consuming goroutines
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollInterval sets how long an idle worker waits before polling again
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pollInterval = d
	}
}

// WithRequeueOnStart controls whether Run first returns items left reserved
// by a previous process to their queues. It is on by default and assumes a
// single consuming process per queue.
func WithRequeueOnStart(enabled bool) WorkerOption {
	return func(w *Worker) {
		w.requeue = enabled
	}
}

// WithWorkerLogger sets the logger
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// ConsumeQueues returns the physical queues a worker drains for the given
// logical queues: each queue and its retry queue. Dead-letter queues are only
// drained by reprocessing.
func ConsumeQueues(logical ...string) []string {
	queues := make([]string, 0, len(logical)*2)
	for _, q := range logical {
		queues = append(queues, q, RetryQueue(q))
	}
	return queues
}

// NewWorker creates a worker for the given physical queues
func NewWorker(queue Queue, router *Router, queues []string, options ...WorkerOption) *Worker {
	w := &Worker{
		queue:        queue,
		router:       router,
		queues:       queues,
		concurrency:  1,
		pollInterval: time.Second,
		requeue:      true,
		logger:       slog.Default(),
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// Run consumes until the context is cancelled
func (w *Worker) Run(ctx context.Context) error {
	if err := w.recoverReserved(ctx); err != nil {
		return err
	}

	w.logger.Info("Worker started", "queues", w.queues, "concurrency", w.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("Worker stopped")
	return nil
}

// recoverReserved hands back items a crashed consumer left reserved
func (w *Worker) recoverReserved(ctx context.Context) error {
	requeuer, ok := w.queue.(Requeuer)
	if !w.requeue || !ok {
		return nil
	}

	for _, queue := range w.queues {
		n, err := requeuer.Requeue(ctx, queue)
		if err != nil {
			return fmt.Errorf("failed to requeue reserved jobs of %s: %w", queue, err)
		}
		if n > 0 {
			w.logger.Warn("Recovered reserved jobs", "queue", queue, "count", n)
		}
	}
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		busy := false
		for _, queue := range w.queues {
			ok, err := w.ProcessNext(ctx, queue)
			if err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to process job", "queue", queue, "error", err)
			}
			busy = busy || (ok && err == nil)
		}

		if !busy {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// ProcessNext pops and handles one item from the queue. It reports whether
// an item was found.
func (w *Worker) ProcessNext(ctx context.Context, queue string) (bool, error) {
	d, err := w.queue.Pop(ctx, queue)
	if errors.Is(err, ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	job, err := DecodeJob(d.Body)
	if err != nil {
		w.logger.Warn("Discarding unrecognized payload", "queue", queue, "error", err)
		return true, w.queue.Delete(ctx, d)
	}

	if err := job.Handle(ctx, w.router); err != nil {
		if errors.Is(err, ErrHandlerNotFound) {
			w.logger.Error("No handler for job, discarding",
				"messageId", job.Message.ID(),
				"queue", job.Message.Queue())
			return true, w.queue.Delete(ctx, d)
		}
		return true, w.release(ctx, d, err)
	}

	return true, w.queue.Delete(ctx, d)
}

// release hands a failed item back when the driver supports it. Otherwise
// the item stays reserved until the driver recovers it.
func (w *Worker) release(ctx context.Context, d *Delivery, cause error) error {
	releaser, ok := w.queue.(Releaser)
	if !ok {
		return cause
	}
	if err := releaser.Release(ctx, d); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to release job %s: %w", d.ID, err))
	}
	return cause
}
