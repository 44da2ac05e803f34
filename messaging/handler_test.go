package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/glimte/sagaflow-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, job *Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type codedError struct {
	code string
}

func (e codedError) Error() string { return "coded failure" }
func (e codedError) Code() string  { return e.code }

func failingProcessor(err error) Processor {
	return ProcessorFunc(func(context.Context, contracts.QueueMessage) error {
		return err
	})
}

func TestQueueHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("successful processing publishes nothing", func(t *testing.T) {
		queue := NewMemoryQueue()
		var seen contracts.QueueMessage
		h := NewQueueHandler(ProcessorFunc(func(_ context.Context, msg contracts.QueueMessage) error {
			seen = msg
			return nil
		}), NewQueueDispatcher(queue))

		msg := contracts.NewQueueMessage("svc", "orders", map[string]any{"order_id": 1}, nil)
		require.NoError(t, h.Handle(ctx, msg))

		assert.Equal(t, msg, seen)
		assert.Equal(t, 0, queue.Len("orders_retry"))
		assert.Equal(t, 0, queue.Len("orders_dlq"))
	})

	t.Run("failure is swallowed and routed to retry queue", func(t *testing.T) {
		queue := NewMemoryQueue()
		h := NewQueueHandler(failingProcessor(errors.New("boom")), NewQueueDispatcher(queue))

		msg := contracts.NewQueueMessage("svc", "orders", map[string]any{"order_id": 1}, nil)
		require.NoError(t, h.Handle(ctx, msg))

		jobs := queue.Jobs("orders_retry")
		require.Len(t, jobs, 1)
		retried := jobs[0].Message
		assert.Equal(t, "orders_retry", jobs[0].Queue())
		assert.Equal(t, "orders", retried.Queue())
		assert.Equal(t, msg.ID(), retried.ID())
		assert.Equal(t, 1, retried.RetryCount())
		require.NotNil(t, retried.LastError())
		assert.Equal(t, "boom", retried.LastError().Message)
		assert.Equal(t, "0", retried.LastError().Code)
		require.NotNil(t, retried.LastError().Trace)
		assert.NotEmpty(t, *retried.LastError().Trace)
		assert.LessOrEqual(t, len(splitLines(*retried.LastError().Trace)), 5)

		assert.Equal(t, 0, msg.RetryCount())
		assert.Nil(t, msg.LastError())
	})

	t.Run("always failing processor walks retry chain into dlq", func(t *testing.T) {
		queue := NewMemoryQueue()
		var deadLettered []contracts.QueueMessage
		h := NewQueueHandler(failingProcessor(errors.New("boom")), NewQueueDispatcher(queue),
			WithMaxRetries(3),
			WithDeadLetterHook(func(_ context.Context, msg contracts.QueueMessage) {
				deadLettered = append(deadLettered, msg)
			}))

		msg := contracts.NewQueueMessage("svc", "orders", map[string]any{"order_id": 1}, nil)
		for want := 1; want <= 2; want++ {
			require.NoError(t, h.Handle(ctx, msg))

			d, err := queue.Pop(ctx, "orders_retry")
			require.NoError(t, err)
			job, err := DecodeJob(d.Body)
			require.NoError(t, err)
			assert.Equal(t, want, job.Message.RetryCount())
			msg = job.Message
		}
		assert.Empty(t, deadLettered)

		require.NoError(t, h.Handle(ctx, msg))

		assert.Equal(t, 0, queue.Len("orders_retry"))
		dlq := queue.Jobs("orders_dlq")
		require.Len(t, dlq, 1)
		assert.Equal(t, 3, dlq[0].Message.RetryCount())
		assert.Equal(t, "orders", dlq[0].Message.Queue())

		require.Len(t, deadLettered, 1)
		assert.Equal(t, 3, deadLettered[0].RetryCount())
		assert.Equal(t, msg.ID(), deadLettered[0].ID())
	})

	t.Run("uses error code when available", func(t *testing.T) {
		queue := NewMemoryQueue()
		h := NewQueueHandler(failingProcessor(codedError{code: "E42"}), NewQueueDispatcher(queue))

		require.NoError(t, h.Handle(ctx, contracts.NewQueueMessage("svc", "orders", nil, nil)))

		jobs := queue.Jobs("orders_retry")
		require.Len(t, jobs, 1)
		assert.Equal(t, "E42", jobs[0].Message.LastError().Code)
	})

	t.Run("panic is treated as failure", func(t *testing.T) {
		queue := NewMemoryQueue()
		h := NewQueueHandler(ProcessorFunc(func(context.Context, contracts.QueueMessage) error {
			panic("kaboom")
		}), NewQueueDispatcher(queue))

		require.NoError(t, h.Handle(ctx, contracts.NewQueueMessage("svc", "orders", nil, nil)))

		jobs := queue.Jobs("orders_retry")
		require.Len(t, jobs, 1)
		assert.Equal(t, "processor panicked: kaboom", jobs[0].Message.LastError().Message)
	})

	t.Run("max retries of one dead-letters immediately", func(t *testing.T) {
		queue := NewMemoryQueue()
		hookCalls := 0
		h := NewQueueHandler(failingProcessor(errors.New("boom")), NewQueueDispatcher(queue),
			WithMaxRetries(1),
			WithDeadLetterHook(func(context.Context, contracts.QueueMessage) { hookCalls++ }))

		require.NoError(t, h.Handle(ctx, contracts.NewQueueMessage("svc", "orders", nil, nil)))

		assert.Equal(t, 0, queue.Len("orders_retry"))
		assert.Equal(t, 1, queue.Len("orders_dlq"))
		assert.Equal(t, 1, hookCalls)
	})

	t.Run("republish failure is returned and hook is skipped", func(t *testing.T) {
		dispatcher := &mockDispatcher{}
		dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("broker down"))
		hookCalls := 0
		h := NewQueueHandler(failingProcessor(errors.New("boom")), dispatcher,
			WithMaxRetries(1),
			WithDeadLetterHook(func(context.Context, contracts.QueueMessage) { hookCalls++ }))

		err := h.Handle(ctx, contracts.NewQueueMessage("svc", "orders", nil, nil))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
		assert.NotContains(t, err.Error(), "boom")
		assert.Equal(t, 0, hookCalls)
		dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("dispatches to physical retry queue", func(t *testing.T) {
		dispatcher := &mockDispatcher{}
		dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(job *Job) bool {
			return job.Queue() == "notifications_retry" && job.Message.Queue() == "notifications"
		})).Return(nil).Once()
		h := NewQueueHandler(failingProcessor(errors.New("boom")), dispatcher)

		require.NoError(t, h.Handle(ctx, contracts.NewQueueMessage("svc", "notifications", nil, nil)))
		dispatcher.AssertExpectations(t)
	})
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "orders_retry", RetryQueue("orders"))
	assert.Equal(t, "orders_dlq", DeadLetterQueue("orders"))
	assert.Equal(t, []string{"orders", "orders_retry", "mail", "mail_retry"}, ConsumeQueues("orders", "mail"))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}
