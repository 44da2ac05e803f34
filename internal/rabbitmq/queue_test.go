package rabbitmq

import (
	"context"
	"errors"
	"testing"

	"github.com/glimte/sagaflow-go/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	a := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return amqp.Queue{Name: name}, a.Error(0)
}

func (m *mockChannel) Confirm(noWait bool) error {
	return m.Called(noWait).Error(0)
}

func (m *mockChannel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	a := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return a.Get(0).(*amqp.DeferredConfirmation), a.Error(1)
}

func (m *mockChannel) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	a := m.Called(queue, autoAck)
	return a.Get(0).(amqp.Delivery), a.Bool(1), a.Error(2)
}

func (m *mockChannel) Ack(tag uint64, multiple bool) error {
	return m.Called(tag, multiple).Error(0)
}

func (m *mockChannel) Nack(tag uint64, multiple, requeue bool) error {
	return m.Called(tag, multiple, requeue).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func newTestQueue(channels ...*mockChannel) (*Queue, *int) {
	opened := 0
	q := NewQueue(nil, WithChannelOpener(func() (Channel, error) {
		if opened >= len(channels) {
			return nil, ErrConnectionNotReady
		}
		ch := channels[opened]
		opened++
		return ch, nil
	}))
	return q, &opened
}

func readyChannel() *mockChannel {
	ch := &mockChannel{}
	ch.On("Confirm", false).Return(nil)
	ch.On("QueueDeclare", mock.Anything, true, false, false, false, mock.Anything).Return(nil)
	return ch
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("push publishes a persistent message to the default exchange", func(t *testing.T) {
		ch := readyChannel()
		ch.On("PublishWithDeferredConfirmWithContext", mock.Anything, "", "orders", false, false,
			mock.MatchedBy(func(p amqp.Publishing) bool {
				return p.DeliveryMode == amqp.Persistent &&
					p.ContentType == "application/json" &&
					p.MessageId != "" &&
					string(p.Body) == `{"job":"queue_job"}`
			})).Return((*amqp.DeferredConfirmation)(nil), nil).Once()

		q, _ := newTestQueue(ch)
		require.NoError(t, q.Push(ctx, "orders", []byte(`{"job":"queue_job"}`)))
		ch.AssertExpectations(t)
		ch.AssertNumberOfCalls(t, "QueueDeclare", 1)
	})

	t.Run("queues are declared once per channel", func(t *testing.T) {
		ch := readyChannel()
		ch.On("PublishWithDeferredConfirmWithContext", mock.Anything, "", "orders", false, false, mock.Anything).
			Return((*amqp.DeferredConfirmation)(nil), nil)

		q, opened := newTestQueue(ch)
		require.NoError(t, q.Push(ctx, "orders", []byte("a")))
		require.NoError(t, q.Push(ctx, "orders", []byte("b")))

		assert.Equal(t, 1, *opened)
		ch.AssertNumberOfCalls(t, "QueueDeclare", 1)
	})

	t.Run("declare creates the retry and dead letter queues", func(t *testing.T) {
		ch := readyChannel()
		q, _ := newTestQueue(ch)

		require.NoError(t, q.Declare(ctx, "orders"))
		for _, name := range []string{"orders", "orders_retry", "orders_dlq"} {
			ch.AssertCalled(t, "QueueDeclare", name, true, false, false, false, mock.Anything)
		}
	})

	t.Run("pop maps an empty get to ErrQueueEmpty", func(t *testing.T) {
		ch := readyChannel()
		ch.On("Get", "orders", false).Return(amqp.Delivery{}, false, nil)

		q, _ := newTestQueue(ch)
		_, err := q.Pop(ctx, "orders")
		assert.ErrorIs(t, err, messaging.ErrQueueEmpty)
	})

	t.Run("pop then delete acknowledges the delivery", func(t *testing.T) {
		ch := readyChannel()
		ch.On("Get", "orders", false).Return(amqp.Delivery{
			MessageId:   "m-1",
			DeliveryTag: 7,
			Body:        []byte("payload"),
		}, true, nil)
		ch.On("Ack", uint64(7), false).Return(nil).Once()

		q, _ := newTestQueue(ch)
		d, err := q.Pop(ctx, "orders")
		require.NoError(t, err)
		assert.Equal(t, "m-1", d.ID)
		assert.Equal(t, "orders", d.Queue)
		assert.Equal(t, uint64(7), d.Tag)
		assert.Equal(t, []byte("payload"), d.Body)

		require.NoError(t, q.Delete(ctx, d))
		assert.ErrorIs(t, q.Delete(ctx, d), messaging.ErrUnknownDelivery)
		ch.AssertExpectations(t)
	})

	t.Run("release rejects the delivery with requeue", func(t *testing.T) {
		ch := readyChannel()
		ch.On("Get", "orders", false).Return(amqp.Delivery{
			MessageId:   "m-2",
			DeliveryTag: 9,
			Body:        []byte("payload"),
		}, true, nil)
		ch.On("Nack", uint64(9), false, true).Return(nil).Once()

		q, _ := newTestQueue(ch)
		d, err := q.Pop(ctx, "orders")
		require.NoError(t, err)

		require.NoError(t, q.Release(ctx, d))
		assert.ErrorIs(t, q.Release(ctx, d), messaging.ErrUnknownDelivery)
		assert.ErrorIs(t, q.Delete(ctx, d), messaging.ErrUnknownDelivery)
		ch.AssertExpectations(t)
	})

	t.Run("delivery without message id falls back to its tag", func(t *testing.T) {
		ch := readyChannel()
		ch.On("Get", "orders", false).Return(amqp.Delivery{DeliveryTag: 3}, true, nil)

		q, _ := newTestQueue(ch)
		d, err := q.Pop(ctx, "orders")
		require.NoError(t, err)
		assert.Equal(t, "3", d.ID)
	})

	t.Run("channel failure reopens on next call", func(t *testing.T) {
		broken := readyChannel()
		broken.On("Get", "orders", false).Return(amqp.Delivery{}, false, amqp.ErrClosed)
		broken.On("Close").Return(nil)

		fresh := readyChannel()
		fresh.On("Get", "orders", false).Return(amqp.Delivery{}, false, nil)

		q, opened := newTestQueue(broken, fresh)

		_, err := q.Pop(ctx, "orders")
		var chErr *ChannelError
		require.ErrorAs(t, err, &chErr)
		assert.Equal(t, "get", chErr.Op)
		assert.ErrorIs(t, err, amqp.ErrClosed)

		_, err = q.Pop(ctx, "orders")
		assert.ErrorIs(t, err, messaging.ErrQueueEmpty)
		assert.Equal(t, 2, *opened)
	})

	t.Run("deliveries of a dead channel are unknown", func(t *testing.T) {
		broken := readyChannel()
		broken.On("Get", "orders", false).Return(amqp.Delivery{MessageId: "m", DeliveryTag: 1}, true, nil).Once()
		broken.On("PublishWithDeferredConfirmWithContext", mock.Anything, "", "orders", false, false, mock.Anything).
			Return((*amqp.DeferredConfirmation)(nil), errors.New("channel closed"))
		broken.On("Close").Return(nil)

		q, _ := newTestQueue(broken, readyChannel())

		d, err := q.Pop(ctx, "orders")
		require.NoError(t, err)
		require.Error(t, q.Push(ctx, "orders", []byte("x")))

		assert.ErrorIs(t, q.Delete(ctx, d), messaging.ErrUnknownDelivery)
	})

	t.Run("declare failure is a topology error", func(t *testing.T) {
		ch := &mockChannel{}
		ch.On("Confirm", false).Return(nil)
		ch.On("QueueDeclare", "orders", true, false, false, false, mock.Anything).Return(errors.New("access refused"))
		ch.On("Close").Return(nil)

		q, _ := newTestQueue(ch)
		err := q.Push(ctx, "orders", []byte("x"))

		var topoErr *TopologyError
		require.ErrorAs(t, err, &topoErr)
		assert.Equal(t, "orders", topoErr.Queue)
	})

	t.Run("no connection", func(t *testing.T) {
		q := NewQueue(nil)
		_, err := q.Pop(ctx, "orders")
		assert.ErrorIs(t, err, ErrConnectionNotReady)
	})
}
