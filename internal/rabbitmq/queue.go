package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glimte/sagaflow-go/messaging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the queue driver needs
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Close() error
}

var _ messaging.Releaser = (*Queue)(nil)

// Queue is a messaging.Queue backed by durable RabbitMQ queues. Jobs are
// published through the default exchange with the physical queue name as
// routing key and popped with basic.get. A popped job stays unacknowledged
// until Delete; if the channel dies first the broker requeues it.
type Queue struct {
	open           func() (Channel, error)
	confirmTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	ch       Channel
	declared map[string]struct{}
	unacked  map[uint64]struct{}
}

// QueueOption configures the Queue
type QueueOption func(*Queue)

// WithChannelOpener replaces how channels are opened
func WithChannelOpener(open func() (Channel, error)) QueueOption {
	return func(q *Queue) {
		q.open = open
	}
}

// WithConfirmTimeout bounds the wait for a publisher confirm
func WithConfirmTimeout(timeout time.Duration) QueueOption {
	return func(q *Queue) {
		q.confirmTimeout = timeout
	}
}

// WithQueueLogger sets the logger
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

// NewQueue creates a queue driver that opens its channel from conn
func NewQueue(conn *ConnectionManager, options ...QueueOption) *Queue {
	q := &Queue{
		confirmTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}
	if conn != nil {
		q.open = func() (Channel, error) { return conn.Channel() }
	}

	for _, opt := range options {
		opt(q)
	}

	return q
}

// Declare declares the queue, retry queue and dead-letter queue of every
// logical queue given.
func (q *Queue) Declare(ctx context.Context, logical ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channel()
	if err != nil {
		return err
	}

	for _, name := range logical {
		for _, physical := range QueueSet(name) {
			if err := q.ensureDeclared(ch, physical); err != nil {
				return err
			}
		}
	}
	return nil
}

// Push implements messaging.Queue
func (q *Queue) Push(ctx context.Context, queue string, body []byte) error {
	confirm, err := q.publish(ctx, queue, body)
	if err != nil {
		return err
	}
	if confirm == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, q.confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return &ChannelError{Op: "confirm", Queue: queue, Err: err, Timestamp: time.Now()}
	}
	if !acked {
		return &ChannelError{Op: "confirm", Queue: queue, Err: ErrPublishNotConfirmed, Timestamp: time.Now()}
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, queue string, body []byte) (*amqp.DeferredConfirmation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channel()
	if err != nil {
		return nil, err
	}
	if err := q.ensureDeclared(ch, queue); err != nil {
		return nil, err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		q.reset()
		return nil, &ChannelError{Op: "publish", Queue: queue, Err: err, Timestamp: time.Now()}
	}

	q.logger.Debug("Published job", "queue", queue, "messageId", msg.MessageId)
	return confirm, nil
}

// Pop implements messaging.Queue
func (q *Queue) Pop(ctx context.Context, queue string) (*messaging.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channel()
	if err != nil {
		return nil, err
	}
	if err := q.ensureDeclared(ch, queue); err != nil {
		return nil, err
	}

	d, ok, err := ch.Get(queue, false)
	if err != nil {
		q.reset()
		return nil, &ChannelError{Op: "get", Queue: queue, Err: err, Timestamp: time.Now()}
	}
	if !ok {
		return nil, messaging.ErrQueueEmpty
	}

	q.unacked[d.DeliveryTag] = struct{}{}

	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}
	return &messaging.Delivery{
		ID:    id,
		Queue: queue,
		Body:  d.Body,
		Tag:   d.DeliveryTag,
	}, nil
}

// Delete implements messaging.Queue by acknowledging the delivery
func (q *Queue) Delete(ctx context.Context, d *messaging.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.unacked[d.Tag]; !ok || q.ch == nil {
		return fmt.Errorf("%w: %s", messaging.ErrUnknownDelivery, d.ID)
	}

	if err := q.ch.Ack(d.Tag, false); err != nil {
		q.reset()
		return &ChannelError{Op: "ack", Queue: d.Queue, Err: err, Timestamp: time.Now()}
	}
	delete(q.unacked, d.Tag)
	return nil
}

// Release implements messaging.Releaser by rejecting the delivery with
// requeue so the broker hands it out again.
func (q *Queue) Release(ctx context.Context, d *messaging.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.unacked[d.Tag]; !ok || q.ch == nil {
		return fmt.Errorf("%w: %s", messaging.ErrUnknownDelivery, d.ID)
	}

	if err := q.ch.Nack(d.Tag, false, true); err != nil {
		q.reset()
		return &ChannelError{Op: "nack", Queue: d.Queue, Err: err, Timestamp: time.Now()}
	}
	delete(q.unacked, d.Tag)
	return nil
}

// Close closes the channel. Unacknowledged jobs return to their queues.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ch == nil {
		return nil
	}
	err := q.ch.Close()
	q.ch = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// channel must be called with mu held
func (q *Queue) channel() (Channel, error) {
	if q.ch != nil {
		return q.ch, nil
	}
	if q.open == nil {
		return nil, ErrConnectionNotReady
	}

	ch, err := q.open()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, &ChannelError{Op: "confirm mode", Err: err, Timestamp: time.Now()}
	}

	q.ch = ch
	q.declared = make(map[string]struct{})
	q.unacked = make(map[uint64]struct{})
	return ch, nil
}

// ensureDeclared must be called with mu held
func (q *Queue) ensureDeclared(ch Channel, name string) error {
	if _, ok := q.declared[name]; ok {
		return nil
	}
	if err := declareQueue(ch, name); err != nil {
		q.reset()
		return err
	}
	q.declared[name] = struct{}{}
	return nil
}

// reset drops a broken channel so the next call opens a fresh one.
// Delivery tags of the old channel become unknown.
func (q *Queue) reset() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	q.ch = nil
	q.declared = nil
	q.unacked = nil
}
