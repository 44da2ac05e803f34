package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/sagaflow-go/contracts"
)

// Producer creates envelopes and dispatches them to their logical queue
type Producer struct {
	dispatcher JobDispatcher
	logger     *slog.Logger
}

// ProducerOption configures the Producer
type ProducerOption func(*Producer)

// WithProducerLogger sets the logger
func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(p *Producer) {
		p.logger = logger
	}
}

// NewProducer creates a producer publishing through the given dispatcher
func NewProducer(dispatcher JobDispatcher, options ...ProducerOption) *Producer {
	p := &Producer{
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish wraps data in a new envelope for queue and dispatches it
func (p *Producer) Publish(ctx context.Context, queue, source string, data, metadata map[string]any) (contracts.QueueMessage, error) {
	if queue == "" {
		return contracts.QueueMessage{}, fmt.Errorf("queue name cannot be empty")
	}

	msg := contracts.NewQueueMessage(source, queue, data, metadata)
	if err := p.dispatcher.Dispatch(ctx, NewJob(msg)); err != nil {
		return contracts.QueueMessage{}, fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("Message published",
		"messageId", msg.ID(),
		"queue", queue,
		"source", source)
	return msg, nil
}

// QueueProducer publishes to one fixed logical queue
type QueueProducer struct {
	producer *Producer
	queue    string
}

// NewQueueProducer binds a producer to a logical queue
func NewQueueProducer(producer *Producer, queue string) *QueueProducer {
	return &QueueProducer{producer: producer, queue: queue}
}

// Queue returns the logical queue name
func (p *QueueProducer) Queue() string {
	return p.queue
}

// Publish dispatches data to the bound queue
func (p *QueueProducer) Publish(ctx context.Context, source string, data, metadata map[string]any) (contracts.QueueMessage, error) {
	return p.producer.Publish(ctx, p.queue, source, data, metadata)
}
