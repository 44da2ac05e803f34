package rabbitmq

import (
	"github.com/glimte/sagaflow-go/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSet returns the physical queues backing a logical queue: the queue
// itself, its retry queue and its dead-letter queue.
func QueueSet(logical string) []string {
	return []string{
		logical,
		messaging.RetryQueue(logical),
		messaging.DeadLetterQueue(logical),
	}
}

// declareQueue declares a durable, non-exclusive queue
func declareQueue(ch Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{},
	)
	if err != nil {
		return &TopologyError{Queue: name, Err: err}
	}
	return nil
}
