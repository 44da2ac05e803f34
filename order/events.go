package order

import (
	"context"
	"fmt"

	"github.com/glimte/sagaflow-go/messaging"
	"github.com/glimte/sagaflow-go/saga"
)

// EventOrderConfirmed is the name of OrderConfirmedEvent
const EventOrderConfirmed = "order.confirmed"

// QueueNotifications carries customer notifications
const QueueNotifications = "notifications"

// OrderConfirmedEvent is emitted once an order saga has succeeded
type OrderConfirmedEvent struct {
	Order Order
}

// EventName implements saga.Event
func (OrderConfirmedEvent) EventName() string { return EventOrderConfirmed }

func confirmedEvent(_ context.Context, sc *saga.Context) (saga.Event, error) {
	o, err := currentOrder(sc)
	if err != nil {
		return nil, err
	}
	return OrderConfirmedEvent{Order: o}, nil
}

// OrderConfirmedListener queues a confirmation email for the customer
type OrderConfirmedListener struct {
	producer *messaging.QueueProducer
}

// NewOrderConfirmedListener creates a listener publishing through producer,
// which should be bound to the notifications queue.
func NewOrderConfirmedListener(producer *messaging.QueueProducer) *OrderConfirmedListener {
	return &OrderConfirmedListener{producer: producer}
}

// Handle implements saga.Listener
func (l *OrderConfirmedListener) Handle(ctx context.Context, event saga.Event) error {
	confirmed, ok := event.(OrderConfirmedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	_, err := l.producer.Publish(ctx, "order-confirmed", map[string]any{
		"email":   confirmed.Order.CustomerEmail,
		"subject": "Order Confirmed",
		"message": fmt.Sprintf("Your order for %s has been confirmed.", confirmed.Order.Product),
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue order confirmation: %w", err)
	}
	return nil
}
