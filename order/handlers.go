package order

import (
	"context"
	"fmt"

	"github.com/glimte/sagaflow-go/contracts"
	"github.com/glimte/sagaflow-go/messaging"
)

// QueueOrders carries asynchronous order placements
const QueueOrders = "orders"

// NotificationProcessor delivers queued notifications
type NotificationProcessor struct {
	notifications *NotificationClient
}

// NewNotificationProcessor creates the notifications queue processor
func NewNotificationProcessor(notifications *NotificationClient) *NotificationProcessor {
	return &NotificationProcessor{notifications: notifications}
}

// Process implements messaging.Processor
func (p *NotificationProcessor) Process(ctx context.Context, msg contracts.QueueMessage) error {
	data := msg.Data()

	var n Notification
	for field, dst := range map[string]*string{
		"email":   &n.Email,
		"subject": &n.Subject,
		"message": &n.Message,
	} {
		v, ok := data[field].(string)
		if !ok {
			return fmt.Errorf("%w: %s is missing", ErrInvalidPayload, field)
		}
		*dst = v
	}

	return p.notifications.Notify(ctx, n)
}

// PlaceOrderProcessor runs the order saga for requests taken off the orders queue
type PlaceOrderProcessor struct {
	service *Service
}

// NewPlaceOrderProcessor creates the orders queue processor
func NewPlaceOrderProcessor(service *Service) *PlaceOrderProcessor {
	return &PlaceOrderProcessor{service: service}
}

// Process implements messaging.Processor
func (p *PlaceOrderProcessor) Process(ctx context.Context, msg contracts.QueueMessage) error {
	req, err := RequestFromData(msg.Data())
	if err != nil {
		return err
	}
	_, err = p.service.PlaceOrder(ctx, req)
	return err
}

// RegisterHandlers routes the notifications and orders queues. Each consumed
// job gets a fresh QueueHandler wrapping the processor.
func RegisterHandlers(router *messaging.Router, dispatcher messaging.JobDispatcher, service *Service, notifications *NotificationClient, options ...messaging.QueueHandlerOption) {
	router.Register(QueueNotifications, func() messaging.Handler {
		return messaging.NewQueueHandler(NewNotificationProcessor(notifications), dispatcher, options...)
	})
	router.Register(QueueOrders, func() messaging.Handler {
		return messaging.NewQueueHandler(NewPlaceOrderProcessor(service), dispatcher, options...)
	})
}
