package order

import (
	"context"
	"fmt"
	"time"

	"github.com/glimte/sagaflow-go/contracts"
	"github.com/glimte/sagaflow-go/messaging"
	"github.com/glimte/sagaflow-go/saga"
)

// Plan tunes the order saga
type Plan struct {
	PaymentRetries int
	PaymentDelay   time.Duration
	// Subscribe adds the external subscription step after the payment
	Subscribe bool
}

// DefaultPlan retries the payment three times, ten seconds apart
func DefaultPlan() Plan {
	return Plan{PaymentRetries: 3, PaymentDelay: 10 * time.Second}
}

// NewPlaceOrderSaga builds the orchestrator that places an order
func NewPlaceOrderSaga(registry *saga.StepRegistry, plan Plan, options ...saga.OrchestratorOption) *saga.Orchestrator {
	o := saga.NewOrchestrator(registry, options...).
		AddStep(StepCreateOrder).
		AddStep(StepProcessPayment, saga.WithRetries(plan.PaymentRetries), saga.WithDelay(plan.PaymentDelay))
	if plan.Subscribe {
		o.AddStep(StepSubscribeExternalService)
	}
	return o.AddStep(StepConfirmOrder)
}

// Service places orders
type Service struct {
	saga   *saga.Orchestrator
	orders Repository
}

// NewService creates a service running orchestrator and reading orders back from orders
func NewService(orchestrator *saga.Orchestrator, orders Repository) *Service {
	return &Service{saga: orchestrator, orders: orders}
}

// PlaceOrder validates req and runs the order saga. It returns the stored
// order on success and the failing step's error otherwise.
func (s *Service) PlaceOrder(ctx context.Context, req StoreOrderRequest) (Order, error) {
	if err := req.Validate(); err != nil {
		return Order{}, err
	}

	sc, err := s.saga.Execute(ctx, saga.NewContextFrom(req.Values()))
	if err != nil {
		return Order{}, err
	}

	placed, err := currentOrder(sc)
	if err != nil {
		return Order{}, err
	}
	return s.orders.Get(ctx, placed.ID)
}

// Enqueue validates req and publishes it to the orders queue
func Enqueue(ctx context.Context, producer *messaging.QueueProducer, req StoreOrderRequest) (contracts.QueueMessage, error) {
	if err := req.Validate(); err != nil {
		return contracts.QueueMessage{}, err
	}

	msg, err := producer.Publish(ctx, "place-order", req.Values(), nil)
	if err != nil {
		return contracts.QueueMessage{}, fmt.Errorf("failed to queue order: %w", err)
	}
	return msg, nil
}
