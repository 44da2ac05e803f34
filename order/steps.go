package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/glimte/sagaflow-go/saga"
)

// Step ids of the order saga
const (
	StepCreateOrder              saga.StepID = "create_order"
	StepProcessPayment           saga.StepID = "process_payment"
	StepSubscribeExternalService saga.StepID = "subscribe_external_service"
	StepConfirmOrder             saga.StepID = "confirm_order"
)

// Context keys written by the steps
const (
	KeyOrder                  = "order"
	KeyAmount                 = "amount"
	KeyRefundProtocol         = "refund_protocol"
	KeyExternalSubscriptionID = "external_subscription_id"
)

// Dependencies are the collaborators the order steps need
type Dependencies struct {
	Orders        Repository
	Payments      *PaymentClient
	Subscriptions *SubscriptionClient
}

// RegisterSteps registers every order step in registry
func RegisterSteps(registry *saga.StepRegistry, deps Dependencies) error {
	if deps.Orders == nil {
		return errors.New("order steps need a repository")
	}

	defs := []saga.StepDefinition{
		{
			ID:  StepCreateOrder,
			New: func() saga.Step { return &createOrderStep{orders: deps.Orders} },
		},
		{
			ID:  StepProcessPayment,
			New: func() saga.Step { return &processPaymentStep{orders: deps.Orders, payments: deps.Payments} },
		},
		{
			ID:  StepSubscribeExternalService,
			New: func() saga.Step { return &subscribeStep{orders: deps.Orders, subscriptions: deps.Subscriptions} },
		},
		{
			ID:    StepConfirmOrder,
			New:   func() saga.Step { return &confirmOrderStep{orders: deps.Orders} },
			Event: confirmedEvent,
		},
	}

	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register step %s: %w", def.ID, err)
		}
	}
	return nil
}

func currentOrder(sc *saga.Context) (Order, error) {
	o, ok := saga.Value[Order](sc, KeyOrder)
	if !ok {
		return Order{}, ErrMissingOrder
	}
	return o, nil
}

// save persists o and stores it back into the saga context
func save(ctx context.Context, orders Repository, sc *saga.Context, o Order) error {
	if err := orders.Update(ctx, &o); err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	sc.Set(KeyOrder, o)
	return nil
}

func markFailed(ctx context.Context, orders Repository, sc *saga.Context) error {
	o, ok := saga.Value[Order](sc, KeyOrder)
	if !ok {
		return nil
	}
	o.Status = StatusFailed
	return save(ctx, orders, sc, o)
}

type createOrderStep struct {
	orders Repository
}

func (s *createOrderStep) Run(ctx context.Context, sc *saga.Context) error {
	quantity, _ := saga.Value[int](sc, "quantity")
	totalPrice, _ := saga.Value[int64](sc, "total_price")
	customerName, _ := saga.Value[string](sc, "customer_name")
	customerEmail, _ := saga.Value[string](sc, "customer_email")
	product, _ := saga.Value[string](sc, "product")

	o := Order{
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Product:       product,
		Quantity:      quantity,
		TotalPrice:    totalPrice,
		Status:        StatusPending,
	}
	if err := s.orders.Create(ctx, &o); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	sc.Set(KeyOrder, o)
	return nil
}

func (s *createOrderStep) Rollback(ctx context.Context, sc *saga.Context) error {
	return markFailed(ctx, s.orders, sc)
}

type processPaymentStep struct {
	orders   Repository
	payments *PaymentClient
}

func (s *processPaymentStep) Run(ctx context.Context, sc *saga.Context) error {
	o, err := currentOrder(sc)
	if err != nil {
		return err
	}

	amount, err := s.payments.Pay(ctx, PaymentRequest{
		OrderID:       o.ID,
		CustomerEmail: o.CustomerEmail,
		Product:       o.Product,
	})
	if err != nil {
		return err
	}

	o.Amount = amount
	if err := save(ctx, s.orders, sc, o); err != nil {
		return err
	}
	sc.Set(KeyAmount, amount)
	return nil
}

func (s *processPaymentStep) Rollback(ctx context.Context, sc *saga.Context) error {
	amount, ok := saga.Value[float64](sc, KeyAmount)
	if !ok || amount == 0 {
		return nil
	}

	protocol, err := s.payments.Refund(ctx, amount)
	if err != nil {
		return err
	}
	sc.Set(KeyRefundProtocol, protocol)
	return nil
}

type subscribeStep struct {
	orders        Repository
	subscriptions *SubscriptionClient
}

func (s *subscribeStep) Run(ctx context.Context, sc *saga.Context) error {
	o, err := currentOrder(sc)
	if err != nil {
		return err
	}

	id, err := s.subscriptions.Subscribe(ctx, SubscriptionRequest{
		OrderID:       o.ID,
		CustomerEmail: o.CustomerEmail,
		Product:       o.Product,
	})
	if err != nil {
		return err
	}

	o.ExternalSubscriptionID = id
	if err := save(ctx, s.orders, sc, o); err != nil {
		return err
	}
	sc.Set(KeyExternalSubscriptionID, id)
	return nil
}

func (s *subscribeStep) Rollback(ctx context.Context, sc *saga.Context) error {
	id, ok := saga.Value[string](sc, KeyExternalSubscriptionID)
	if !ok || id == "" {
		return nil
	}
	return s.subscriptions.Deactivate(ctx, id)
}

type confirmOrderStep struct {
	orders Repository
}

func (s *confirmOrderStep) Run(ctx context.Context, sc *saga.Context) error {
	o, err := currentOrder(sc)
	if err != nil {
		return err
	}
	o.Status = StatusConfirmed
	return save(ctx, s.orders, sc, o)
}

func (s *confirmOrderStep) Rollback(ctx context.Context, sc *saga.Context) error {
	return markFailed(ctx, s.orders, sc)
}
