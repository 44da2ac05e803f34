package order

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// PaymentRequest charges an order
type PaymentRequest struct {
	OrderID       int64  `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	Product       string `json:"product"`
}

// PaymentClient talks to the payment gateway
type PaymentClient struct {
	client *ServiceClient
}

// NewPaymentClient creates a payment gateway client
func NewPaymentClient(client *ServiceClient) *PaymentClient {
	return &PaymentClient{client: client}
}

// Pay charges the order and returns the charged amount
func (p *PaymentClient) Pay(ctx context.Context, req PaymentRequest) (float64, error) {
	var resp struct {
		Amount float64 `json:"amount"`
	}
	if err := p.client.Post(ctx, "payment", "/pay", req, &resp); err != nil {
		return 0, err
	}
	return resp.Amount, nil
}

// Refund returns amount to the customer and returns the refund protocol
func (p *PaymentClient) Refund(ctx context.Context, amount float64) (string, error) {
	var resp struct {
		Protocol json.RawMessage `json:"protocol"`
	}
	if err := p.client.Post(ctx, "payment", "/refund", map[string]any{"amount": amount}, &resp); err != nil {
		return "", err
	}
	return rawString(resp.Protocol), nil
}

// SubscriptionRequest subscribes an order to the external service
type SubscriptionRequest struct {
	OrderID       int64  `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	Product       string `json:"product"`
}

// SubscriptionClient talks to the external subscription service
type SubscriptionClient struct {
	client *ServiceClient
}

// NewSubscriptionClient creates a subscription client
func NewSubscriptionClient(client *ServiceClient) *SubscriptionClient {
	return &SubscriptionClient{client: client}
}

// Subscribe returns the external subscription id
func (s *SubscriptionClient) Subscribe(ctx context.Context, req SubscriptionRequest) (string, error) {
	var resp struct {
		SubscriptionID json.RawMessage `json:"subscription_id"`
	}
	if err := s.client.Post(ctx, "subscription", "/subscribe", req, &resp); err != nil {
		return "", err
	}

	id := rawString(resp.SubscriptionID)
	if id == "" {
		return "", errors.New("subscription service returned no subscription_id")
	}
	return id, nil
}

// Deactivate cancels a subscription
func (s *SubscriptionClient) Deactivate(ctx context.Context, subscriptionID string) error {
	return s.client.Post(ctx, "subscription", "/deactivate", map[string]any{"subscription_id": subscriptionID}, nil)
}

// Notification is an email sent to a customer
type Notification struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// NotificationClient talks to the notification service
type NotificationClient struct {
	client *ServiceClient
}

// NewNotificationClient creates a notification client
func NewNotificationClient(client *ServiceClient) *NotificationClient {
	return &NotificationClient{client: client}
}

// Notify sends the notification. A non-successful response is an error.
func (n *NotificationClient) Notify(ctx context.Context, notification Notification) error {
	return n.client.Post(ctx, "notification", "/notify", notification, nil)
}

// rawString reads a JSON string or number as text. The services send ids both ways.
func rawString(raw json.RawMessage) string {
	s := strings.Trim(string(raw), `"`)
	if s == "null" {
		return ""
	}
	return s
}
