package order

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/glimte/sagaflow-go/internal/reliability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() StoreOrderRequest {
	return StoreOrderRequest{
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		Product:       "Keyboard",
		Quantity:      2,
		TotalPrice:    150,
	}
}

func TestStoreOrderRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*StoreOrderRequest)
		field  string
	}{
		{"missing name", func(r *StoreOrderRequest) { r.CustomerName = "" }, "customer_name"},
		{"long name", func(r *StoreOrderRequest) { r.CustomerName = strings.Repeat("a", 256) }, "customer_name"},
		{"missing email", func(r *StoreOrderRequest) { r.CustomerEmail = "" }, "customer_email"},
		{"invalid email", func(r *StoreOrderRequest) { r.CustomerEmail = "not-an-email" }, "customer_email"},
		{"display name email", func(r *StoreOrderRequest) { r.CustomerEmail = "Jane <jane@example.com>" }, "customer_email"},
		{"missing product", func(r *StoreOrderRequest) { r.Product = "" }, "product"},
		{"zero quantity", func(r *StoreOrderRequest) { r.Quantity = 0 }, "quantity"},
		{"zero total", func(r *StoreOrderRequest) { r.TotalPrice = 0 }, "total_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.modify(&req)

			err := req.Validate()
			var verr *reliability.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("valid request", func(t *testing.T) {
		assert.NoError(t, validRequest().Validate())
	})

	t.Run("reports every violation", func(t *testing.T) {
		err := StoreOrderRequest{}.Validate()
		require.Error(t, err)
		for _, field := range []string{"customer_name", "customer_email", "product", "quantity", "total_price"} {
			assert.Contains(t, err.Error(), field)
		}
	})
}

func TestRequestFromData(t *testing.T) {
	t.Run("decodes json numbers", func(t *testing.T) {
		req, err := RequestFromData(map[string]any{
			"customer_name":  "Jane Doe",
			"customer_email": "jane@example.com",
			"product":        "Keyboard",
			"quantity":       float64(2),
			"total_price":    float64(150),
		})
		require.NoError(t, err)
		assert.Equal(t, validRequest(), req)
	})

	t.Run("wrong types", func(t *testing.T) {
		_, err := RequestFromData(map[string]any{"quantity": "two"})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("create assigns ids", func(t *testing.T) {
		repo := NewMemoryRepository()
		first := Order{Product: "a", Status: StatusPending}
		second := Order{Product: "b", Status: StatusPending}

		require.NoError(t, repo.Create(ctx, &first))
		require.NoError(t, repo.Create(ctx, &second))

		assert.Equal(t, int64(1), first.ID)
		assert.Equal(t, int64(2), second.ID)
		assert.False(t, first.CreatedAt.IsZero())

		got, err := repo.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "b", got.Product)
		assert.Len(t, repo.List(ctx), 2)
	})

	t.Run("update", func(t *testing.T) {
		repo := NewMemoryRepository()
		o := Order{Product: "a", Status: StatusPending}
		require.NoError(t, repo.Create(ctx, &o))

		o.Status = StatusConfirmed
		require.NoError(t, repo.Update(ctx, &o))

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, got.Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		repo := NewMemoryRepository()
		_, err := repo.Get(ctx, 9)
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.ErrorIs(t, repo.Update(ctx, &Order{ID: 9}), ErrOrderNotFound)
	})
}

func TestServiceClient(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes successful responses", func(t *testing.T) {
		services, server := newFakeServices(t)
		payments := NewPaymentClient(newTestClient(server.URL))

		amount, err := payments.Pay(ctx, PaymentRequest{OrderID: 3, CustomerEmail: "jane@example.com", Product: "Keyboard"})
		require.NoError(t, err)
		assert.Equal(t, 149.9, amount)

		calls := services.callsTo("/pay")
		require.Len(t, calls, 1)
		assert.Equal(t, map[string]any{"order_id": float64(3), "customer_email": "jane@example.com", "product": "Keyboard"}, calls[0])
	})

	t.Run("numeric protocol", func(t *testing.T) {
		services, server := newFakeServices(t)
		services.respond("/refund", map[string]any{"protocol": 12345})

		protocol, err := NewPaymentClient(newTestClient(server.URL)).Refund(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, "12345", protocol)
	})

	t.Run("failed status is a service error", func(t *testing.T) {
		services, server := newFakeServices(t)
		services.fail("/subscribe", http.StatusBadGateway)

		_, err := NewSubscriptionClient(newTestClient(server.URL)).Subscribe(ctx, SubscriptionRequest{OrderID: 1})

		var serr *ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
		assert.Equal(t, "502", serr.Code())
		assert.Equal(t, "/subscribe", serr.Path)
	})

	t.Run("missing subscription id", func(t *testing.T) {
		services, server := newFakeServices(t)
		services.respond("/subscribe", map[string]any{})

		_, err := NewSubscriptionClient(newTestClient(server.URL)).Subscribe(ctx, SubscriptionRequest{OrderID: 1})
		assert.Error(t, err)
	})

	t.Run("success false body is a service error", func(t *testing.T) {
		services, server := newFakeServices(t)
		services.respond("/notify", map[string]any{"success": false, "sent": false})

		err := NewNotificationClient(newTestClient(server.URL)).Notify(ctx, Notification{Email: "jane@example.com"})

		var serr *ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusOK, serr.StatusCode)
		assert.Equal(t, "/notify", serr.Path)
	})

	t.Run("breaker opens after repeated failures", func(t *testing.T) {
		services, server := newFakeServices(t)
		services.fail("/notify", http.StatusInternalServerError)

		client := NewServiceClient(server.URL, WithCircuitBreaker(
			reliability.NewCircuitBreaker(reliability.WithFailureThreshold(2)),
		))
		notifications := NewNotificationClient(client)

		for i := 0; i < 2; i++ {
			err := notifications.Notify(ctx, Notification{Email: "jane@example.com"})
			var serr *ServiceError
			assert.True(t, errors.As(err, &serr))
		}

		err := notifications.Notify(ctx, Notification{Email: "jane@example.com"})
		assert.ErrorIs(t, err, reliability.ErrCircuitOpen)
		assert.Len(t, services.callsTo("/notify"), 2)
	})
}
