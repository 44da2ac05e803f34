package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"unicode/utf8"

	"github.com/glimte/sagaflow-go/internal/reliability"
)

const maxFieldLength = 255

// StoreOrderRequest is the input for placing an order
type StoreOrderRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Product       string `json:"product"`
	Quantity      int    `json:"quantity"`
	TotalPrice    int64  `json:"total_price"`
}

// Validate returns every field violation joined together, or nil
func (r StoreOrderRequest) Validate() error {
	var errs []error
	invalid := func(field, format string, args ...any) {
		errs = append(errs, &reliability.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	checkString := func(field, value string) bool {
		if value == "" {
			invalid(field, "The %s field is required.", field)
			return false
		}
		if utf8.RuneCountInString(value) > maxFieldLength {
			invalid(field, "The %s field must not be greater than %d characters.", field, maxFieldLength)
			return false
		}
		return true
	}

	checkString("customer_name", r.CustomerName)
	if checkString("customer_email", r.CustomerEmail) {
		if addr, err := mail.ParseAddress(r.CustomerEmail); err != nil || addr.Address != r.CustomerEmail {
			invalid("customer_email", "The customer_email field must be a valid email address.")
		}
	}
	checkString("product", r.Product)
	if r.Quantity < 1 {
		invalid("quantity", "The quantity field must be at least 1.")
	}
	if r.TotalPrice < 1 {
		invalid("total_price", "The total_price field must be at least 1.")
	}

	return errors.Join(errs...)
}

// Values returns the request as saga context values and queue message data
func (r StoreOrderRequest) Values() map[string]any {
	return map[string]any{
		"customer_name":  r.CustomerName,
		"customer_email": r.CustomerEmail,
		"product":        r.Product,
		"quantity":       r.Quantity,
		"total_price":    r.TotalPrice,
	}
}

// RequestFromData decodes a request from queue message data
func RequestFromData(data map[string]any) (StoreOrderRequest, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return StoreOrderRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var req StoreOrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return StoreOrderRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return req, nil
}
