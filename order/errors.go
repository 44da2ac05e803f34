package order

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned when a repository has no order with the given id
	ErrOrderNotFound = errors.New("order not found")
	// ErrMissingOrder is returned by a step that runs before an order was created
	ErrMissingOrder = errors.New("saga context holds no order")
	// ErrInvalidPayload is returned when a queue message lacks required fields
	ErrInvalidPayload = errors.New("invalid message payload")
)

// ServiceError is a non-successful response from an external service
type ServiceError struct {
	Service    string
	Path       string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service %s failed with status %d", e.Service, e.Path, e.StatusCode)
}

// Code returns the HTTP status code
func (e *ServiceError) Code() string {
	return fmt.Sprintf("%d", e.StatusCode)
}

// Kind names the error in failure logs
func (e *ServiceError) Kind() string {
	return "ServiceError"
}
