package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/glimte/sagaflow-go/internal/reliability"
)

// ServiceClient posts JSON to the external order services. Every call goes
// through a circuit breaker so a dead service fails fast.
type ServiceClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *reliability.CircuitBreaker
	logger     *slog.Logger
}

// ClientOption configures the ServiceClient
type ClientOption func(*ServiceClient)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ServiceClient) {
		c.httpClient = client
	}
}

// WithCircuitBreaker replaces the circuit breaker
func WithCircuitBreaker(breaker *reliability.CircuitBreaker) ClientOption {
	return func(c *ServiceClient) {
		c.breaker = breaker
	}
}

// WithClientLogger sets the logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *ServiceClient) {
		c.logger = logger
	}
}

// NewServiceClient creates a client for the services at baseURL
func NewServiceClient(baseURL string, options ...ClientOption) *ServiceClient {
	c := &ServiceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.breaker == nil {
		c.breaker = reliability.NewCircuitBreaker(
			reliability.WithName("order-services"),
			reliability.WithBreakerLogger(c.logger),
		)
	}

	return c
}

// Post sends payload to path and decodes the JSON response into out, which may be nil.
// A non-2xx status or a body with "success": false is returned as *ServiceError.
func (c *ServiceClient) Post(ctx context.Context, service, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", service, err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create %s request: %w", service, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call %s service: %w", service, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read %s response: %w", service, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.logger.Warn("External service call failed",
				"service", service,
				"path", path,
				"status", resp.StatusCode)
			return &ServiceError{
				Service:    service,
				Path:       path,
				StatusCode: resp.StatusCode,
				Body:       string(raw),
			}
		}

		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}

		var status struct {
			Success *bool `json:"success"`
		}
		if err := json.Unmarshal(raw, &status); err == nil && status.Success != nil && !*status.Success {
			c.logger.Warn("External service reported failure",
				"service", service,
				"path", path)
			return &ServiceError{
				Service:    service,
				Path:       path,
				StatusCode: resp.StatusCode,
				Body:       string(raw),
			}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", service, err)
		}
		return nil
	})
}
