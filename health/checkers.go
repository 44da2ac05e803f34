package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/glimte/sagaflow-go/internal/rabbitmq"
	"github.com/glimte/sagaflow-go/internal/reliability"
)

// PingChecker reports unhealthy when ping fails
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker creates a checker around a ping function such as a Redis
// client's or a database's
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.name, Timestamp: start, Status: StatusHealthy, Message: "Ping succeeded"}

	if err := c.ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = "Ping failed"
		result.Error = err.Error()
	}

	result.Duration = time.Since(start)
	return result
}

// RabbitMQChecker checks the broker connection by opening a throwaway channel
type RabbitMQChecker struct {
	conn *rabbitmq.ConnectionManager
}

// NewRabbitMQChecker creates a new RabbitMQ health checker
func NewRabbitMQChecker(conn *rabbitmq.ConnectionManager) *RabbitMQChecker {
	return &RabbitMQChecker{conn: conn}
}

func (c *RabbitMQChecker) Name() string {
	return "rabbitmq"
}

func (c *RabbitMQChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Timestamp: start}

	if !c.conn.IsConnected() {
		result.Status = StatusUnhealthy
		result.Message = "Connection is not established"
		result.Duration = time.Since(start)
		return result
	}

	ch, err := c.conn.Channel()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "Failed to create channel"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	_ = ch.Close()

	result.Status = StatusHealthy
	result.Message = "Connection is healthy"
	result.Duration = time.Since(start)
	return result
}

// BreakerChecker reports the outbound circuit breaker. An open breaker only
// degrades the report since it recovers on its own.
type BreakerChecker struct {
	name    string
	breaker *reliability.CircuitBreaker
}

// NewBreakerChecker creates a checker for breaker
func NewBreakerChecker(name string, breaker *reliability.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

func (c *BreakerChecker) Name() string {
	return c.name
}

func (c *BreakerChecker) Check(ctx context.Context) CheckResult {
	state := c.breaker.State()
	result := CheckResult{
		Name:      c.name,
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("Circuit is %s", state),
		Details:   map[string]any{"state": state.String()},
	}
	if state != reliability.StateClosed {
		result.Status = StatusDegraded
	}
	return result
}

// GoroutineChecker flags a runaway number of goroutines
type GoroutineChecker struct {
	warning  int
	critical int
}

// NewGoroutineChecker creates a checker with the given thresholds
func NewGoroutineChecker(warning, critical int) *GoroutineChecker {
	return &GoroutineChecker{warning: warning, critical: critical}
}

func (c *GoroutineChecker) Name() string {
	return "goroutines"
}

func (c *GoroutineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	goroutines := runtime.NumGoroutine()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]any{
			"goroutines":     goroutines,
			"memory_used_mb": float64(m.Sys) / 1024 / 1024,
			"gc_runs":        m.NumGC,
		},
	}

	switch {
	case goroutines > c.critical:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Too many goroutines: %d", goroutines)
	case goroutines > c.warning:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "Goroutine count is normal"
	}

	result.Duration = time.Since(start)
	return result
}
