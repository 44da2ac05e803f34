package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrConnectionClosed   = errors.New("rabbitmq: connection is closed")
	ErrConnectionNotReady = errors.New("rabbitmq: connection not ready")
	ErrMaxRetriesExceeded = errors.New("rabbitmq: maximum reconnection attempts exceeded")
	ErrConnectionTimeout  = errors.New("rabbitmq: connection timeout")

	ErrPublishNotConfirmed = errors.New("rabbitmq: publish not confirmed")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
	Attempts  int       // Number of attempts made
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("rabbitmq connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError represents a channel-related error
type ChannelError struct {
	Op        string    // Operation that failed
	Queue     string    // Queue involved, if any
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ChannelError) Error() string {
	if e.Queue != "" {
		return fmt.Sprintf("rabbitmq channel error: %s on queue %s: %v", e.Op, e.Queue, e.Err)
	}
	return fmt.Sprintf("rabbitmq channel error: %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// TopologyError represents a failed queue declaration
type TopologyError struct {
	Queue string
	Err   error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("rabbitmq topology error: failed to declare queue '%s': %v", e.Queue, e.Err)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

// SanitizeURL hides the password of an AMQP URL
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
