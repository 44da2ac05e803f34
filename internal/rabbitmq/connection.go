package rabbitmq

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 5 * time.Minute
	dialTimeout           = 30 * time.Second
)

// ConnectionManager owns the broker connection and re-dials it when the
// broker closes it.
type ConnectionManager struct {
	url            string
	dial           func(url string) (*amqp.Connection, error)
	mu             sync.RWMutex
	conn           *amqp.Connection
	connected      bool
	reconnectDelay time.Duration
	maxRetries     int
	logger         *slog.Logger
	done           chan struct{}
	closeOnce      sync.Once
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithConnectionLogger sets the logger
func WithConnectionLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithReconnectDelay sets the base delay between reconnection attempts
func WithReconnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.reconnectDelay = delay
	}
}

// WithMaxRetries bounds reconnection attempts. A negative value retries forever.
func WithMaxRetries(retries int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxRetries = retries
	}
}

// NewConnectionManager creates a manager for the given AMQP URL
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:            url,
		dial:           amqp.Dial,
		reconnectDelay: defaultReconnectDelay,
		maxRetries:     -1,
		logger:         slog.Default(),
		done:           make(chan struct{}),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect dials the broker and starts watching the connection
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connected {
		return nil
	}

	conn, err := cm.dialContext(ctx)
	if err != nil {
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	cm.attach(conn)
	cm.logger.Info("Connected to RabbitMQ", "url", SanitizeURL(cm.url))
	return nil
}

// Channel opens a new channel on the current connection
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	conn, err := cm.connection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err, Timestamp: time.Now()}
	}
	return ch, nil
}

// IsConnected reports whether a live connection is held
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connected
}

// Close stops reconnecting and closes the connection
func (cm *ConnectionManager) Close() error {
	cm.closeOnce.Do(func() { close(cm.done) })

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connected = false
	if cm.conn == nil {
		return nil
	}
	err := cm.conn.Close()
	cm.conn = nil
	return err
}

func (cm *ConnectionManager) connection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	select {
	case <-cm.done:
		return nil, ErrConnectionClosed
	default:
	}

	if !cm.connected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}
	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}
	return cm.conn, nil
}

// attach must be called with mu held
func (cm *ConnectionManager) attach(conn *amqp.Connection) {
	cm.conn = conn
	cm.connected = true

	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go cm.watch(notify)
}

func (cm *ConnectionManager) dialContext(ctx context.Context) (*amqp.Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	type result struct {
		conn *amqp.Connection
		err  error
	}
	results := make(chan result, 1)

	go func() {
		conn, err := cm.dial(cm.url)
		results <- result{conn: conn, err: err}
	}()

	select {
	case r := <-results:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ErrConnectionTimeout
	}
}

func (cm *ConnectionManager) watch(notify <-chan *amqp.Error) {
	select {
	case err, ok := <-notify:
		if !ok || err == nil {
			// graceful close
			return
		}
		cm.logger.Error("RabbitMQ connection closed", "error", err)

		cm.mu.Lock()
		cm.connected = false
		cm.conn = nil
		cm.mu.Unlock()

		cm.reconnect()
	case <-cm.done:
	}
}

func (cm *ConnectionManager) reconnect() {
	start := time.Now()

	for attempt := 0; cm.maxRetries < 0 || attempt < cm.maxRetries; attempt++ {
		if attempt > 0 {
			delay := cm.backoff(attempt)
			select {
			case <-time.After(delay):
			case <-cm.done:
				return
			}
		}

		cm.logger.Info("Reconnecting to RabbitMQ", "attempt", attempt+1, "maxRetries", cm.maxRetries)

		conn, err := cm.dialContext(context.Background())
		if err != nil {
			cm.logger.Error("Reconnection failed", "attempt", attempt+1, "error", err)
			continue
		}

		cm.mu.Lock()
		select {
		case <-cm.done:
			cm.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		cm.attach(conn)
		cm.mu.Unlock()

		cm.logger.Info("Reconnected to RabbitMQ",
			"attempts", attempt+1,
			"duration", time.Since(start))
		return
	}

	cm.logger.Error("Giving up on RabbitMQ connection",
		"error", &ConnectionError{
			Op:        "reconnect",
			URL:       SanitizeURL(cm.url),
			Err:       ErrMaxRetriesExceeded,
			Timestamp: time.Now(),
			Attempts:  cm.maxRetries,
		})
}

// backoff doubles the base delay per attempt, capped, with +-12.5% jitter
func (cm *ConnectionManager) backoff(attempt int) time.Duration {
	base := cm.reconnectDelay
	if base <= 0 {
		base = defaultReconnectDelay
	}

	delay := maxReconnectDelay
	if attempt < 16 {
		delay = min(base*time.Duration(1<<uint(attempt)), maxReconnectDelay)
	}

	jitter := delay / 4
	if jitter <= 0 {
		return delay
	}
	return delay - jitter/2 + time.Duration(rand.Int63n(int64(jitter)))
}
