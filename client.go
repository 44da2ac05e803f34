// Copyright 2024 Sagaflow Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sagaflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/glimte/sagaflow-go/contracts"
	"github.com/glimte/sagaflow-go/health"
	"github.com/glimte/sagaflow-go/internal/config"
	"github.com/glimte/sagaflow-go/internal/rabbitmq"
	"github.com/glimte/sagaflow-go/internal/redisqueue"
	"github.com/glimte/sagaflow-go/internal/reliability"
	"github.com/glimte/sagaflow-go/internal/store/sqlite"
	"github.com/glimte/sagaflow-go/messaging"
	"github.com/glimte/sagaflow-go/order"
	"github.com/glimte/sagaflow-go/saga"
)

// Client wires every collaborator once at startup: the queue driver, the
// router with its handlers, the producer, the step registry, the order saga,
// the event bus and the stores.
type Client struct {
	logger      *slog.Logger
	config      config.Config
	queue       messaging.Queue
	dispatcher  *messaging.QueueDispatcher
	producer    *messaging.Producer
	router      *messaging.Router
	registry    *saga.StepRegistry
	events      *saga.LocalEventBus
	failureLogs saga.FailureLogStore
	orders      order.Repository
	service     *order.Service
	reprocessor *reliability.Reprocessor
	health      *health.Registry
	closers     []func() error
}

// clientConfig holds client configuration
type clientConfig struct {
	logger     *slog.Logger
	queue      messaging.Queue
	httpClient *http.Client
	sleeper    saga.Sleeper
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithQueue uses queue instead of the configured driver
func WithQueue(queue messaging.Queue) ClientOption {
	return func(cfg *clientConfig) {
		cfg.queue = queue
	}
}

// WithHTTPClient sets the HTTP client used for the external services
func WithHTTPClient(client *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// WithSleeper replaces the timer the saga waits on between attempts
func WithSleeper(sleeper saga.Sleeper) ClientOption {
	return func(cfg *clientConfig) {
		cfg.sleeper = sleeper
	}
}

// NewClient builds a client from cfg. It connects the queue driver and opens
// the database, so Close must be called when done.
func NewClient(ctx context.Context, cfg config.Config, options ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := &clientConfig{logger: slog.Default()}
	for _, opt := range options {
		opt(opts)
	}

	c := &Client{
		logger: opts.logger,
		config: cfg,
		health: health.NewRegistry(),
	}
	c.health.Register(health.NewGoroutineChecker(500, 1000))

	if err := c.openQueue(ctx, opts.queue); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.openStores(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.wire(opts); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.logger.Info("Sagaflow client ready",
		"queueDriver", cfg.Queue.Driver,
		"queues", c.router.Queues())
	return c, nil
}

func (c *Client) openQueue(ctx context.Context, queue messaging.Queue) error {
	if queue != nil {
		c.queue = queue
		return nil
	}

	switch c.config.Queue.Driver {
	case config.DriverRabbitMQ:
		conn := rabbitmq.NewConnectionManager(c.config.Queue.AMQPURL,
			rabbitmq.WithConnectionLogger(c.logger))
		if err := conn.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect queue driver: %w", err)
		}
		c.closers = append(c.closers, conn.Close)
		c.health.Register(health.NewRabbitMQChecker(conn))

		q := rabbitmq.NewQueue(conn, rabbitmq.WithQueueLogger(c.logger))
		c.closers = append(c.closers, q.Close)
		if err := q.Declare(ctx, order.QueueNotifications, order.QueueOrders); err != nil {
			return fmt.Errorf("failed to declare queues: %w", err)
		}
		c.queue = q

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{Addr: c.config.Queue.RedisAddr})
		c.closers = append(c.closers, client.Close)

		q := redisqueue.New(client, redisqueue.WithLogger(c.logger))
		if err := q.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect queue driver: %w", err)
		}
		c.queue = q
		c.health.Register(health.NewPingChecker("redis", q.Ping))

	default:
		c.queue = messaging.NewMemoryQueue()
	}
	return nil
}

func (c *Client) openStores() error {
	if c.config.Database.Path == "" {
		c.failureLogs = saga.NewMemoryFailureLogStore()
		c.orders = order.NewMemoryRepository()
		return nil
	}

	store, err := sqlite.Open(c.config.Database.Path)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, store.Close)
	c.health.Register(health.NewPingChecker("database", store.Ping))
	c.failureLogs = store.FailureLogs()
	c.orders = store.Orders()
	return nil
}

func (c *Client) wire(opts *clientConfig) error {
	c.dispatcher = messaging.NewQueueDispatcher(c.queue, messaging.WithDispatcherLogger(c.logger))
	c.producer = messaging.NewProducer(c.dispatcher, messaging.WithProducerLogger(c.logger))
	c.router = messaging.NewRouter()
	c.registry = saga.NewStepRegistry()
	c.events = saga.NewLocalEventBus()
	c.reprocessor = reliability.NewReprocessor(c.queue, c.dispatcher, reliability.WithReprocessorLogger(c.logger))

	httpClient := opts.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.config.Services.Timeout}
	}
	breaker := reliability.NewCircuitBreaker(
		reliability.WithName("order-services"),
		reliability.WithBreakerLogger(c.logger),
	)
	c.health.Register(health.NewBreakerChecker("order-services", breaker))
	services := order.NewServiceClient(c.config.Services.BaseURL,
		order.WithHTTPClient(httpClient),
		order.WithClientLogger(c.logger),
		order.WithCircuitBreaker(breaker),
	)

	if err := order.RegisterSteps(c.registry, order.Dependencies{
		Orders:        c.orders,
		Payments:      order.NewPaymentClient(services),
		Subscriptions: order.NewSubscriptionClient(services),
	}); err != nil {
		return err
	}

	c.events.Subscribe(order.EventOrderConfirmed,
		order.NewOrderConfirmedListener(messaging.NewQueueProducer(c.producer, order.QueueNotifications)))

	sagaOptions := []saga.OrchestratorOption{
		saga.WithFailureLogStore(c.failureLogs),
		saga.WithEventBus(c.events),
		saga.WithLogger(c.logger),
	}
	if opts.sleeper != nil {
		sagaOptions = append(sagaOptions, saga.WithSleeper(opts.sleeper))
	}

	plan := order.Plan{
		PaymentRetries: c.config.Saga.PaymentRetries,
		PaymentDelay:   c.config.Saga.PaymentDelay,
		Subscribe:      c.config.Saga.Subscribe,
	}
	c.service = order.NewService(order.NewPlaceOrderSaga(c.registry, plan, sagaOptions...), c.orders)

	order.RegisterHandlers(c.router, c.dispatcher, c.service, order.NewNotificationClient(services),
		messaging.WithMaxRetries(c.config.Queue.MaxRetries),
		messaging.WithHandlerLogger(c.logger),
		messaging.WithDeadLetterHook(func(_ context.Context, msg contracts.QueueMessage) {
			c.logger.Error("Message dead-lettered",
				"messageId", msg.ID(),
				"queue", msg.Queue(),
				"retryCount", msg.RetryCount())
		}),
	)
	return nil
}

// Queue returns the queue driver
func (c *Client) Queue() messaging.Queue {
	return c.queue
}

// Router returns the queue router
func (c *Client) Router() *messaging.Router {
	return c.router
}

// Producer returns the message producer
func (c *Client) Producer() *messaging.Producer {
	return c.producer
}

// Registry returns the saga step registry
func (c *Client) Registry() *saga.StepRegistry {
	return c.registry
}

// Events returns the event bus saga events are dispatched on
func (c *Client) Events() *saga.LocalEventBus {
	return c.events
}

// FailureLogs returns the saga failure log store
func (c *Client) FailureLogs() saga.FailureLogStore {
	return c.failureLogs
}

// Orders returns the order repository
func (c *Client) Orders() order.Repository {
	return c.orders
}

// PlaceOrder runs the order saga synchronously
func (c *Client) PlaceOrder(ctx context.Context, req order.StoreOrderRequest) (order.Order, error) {
	return c.service.PlaceOrder(ctx, req)
}

// EnqueueOrder publishes req to the orders queue for a worker to place
func (c *Client) EnqueueOrder(ctx context.Context, req order.StoreOrderRequest) (contracts.QueueMessage, error) {
	return order.Enqueue(ctx, messaging.NewQueueProducer(c.producer, order.QueueOrders), req)
}

// Publish sends a new message to a logical queue
func (c *Client) Publish(ctx context.Context, queue, source string, data, metadata map[string]any) (contracts.QueueMessage, error) {
	return c.producer.Publish(ctx, queue, source, data, metadata)
}

// ReprocessDLQ moves every job of a dead-letter queue back to its original queue
func (c *Client) ReprocessDLQ(ctx context.Context, dlqName string) (reliability.ReprocessResult, error) {
	return c.reprocessor.Reprocess(ctx, dlqName)
}

// Health runs every readiness check registered for the configured drivers
func (c *Client) Health(ctx context.Context) health.Report {
	return c.health.Check(ctx)
}

// NewWorker returns a worker consuming every routed queue and its retry queue
func (c *Client) NewWorker(options ...messaging.WorkerOption) *messaging.Worker {
	defaults := []messaging.WorkerOption{
		messaging.WithConcurrency(c.config.Worker.Concurrency),
		messaging.WithPollInterval(c.config.Worker.PollInterval),
		messaging.WithWorkerLogger(c.logger),
	}
	return messaging.NewWorker(c.queue, c.router,
		messaging.ConsumeQueues(c.router.Queues()...),
		append(defaults, options...)...)
}

// Close closes all resources in reverse order of opening
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
