package messaging

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// Router maps logical queue names to handler factories. Workers consuming
// "orders", "orders_retry" or "orders_dlq" all resolve through the message's
// logical name, so they share one registration.
type Router struct {
	handlers *xsync.MapOf[string, HandlerFactory]
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{handlers: xsync.NewMapOf[string, HandlerFactory]()}
}

// Register binds a handler factory to a logical queue. A later registration
// for the same name replaces the earlier one.
func (r *Router) Register(queue string, factory HandlerFactory) {
	r.handlers.Store(queue, factory)
}

// Resolve returns the handler factory for a logical queue
func (r *Router) Resolve(queue string) (HandlerFactory, error) {
	factory, ok := r.handlers.Load(queue)
	if !ok {
		return nil, fmt.Errorf("%w for queue %q", ErrHandlerNotFound, queue)
	}
	return factory, nil
}

// Queues returns the registered logical queue names
func (r *Router) Queues() []string {
	queues := make([]string, 0, r.handlers.Size())
	r.handlers.Range(func(queue string, _ HandlerFactory) bool {
		queues = append(queues, queue)
		return true
	})
	return queues
}
