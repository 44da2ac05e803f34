package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// Status is the lifecycle state of an order
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Order is a customer order
type Order struct {
	ID                     int64     `json:"id"`
	CustomerName           string    `json:"customer_name"`
	CustomerEmail          string    `json:"customer_email"`
	Product                string    `json:"product"`
	Quantity               int       `json:"quantity"`
	TotalPrice             int64     `json:"total_price"`
	Amount                 float64   `json:"amount,omitempty"`
	ExternalSubscriptionID string    `json:"external_subscription_id,omitempty"`
	Status                 Status    `json:"status"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Repository stores orders
type Repository interface {
	// Create assigns the id and timestamps and stores the order
	Create(ctx context.Context, o *Order) error
	// Update overwrites a stored order and refreshes UpdatedAt
	Update(ctx context.Context, o *Order) error
	// Get returns ErrOrderNotFound for unknown ids
	Get(ctx context.Context, id int64) (Order, error)
}

// MemoryRepository keeps orders in memory ordered by id
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	orders *btree.Map[int64, Order]
	now    func() time.Time
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: btree.NewMap[int64, Order](16),
		now:    time.Now,
	}
}

// Create implements Repository
func (r *MemoryRepository) Create(ctx context.Context, o *Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.now().UTC()
	o.ID = r.nextID
	o.CreatedAt = now
	o.UpdatedAt = now
	r.orders.Set(o.ID, *o)
	return nil
}

// Update implements Repository
func (r *MemoryRepository) Update(ctx context.Context, o *Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders.Get(o.ID); !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, o.ID)
	}
	o.UpdatedAt = r.now().UTC()
	r.orders.Set(o.ID, *o)
	return nil
}

// Get implements Repository
func (r *MemoryRepository) Get(ctx context.Context, id int64) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders.Get(id)
	if !ok {
		return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return o, nil
}

// List returns every order in id order
func (r *MemoryRepository) List(ctx context.Context) []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders := make([]Order, 0, r.orders.Len())
	r.orders.Scan(func(_ int64, o Order) bool {
		orders = append(orders, o)
		return true
	})
	return orders
}
