package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/glimte/sagaflow-go/order"
)

// Compile-time interface check.
var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders in the orders table
type OrderRepository struct {
	store *Store
}

// Create implements order.Repository
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	now := r.store.now().UTC()

	res, err := r.store.db.ExecContext(ctx, `
		INSERT INTO orders (
			customer_name, customer_email, product, quantity, total_price,
			amount, external_subscription_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.CustomerName,
		o.CustomerEmail,
		o.Product,
		o.Quantity,
		o.TotalPrice,
		nullableAmount(o.Amount),
		nullableString(o.ExternalSubscriptionID),
		string(o.Status),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read order id: %w", err)
	}

	o.ID = id
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

// Update implements order.Repository
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	now := r.store.now().UTC()

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE orders SET
			customer_name = ?, customer_email = ?, product = ?, quantity = ?,
			total_price = ?, amount = ?, external_subscription_id = ?,
			status = ?, updated_at = ?
		WHERE id = ?
	`,
		o.CustomerName,
		o.CustomerEmail,
		o.Product,
		o.Quantity,
		o.TotalPrice,
		nullableAmount(o.Amount),
		nullableString(o.ExternalSubscriptionID),
		string(o.Status),
		formatTime(now),
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", order.ErrOrderNotFound, o.ID)
	}

	o.UpdatedAt = now
	return nil
}

// Get implements order.Repository
func (r *OrderRepository) Get(ctx context.Context, id int64) (order.Order, error) {
	var (
		o                    order.Order
		status               string
		amount               sql.NullFloat64
		subscriptionID       sql.NullString
		createdAt, updatedAt string
	)

	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_email, product, quantity, total_price,
		       amount, external_subscription_id, status, created_at, updated_at
		FROM orders
		WHERE id = ?
	`, id).Scan(
		&o.ID,
		&o.CustomerName,
		&o.CustomerEmail,
		&o.Product,
		&o.Quantity,
		&o.TotalPrice,
		&amount,
		&subscriptionID,
		&status,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, fmt.Errorf("%w: %d", order.ErrOrderNotFound, id)
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to query order %d: %w", id, err)
	}

	o.Amount = amount.Float64
	o.ExternalSubscriptionID = subscriptionID.String
	o.Status = order.Status(status)
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return order.Order{}, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func nullableAmount(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
