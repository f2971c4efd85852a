package store

import (
	"context"
	"fmt"
	"time"

	"ms-payments/internal/models"
)

func (d *DB) InsertOrder(ctx context.Context, o *models.Order) error {
	if _, err := d.Bun.NewInsert().Model(o).Exec(ctx); err != nil {
		return fmt.Errorf("insert order %s: %w", o.OrderID, err)
	}
	return nil
}

func (d *DB) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().Model(&o).Where("order_id = ?", orderID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	return &o, nil
}

func (d *DB) GetOrderByCart(ctx context.Context, cartID string) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().Model(&o).Where("cart_id = ?", cartID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order for cart", cartID)
	}
	return &o, nil
}

// UpdateOrderStatuses overwrites the statuses that are non-nil.
func (d *DB) UpdateOrderStatuses(ctx context.Context, orderID string, payment, fulfillment *string) (bool, error) {
	if payment == nil && fulfillment == nil {
		return false, nil
	}
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID)
	if payment != nil {
		q = q.Set("payment_status = ?", *payment)
	}
	if fulfillment != nil {
		q = q.Set("fulfillment_status = ?", *fulfillment)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update statuses of order %s: %w", orderID, err)
	}
	return affectedOne(res)
}

// CompleteOrder moves a pending order to completed. Only one caller ever sees
// true for a given order.
func (d *DB) CompleteOrder(ctx context.Context, orderID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderCompleted).
		Set("completed_at = ?", at).
		Set("updated_at = ?", at).
		Where("order_id = ?", orderID).
		Where("status = ?", models.OrderPending).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("complete order %s: %w", orderID, err)
	}
	return affectedOne(res)
}

// ListPendingOrderIDs returns up to limit pending order ids, oldest first.
func (d *DB) ListPendingOrderIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	q := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("order_id").
		Where("status = ?", models.OrderPending).
		OrderExpr("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return ids, nil
}
