package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-payments/internal/models"
)

// InsertCart stores a cart and its items.
func (d *DB) InsertCart(ctx context.Context, c *models.Cart) error {
	return d.InTx(ctx, func(ctx context.Context, tx *DB) error {
		if _, err := tx.Bun.NewInsert().Model(c).Exec(ctx); err != nil {
			return fmt.Errorf("insert cart %s: %w", c.ID, err)
		}
		for i := range c.Items {
			c.Items[i].CartID = c.ID
		}
		if len(c.Items) > 0 {
			if _, err := tx.Bun.NewInsert().Model(&c.Items).Returning("id").Exec(ctx); err != nil {
				return fmt.Errorf("insert items for cart %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetCart loads a cart with its items in insertion order.
func (d *DB) GetCart(ctx context.Context, id string) (*models.Cart, error) {
	var c models.Cart
	err := d.Bun.NewSelect().
		Model(&c).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("id ASC")
		}).
		Where("cart.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "cart", id)
	}
	return &c, nil
}

// MarkCartConverted binds the cart to orderID once. It reports false when the
// cart was already converted.
func (d *DB) MarkCartConverted(ctx context.Context, cartID, orderID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("converted_order_id = ?", orderID).
		Where("id = ?", cartID).
		Where("converted_order_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark cart %s converted: %w", cartID, err)
	}
	return affectedOne(res)
}

// SetItemFiscalCode caches a fiscal code resolved from the catalog.
func (d *DB) SetItemFiscalCode(ctx context.Context, itemID int64, code, packageCode string) error {
	q := d.Bun.NewUpdate().
		Model((*models.CartItem)(nil)).
		Set("fiscal_code = ?", code).
		Where("id = ?", itemID)
	if packageCode != "" {
		q = q.Set("package_code = ?", packageCode)
	}
	_, err := q.Exec(ctx)
	return err
}
