// Package store persists ledger rows, payment sessions, carts and orders with
// bun. Every method works both on the pool and inside InTx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-payments/internal/apperr"
	"ms-payments/internal/models"
)

type DB struct {
	Bun bun.IDB
}

func New(db *bun.DB) *DB {
	return &DB{Bun: db}
}

// InTx runs fn inside a transaction. Nested calls reuse the outer one.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	if _, ok := d.Bun.(bun.Tx); ok {
		return fn(ctx, d)
	}
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}

// CreateSchema creates every table from the models. Tests and local runs use
// it where the SQL migrations are not available.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range []interface{}{
		(*models.Cart)(nil),
		(*models.CartItem)(nil),
		(*models.Transaction)(nil),
		(*models.PaymentSession)(nil),
		(*models.Order)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
