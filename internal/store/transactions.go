package store

import (
	"context"
	"fmt"
	"time"

	"ms-payments/internal/models"
)

func (d *DB) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	if _, err := d.Bun.NewInsert().Model(tx).Exec(ctx); err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (d *DB) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := d.Bun.NewSelect().Model(&tx).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return &tx, nil
}

// TransitionTransaction writes columns of tx only while the stored state is
// still from. It reports whether this call won the transition. tx.State must
// already hold the target state and "state" must be among columns.
func (d *DB) TransitionTransaction(ctx context.Context, tx *models.Transaction, from models.TransactionState, columns ...string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(tx).
		Column(columns...).
		Where("id = ?", tx.ID).
		Where("state = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition transaction %s from %s: %w", tx.ID, from, err)
	}
	return affectedOne(res)
}

// SetTransactionOrder records which order a completed transaction produced.
func (d *DB) SetTransactionOrder(ctx context.Context, id, orderID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("order_id = ?", orderID).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// FindCreatedTransactionByAccount returns the CREATED row bound to account,
// if any.
func (d *DB) FindCreatedTransactionByAccount(ctx context.Context, account string) (*models.Transaction, error) {
	var tx models.Transaction
	err := d.Bun.NewSelect().
		Model(&tx).
		Where("account_ref = ?", account).
		Where("state = ?", models.StateCreated).
		OrderExpr("created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "transaction for account", account)
	}
	return &tx, nil
}

// ListTransactionsCreatedBetween returns rows with created_at in [from, to],
// oldest first.
func (d *DB) ListTransactionsCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := d.Bun.NewSelect().
		Model(&txs).
		Where("created_at >= ?", from).
		Where("created_at <= ?", to).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}
