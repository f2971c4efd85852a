package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/uptrace/bun"

	"ms-payments/internal/models"
)

func (d *DB) InsertSession(ctx context.Context, s *models.PaymentSession) error {
	if _, err := d.Bun.NewInsert().Model(s).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert payment session for cart %s: %w", s.CartID, err)
	}
	return nil
}

func (d *DB) GetSession(ctx context.Context, id int64) (*models.PaymentSession, error) {
	var s models.PaymentSession
	err := d.Bun.NewSelect().Model(&s).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "payment session", strconv.FormatInt(id, 10))
	}
	return &s, nil
}

func (d *DB) GetSessionByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentSession, error) {
	var s models.PaymentSession
	err := d.Bun.NewSelect().Model(&s).Where("correlation_id = ?", correlationID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "payment session", correlationID)
	}
	return &s, nil
}

func (d *DB) GetSessionByProviderTrans(ctx context.Context, provider, transID string) (*models.PaymentSession, error) {
	var s models.PaymentSession
	err := d.Bun.NewSelect().
		Model(&s).
		Where("provider = ?", provider).
		Where("provider_trans_id = ?", transID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "payment session for "+provider+" transaction", transID)
	}
	return &s, nil
}

// LatestSessionForCart returns the newest session for cart. An empty provider
// matches any provider; no states matches any state.
func (d *DB) LatestSessionForCart(ctx context.Context, cartID, provider string, states ...models.SessionState) (*models.PaymentSession, error) {
	var s models.PaymentSession
	q := d.Bun.NewSelect().Model(&s).Where("cart_id = ?", cartID)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if len(states) > 0 {
		vals := make([]string, len(states))
		for i, st := range states {
			vals[i] = string(st)
		}
		q = q.Where("state IN (?)", bun.In(vals))
	}
	err := q.OrderExpr("id DESC").Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "payment session for cart", cartID)
	}
	return &s, nil
}

// UpdateSession writes columns unconditionally.
func (d *DB) UpdateSession(ctx context.Context, s *models.PaymentSession, columns ...string) error {
	_, err := d.Bun.NewUpdate().Model(s).Column(columns...).Where("id = ?", s.ID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("update payment session %d: %w", s.ID, err)
	}
	return nil
}

// TransitionSession is the session counterpart of TransitionTransaction.
func (d *DB) TransitionSession(ctx context.Context, s *models.PaymentSession, from models.SessionState, columns ...string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(s).
		Column(columns...).
		Where("id = ?", s.ID).
		Where("state = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition payment session %d from %s: %w", s.ID, from, err)
	}
	return affectedOne(res)
}
