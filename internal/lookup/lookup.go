// Package lookup resolves a storefront reference (checkout correlation id or
// cart id) to the order created for it. Orders appear asynchronously after
// the provider callback, so callers may poll with a deadline.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-payments/internal/apperr"
	"ms-payments/internal/logger"
	"ms-payments/internal/store"
)

// ErrProcessing is returned by Poll when the deadline passes first.
var ErrProcessing = errors.New("order still processing")

// Strategy maps ref to an order id, returning an error matching
// apperr.ErrNotFound on a miss.
type Strategy struct {
	Name string
	Find func(ctx context.Context, ref string) (string, error)
}

type Resolver struct {
	strategies []Strategy
	interval   time.Duration
	timeout    time.Duration
	log        *logger.Logger
}

func NewResolver(strategies []Strategy, interval, timeout time.Duration, log *logger.Logger) *Resolver {
	return &Resolver{strategies: strategies, interval: interval, timeout: timeout, log: log}
}

// DefaultStrategies tries the checkout session, then the newest session of
// the cart, then the order bound to the cart.
func DefaultStrategies(db *store.DB) []Strategy {
	return []Strategy{
		{
			Name: "session_by_correlation_id",
			Find: func(ctx context.Context, ref string) (string, error) {
				s, err := db.GetSessionByCorrelationID(ctx, ref)
				if err != nil {
					return "", err
				}
				if s.OrderID == "" {
					return "", apperr.NotFound("order for session", ref)
				}
				return s.OrderID, nil
			},
		},
		{
			Name: "session_by_cart_id",
			Find: func(ctx context.Context, ref string) (string, error) {
				s, err := db.LatestSessionForCart(ctx, ref, "")
				if err != nil {
					return "", err
				}
				if s.OrderID == "" {
					return "", apperr.NotFound("order for cart session", ref)
				}
				return s.OrderID, nil
			},
		},
		{
			Name: "order_by_cart_id",
			Find: func(ctx context.Context, ref string) (string, error) {
				o, err := db.GetOrderByCart(ctx, ref)
				if err != nil {
					return "", err
				}
				return o.OrderID, nil
			},
		},
	}
}

// Lookup runs every strategy once, in order. Failures other than not-found
// are reported only when no strategy finds the order.
func (r *Resolver) Lookup(ctx context.Context, ref string) (string, error) {
	var failures []error
	for _, s := range r.strategies {
		orderID, err := s.Find(ctx, ref)
		if err == nil {
			return orderID, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			failures = append(failures, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	if len(failures) > 0 {
		return "", errors.Join(failures...)
	}
	return "", apperr.NotFound("order for reference", ref)
}

// Poll repeats Lookup every interval until it finds the order or the timeout
// elapses, in which case it returns ErrProcessing.
func (r *Resolver) Poll(ctx context.Context, ref string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	attempts := 0
	var lastErr error
	for {
		attempts++
		orderID, err := r.Lookup(ctx, ref)
		if err == nil {
			r.log.Info("LOOKUP", fmt.Sprintf("Resolved %s to order %s after %d attempt(s)", ref, orderID, attempts))
			return orderID, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			msg := fmt.Sprintf("No order for %s after %d attempt(s)", ref, attempts)
			if !errors.Is(lastErr, apperr.ErrNotFound) {
				msg += ": " + strings.ReplaceAll(lastErr.Error(), "\n", "; ")
			}
			r.log.Warn("LOOKUP", msg)
			return "", ErrProcessing
		case <-ticker.C:
		}
	}
}
