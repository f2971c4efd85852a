// Package completion moves paid orders to their terminal completed status.
//
// An order is evaluated after capture (delayed), whenever the platform reports
// a payment or fulfillment status change, and by a periodic sweep. The final
// write is a conditional update, so however many evaluations race only one
// of them completes the order and publishes orders.completed.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"ms-payments/internal/apperr"
	"ms-payments/internal/config"
	"ms-payments/internal/kafka"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
)

const evaluateTimeout = 30 * time.Second

var (
	paymentOK = map[string]bool{
		models.PaymentCaptured:   true,
		models.PaymentAuthorized: true,
		models.PaymentPaid:       true,
	}
	fulfillmentOK = map[string]bool{
		models.FulfillmentFulfilled: true,
		models.FulfillmentShipped:   true,
		models.FulfillmentDelivered: true,
	}
)

// ShouldComplete is the completion rule. A nil status means the platform has
// not reported one yet.
func ShouldComplete(payment, fulfillment *string) bool {
	payOK := payment != nil && paymentOK[*payment]
	fulOK := fulfillment != nil && fulfillmentOK[*fulfillment]

	switch {
	case payOK && fulOK:
		return true
	case payOK && fulfillment == nil:
		return true
	case fulOK && payment == nil:
		return true
	}
	return false
}

type Reconciler struct {
	db          *store.DB
	publisher   kafka.Publisher
	topic       string
	delay       time.Duration
	concurrency int
	log         *logger.Logger
	now         func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

func NewReconciler(db *store.DB, publisher kafka.Publisher, topic string, cfg config.CompletionConfig, log *logger.Logger) *Reconciler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reconciler{
		db:          db,
		publisher:   publisher,
		topic:       topic,
		delay:       cfg.Delay,
		concurrency: concurrency,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		timers:      make(map[string]*time.Timer),
	}
}

// Evaluate completes the order if the rule allows it and reports whether
// this call was the one that did.
func (r *Reconciler) Evaluate(ctx context.Context, orderID string) (bool, error) {
	order, err := r.db.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status == models.OrderCompleted {
		return false, nil
	}
	if !ShouldComplete(order.PaymentStatus, order.FulfillmentStatus) {
		r.log.Debug("COMPLETION", fmt.Sprintf("Order %s not ready (payment=%s fulfillment=%s)", orderID, deref(order.PaymentStatus), deref(order.FulfillmentStatus)))
		return false, nil
	}

	at := r.now()
	won, err := r.db.CompleteOrder(ctx, orderID, at)
	if err != nil || !won {
		return false, err
	}

	r.log.Info("COMPLETION", "Order "+orderID+" completed")
	event := models.OrderCompletedEvent{OrderID: orderID, CartID: order.CartID, CompletedAt: at}
	if err := r.publisher.Publish(ctx, r.topic, orderID, event); err != nil {
		r.log.Error("COMPLETION", fmt.Sprintf("Order %s completed but %s was not published: %v", orderID, r.topic, err))
	}
	return true, nil
}

// ScheduleRecheck evaluates the order once the configured delay has passed.
// A second call for the same order restarts the delay.
func (r *Reconciler) ScheduleRecheck(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if t, ok := r.timers[orderID]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		if r.timers[orderID] == timer {
			delete(r.timers, orderID)
		}
		r.wg.Add(1)
		r.mu.Unlock()
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
		defer cancel()
		if _, err := r.Evaluate(ctx, orderID); err != nil {
			r.log.Error("COMPLETION", fmt.Sprintf("Delayed check of order %s failed: %v", orderID, err))
		}
	})
	r.timers[orderID] = timer
}

// Pending is the number of scheduled rechecks that have not fired.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels scheduled rechecks and waits for running ones.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Sweep evaluates every pending order and returns how many it completed.
// Failures of single orders are logged and do not stop the sweep.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	ids, err := r.db.ListPendingOrderIDs(ctx, 0)
	if err != nil {
		return 0, err
	}

	var (
		mu        sync.Mutex
		completed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			won, err := r.Evaluate(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				r.log.Warn("COMPLETION", fmt.Sprintf("Sweep could not evaluate order %s: %v", id, err))
				return nil
			}
			if won {
				mu.Lock()
				completed++
				mu.Unlock()
			}
			return nil
		})
	}
	err = g.Wait()

	if completed > 0 {
		r.log.Info("COMPLETION", fmt.Sprintf("Sweep completed %d of %d pending orders", completed, len(ids)))
	}
	return completed, err
}

// RunSweeper sweeps every interval until ctx is done.
func (r *Reconciler) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("COMPLETION", "Sweep failed: "+err.Error())
			}
		}
	}
}

// HandleEvent records a platform status change and re-evaluates the order.
// Events for orders this service does not own are ignored.
func (r *Reconciler) HandleEvent(ctx context.Context, ev models.OrderStatusEvent) error {
	if ev.OrderID == "" {
		return apperr.Invalid("order_id", "missing")
	}
	updated, err := r.db.UpdateOrderStatuses(ctx, ev.OrderID, ev.PaymentStatus, ev.FulfillmentStatus)
	if err != nil {
		return err
	}
	nudge := ev.PaymentStatus == nil && ev.FulfillmentStatus == nil
	if !updated && !nudge {
		r.log.Debug("COMPLETION", "Ignoring status event for unknown order "+ev.OrderID)
		return nil
	}

	_, err = r.Evaluate(ctx, ev.OrderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

// HandleMessage adapts HandleEvent to the Kafka consumer. Undecodable
// messages are logged and skipped so they do not block the partition.
func (r *Reconciler) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	var ev models.OrderStatusEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.log.Warn("COMPLETION", fmt.Sprintf("Skipping malformed status event at offset %d: %v", msg.Offset, err))
		return nil
	}
	err := r.HandleEvent(ctx, ev)
	var invalid *apperr.ValidationError
	if errors.As(err, &invalid) {
		r.log.Warn("COMPLETION", fmt.Sprintf("Skipping status event at offset %d: %v", msg.Offset, err))
		return nil
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
