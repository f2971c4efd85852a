// Package capture turns a paid cart into an order and reverses it on refund.
// Capture and Refund run inside the caller's database transaction; the
// After* methods run once it committed.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ms-payments/internal/config"
	"ms-payments/internal/kafka"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
)

var (
	ErrAlreadyPaid     = errors.New("cart already paid by another transaction")
	ErrAlreadyRefunded = errors.New("order already refunded")
	ErrNotRefundable   = errors.New("order already fulfilled")
)

const publishTimeout = 10 * time.Second

// Rechecker is notified after a capture so the order gets evaluated for
// completion once the platform had time to react.
type Rechecker interface {
	ScheduleRecheck(orderID string)
}

type Request struct {
	Provider      string
	TransactionID string
	CartID        string
	Amount        int64
}

type Capturer struct {
	publisher kafka.Publisher
	topics    config.TopicConfig
	rechecker Rechecker
	log       *logger.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewCapturer(publisher kafka.Publisher, topics config.TopicConfig, rechecker Rechecker, log *logger.Logger) *Capturer {
	return &Capturer{
		publisher: publisher,
		topics:    topics,
		rechecker: rechecker,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Capture creates the order for req.CartID and binds the cart to it. A replay
// for the same provider transaction returns the existing order.
func (c *Capturer) Capture(ctx context.Context, tx *store.DB, req Request) (*models.Order, error) {
	cart, err := tx.GetCart(ctx, req.CartID)
	if err != nil {
		return nil, err
	}

	if cart.Converted() {
		existing, err := tx.GetOrder(ctx, cart.ConvertedOrderID)
		if err != nil {
			return nil, fmt.Errorf("load order of converted cart %s: %w", cart.ID, err)
		}
		if existing.Provider == req.Provider && existing.ProviderTransID == req.TransactionID {
			return existing, nil
		}
		return nil, ErrAlreadyPaid
	}

	now := c.now()
	order := &models.Order{
		OrderID:         uuid.NewString(),
		CartID:          cart.ID,
		Provider:        req.Provider,
		ProviderTransID: req.TransactionID,
		Amount:          req.Amount,
		Status:          models.OrderPending,
		PaymentStatus:   models.StringPtr(models.PaymentCaptured),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	ok, err := tx.MarkCartConverted(ctx, cart.ID, order.OrderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyPaid
	}

	c.log.LogTransaction(req.Provider, req.TransactionID, fmt.Sprintf("captured cart %s as order %s", cart.ID, order.OrderID))
	return order, nil
}

// Refund marks the order refunded. It fails with ErrAlreadyRefunded or
// ErrNotRefundable without writing anything.
func (c *Capturer) Refund(ctx context.Context, tx *store.DB, orderID string) (*models.Order, error) {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus != nil && *order.PaymentStatus == models.PaymentRefunded {
		return nil, ErrAlreadyRefunded
	}
	if order.FulfillmentStatus != nil {
		switch *order.FulfillmentStatus {
		case models.FulfillmentFulfilled, models.FulfillmentShipped, models.FulfillmentDelivered:
			return nil, ErrNotRefundable
		}
	}

	refunded := models.StringPtr(models.PaymentRefunded)
	if _, err := tx.UpdateOrderStatuses(ctx, orderID, refunded, nil); err != nil {
		return nil, err
	}
	order.PaymentStatus = refunded

	c.log.LogTransaction(order.Provider, order.ProviderTransID, "refunded order "+orderID)
	return order, nil
}

// AfterCapture publishes payments.captured and schedules a completion check.
func (c *Capturer) AfterCapture(order *models.Order) {
	event := models.PaymentCapturedEvent{
		OrderID:       order.OrderID,
		CartID:        order.CartID,
		Provider:      order.Provider,
		TransactionID: order.ProviderTransID,
		Amount:        order.Amount,
		CapturedAt:    order.CreatedAt,
	}
	c.publishAsync(c.topics.PaymentCaptured, order.OrderID, event)
	if c.rechecker != nil {
		c.rechecker.ScheduleRecheck(order.OrderID)
	}
}

func (c *Capturer) AfterRefund(order *models.Order, reason int) {
	event := models.PaymentRefundedEvent{
		OrderID:       order.OrderID,
		Provider:      order.Provider,
		TransactionID: order.ProviderTransID,
		Amount:        order.Amount,
		Reason:        reason,
		RefundedAt:    c.now(),
	}
	c.publishAsync(c.topics.PaymentRefunded, order.OrderID, event)
}

func (c *Capturer) publishAsync(topic, key string, event interface{}) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := c.publisher.Publish(ctx, topic, key, event); err != nil {
			c.log.Error("CAPTURE", fmt.Sprintf("Failed to publish %s for %s: %v", topic, key, err))
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (c *Capturer) Wait() {
	c.wg.Wait()
}
