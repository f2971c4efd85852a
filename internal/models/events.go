package models

import "time"

type PaymentCapturedEvent struct {
	OrderID       string    `json:"order_id"`
	CartID        string    `json:"cart_id"`
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	CapturedAt    time.Time `json:"captured_at"`
}

type PaymentRefundedEvent struct {
	OrderID       string    `json:"order_id"`
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Reason        int       `json:"reason"`
	RefundedAt    time.Time `json:"refunded_at"`
}

type OrderCompletedEvent struct {
	OrderID     string    `json:"order_id"`
	CartID      string    `json:"cart_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// OrderStatusEvent is consumed from the platform. A nil field leaves the
// stored value untouched.
type OrderStatusEvent struct {
	OrderID           string    `json:"order_id"`
	PaymentStatus     *string   `json:"payment_status,omitempty"`
	FulfillmentStatus *string   `json:"fulfillment_status,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
