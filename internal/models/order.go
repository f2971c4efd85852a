package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

// Payment statuses written by capture and refund. The platform may report
// others through the orders.status topic.
const (
	PaymentCaptured   = "captured"
	PaymentAuthorized = "authorized"
	PaymentPaid       = "paid"
	PaymentRefunded   = "refunded"
)

const (
	FulfillmentFulfilled = "fulfilled"
	FulfillmentShipped   = "shipped"
	FulfillmentDelivered = "delivered"
)

// Order is the local projection of a platform order. Payment and fulfillment
// status are nil until something reports them.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID           string      `bun:"order_id,pk" json:"order_id"`
	CartID            string      `bun:"cart_id,notnull,unique" json:"cart_id"`
	Provider          string      `bun:"provider,notnull" json:"provider"`
	ProviderTransID   string      `bun:"provider_trans_id" json:"provider_trans_id"`
	Amount            int64       `bun:"amount,notnull" json:"amount"`
	Status            OrderStatus `bun:"status,notnull" json:"status"`
	PaymentStatus     *string     `bun:"payment_status" json:"payment_status"`
	FulfillmentStatus *string     `bun:"fulfillment_status" json:"fulfillment_status"`
	CreatedAt         time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time   `bun:"updated_at,notnull" json:"updated_at"`
	CompletedAt       time.Time   `bun:"completed_at,nullzero" json:"completed_at"`
}

// StringPtr is a helper for the nullable status columns.
func StringPtr(s string) *string { return &s }
