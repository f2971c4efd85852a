package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionPrepared  SessionState = "prepared"
	SessionCompleted SessionState = "completed"
	SessionCancelled SessionState = "cancelled"
)

const (
	ProviderPayme = "payme"
	ProviderClick = "click"
)

// PaymentSession tracks one checkout attempt. Its numeric id doubles as
// Click's merchant_prepare_id and merchant_confirm_id.
type PaymentSession struct {
	bun.BaseModel `bun:"table:payment_sessions"`

	ID              int64        `bun:"id,pk,autoincrement" json:"id"`
	CorrelationID   string       `bun:"correlation_id,notnull,unique" json:"correlation_id"`
	Provider        string       `bun:"provider,notnull" json:"provider"`
	CartID          string       `bun:"cart_id,notnull" json:"cart_id"`
	Amount          int64        `bun:"amount,notnull" json:"amount"`
	State           SessionState `bun:"state,notnull" json:"state"`
	ProviderTransID string       `bun:"provider_trans_id,nullzero" json:"provider_trans_id,omitempty"`
	ProviderState   string       `bun:"provider_state,nullzero" json:"-"`
	PaymentURL      string       `bun:"payment_url" json:"payment_url"`
	OrderID         string       `bun:"order_id,nullzero" json:"order_id,omitempty"`
	CreatedAt       time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}
