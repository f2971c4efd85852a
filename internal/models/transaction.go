package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TransactionState uses Payme's numeric wire values.
type TransactionState int

const (
	StateCreated                 TransactionState = 1
	StateCompleted               TransactionState = 2
	StateCancelledBeforeComplete TransactionState = -1
	StateCancelledAfterComplete  TransactionState = -2
)

func (s TransactionState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelledBeforeComplete:
		return "CANCELLED_BEFORE_COMPLETE"
	case StateCancelledAfterComplete:
		return "CANCELLED_AFTER_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Cancelled reports whether s is one of the two terminal states.
func (s TransactionState) Cancelled() bool {
	return s == StateCancelledBeforeComplete || s == StateCancelledAfterComplete
}

// Payme cancel reasons used by this service.
const (
	ReasonReceiversNotFound = 1
	ReasonTimeout           = 4
	ReasonRefund            = 5
)

// Transaction is one ledger row, keyed by the provider-assigned id.
type Transaction struct {
	bun.BaseModel `bun:"table:payme_transactions"`

	ID           string           `bun:"id,pk" json:"id"`
	State        TransactionState `bun:"state,notnull" json:"state"`
	Amount       int64            `bun:"amount,notnull" json:"amount"`
	AccountRef   string           `bun:"account_ref,notnull" json:"account_ref"`
	ProviderTime int64            `bun:"provider_time,notnull" json:"time"`
	CreatedAt    time.Time        `bun:"created_at,notnull" json:"created_at"`
	PerformedAt  time.Time        `bun:"performed_at,nullzero" json:"performed_at"`
	CancelledAt  time.Time        `bun:"cancelled_at,nullzero" json:"cancelled_at"`
	CancelReason *int             `bun:"cancel_reason" json:"reason"`
	OrderID      string           `bun:"order_id,nullzero" json:"order_id,omitempty"`
}

// Expired reports whether a CREATED row has outlived timeout at now.
func (t *Transaction) Expired(now time.Time, timeout time.Duration) bool {
	return t.State == StateCreated && timeout > 0 && now.Sub(t.CreatedAt) > timeout
}
