package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCartTotal(t *testing.T) {
	c := &Cart{
		ShippingAmount: 1500,
		DiscountAmount: 500,
		Items: []CartItem{
			{UnitPrice: 1000, Quantity: 2},
			{UnitPrice: 2500, Quantity: 1},
		},
	}
	assert.Equal(t, int64(4500), c.Subtotal())
	assert.Equal(t, int64(5500), c.Total())
	assert.False(t, c.Converted())
}

func TestReceiptTotal(t *testing.T) {
	r := FiscalReceipt{
		Items:    []ReceiptItem{{UnitPrice: 1000, Quantity: 2}, {UnitPrice: 2500, Quantity: 1}},
		Shipping: &ReceiptShipping{Title: "Delivery", Price: 1500},
	}
	assert.Equal(t, int64(6000), r.Total())
}

func TestTransactionExpired(t *testing.T) {
	now := time.Now()
	tx := &Transaction{State: StateCreated, CreatedAt: now.Add(-13 * time.Hour)}
	assert.True(t, tx.Expired(now, 12*time.Hour))
	assert.False(t, tx.Expired(now, 0))

	tx.State = StateCompleted
	assert.False(t, tx.Expired(now, 12*time.Hour))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CANCELLED_AFTER_COMPLETE", StateCancelledAfterComplete.String())
	assert.True(t, StateCancelledBeforeComplete.Cancelled())
	assert.False(t, StateCompleted.Cancelled())
}
