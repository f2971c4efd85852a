package sse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/kafka"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
)

func TestEmitReachesOnlyTheCart(t *testing.T) {
	e := NewCheckoutEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := e.Subscribe(ctx, "cart-1")
	other := e.Subscribe(ctx, "cart-2")
	assert.Equal(t, 1, e.ClientCount("cart-1"))

	e.Emit(models.PaymentCapturedEvent{OrderID: "o-1", CartID: "cart-1"})

	got := <-mine
	assert.Equal(t, "o-1", got.OrderID)
	select {
	case <-other:
		t.Fatal("cart-2 subscriber received cart-1 capture")
	default:
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	e := NewCheckoutEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.Subscribe(ctx, "cart-1")
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, e.ClientCount("cart-1"))
	assert.NotPanics(t, func() { e.Emit(models.PaymentCapturedEvent{CartID: "cart-1"}) })
}

func TestSlowClientIsSkipped(t *testing.T) {
	e := NewCheckoutEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Subscribe(ctx, "cart-1")

	assert.NotPanics(t, func() {
		for i := 0; i < clientBuffer*3; i++ {
			e.Emit(models.PaymentCapturedEvent{CartID: "cart-1"})
		}
	})
}

func TestTee(t *testing.T) {
	e := NewCheckoutEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := e.Subscribe(ctx, "cart-1")

	var pub kafka.Publisher = Tee{Next: kafka.LogPublisher{Log: logger.Discard()}, Emitter: e}
	require.NoError(t, pub.Publish(ctx, "payments.captured", "o-1", models.PaymentCapturedEvent{OrderID: "o-1", CartID: "cart-1"}))
	require.NoError(t, pub.Publish(ctx, "orders.completed", "o-1", models.OrderCompletedEvent{OrderID: "o-1", CartID: "cart-1"}))

	assert.Equal(t, "o-1", (<-ch).OrderID)
	assert.Len(t, ch, 0)
}
