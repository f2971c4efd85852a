// Package sse fans payment captures out to storefront clients waiting on a
// checkout page.
package sse

import (
	"context"
	"sync"

	"ms-payments/internal/kafka"
	"ms-payments/internal/models"
)

const clientBuffer = 4

// CheckoutEventEmitter keeps the open subscriptions per cart.
type CheckoutEventEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.PaymentCapturedEvent
}

func NewCheckoutEventEmitter() *CheckoutEventEmitter {
	return &CheckoutEventEmitter{clients: make(map[string][]chan models.PaymentCapturedEvent)}
}

// Subscribe returns a channel that receives the capture of cartID. It is
// closed once ctx is done.
func (e *CheckoutEventEmitter) Subscribe(ctx context.Context, cartID string) <-chan models.PaymentCapturedEvent {
	ch := make(chan models.PaymentCapturedEvent, clientBuffer)

	e.mu.Lock()
	e.clients[cartID] = append(e.clients[cartID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(cartID, ch)
	}()
	return ch
}

// Emit delivers ev to every subscriber of its cart. Slow clients with a full
// buffer are skipped.
func (e *CheckoutEventEmitter) Emit(ev models.PaymentCapturedEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.clients[ev.CartID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *CheckoutEventEmitter) remove(cartID string, ch chan models.PaymentCapturedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[cartID]
	for i, c := range clients {
		if c == ch {
			e.clients[cartID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[cartID]) == 0 {
		delete(e.clients, cartID)
	}
}

// ClientCount returns the number of clients waiting on cartID.
func (e *CheckoutEventEmitter) ClientCount(cartID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[cartID])
}

// Tee publishes through Next and also emits capture events locally.
type Tee struct {
	Next    kafka.Publisher
	Emitter *CheckoutEventEmitter
}

func (t Tee) Publish(ctx context.Context, topic, key string, event interface{}) error {
	if ev, ok := event.(models.PaymentCapturedEvent); ok {
		t.Emitter.Emit(ev)
	}
	return t.Next.Publish(ctx, topic, key, event)
}
