package completion

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/config"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
	"ms-payments/internal/store/storetest"
)

type countingPublisher struct {
	mu     sync.Mutex
	events []models.OrderCompletedEvent
}

func (p *countingPublisher) Publish(_ context.Context, topic, _ string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := event.(models.OrderCompletedEvent); ok && topic == "orders.completed" {
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func ptr(s string) *string { return &s }

func TestShouldComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		payment     *string
		fulfillment *string
		want        bool
	}{
		{nil, nil, false},
		{ptr("captured"), nil, true},
		{ptr("authorized"), nil, true},
		{ptr("paid"), nil, true},
		{ptr("refunded"), nil, false},
		{ptr("awaiting"), nil, false},
		{nil, ptr("fulfilled"), true},
		{nil, ptr("shipped"), true},
		{nil, ptr("delivered"), true},
		{nil, ptr("not_fulfilled"), false},
		{ptr("captured"), ptr("shipped"), true},
		{ptr("paid"), ptr("delivered"), true},
		{ptr("captured"), ptr("not_fulfilled"), false},
		{ptr("refunded"), ptr("shipped"), false},
		{ptr("awaiting"), ptr("fulfilled"), false},
		{ptr("refunded"), ptr("canceled"), false},
	}

	for _, tt := range tests {
		name := deref(tt.payment) + "/" + deref(tt.fulfillment)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldComplete(tt.payment, tt.fulfillment))
		})
	}
}

func newReconciler(t *testing.T, delay time.Duration) (*Reconciler, *store.DB, *countingPublisher) {
	t.Helper()
	db := storetest.NewDB(t)
	pub := &countingPublisher{}
	r := NewReconciler(db, pub, "orders.completed", config.CompletionConfig{Delay: delay, Concurrency: 4}, logger.Discard())
	t.Cleanup(r.Stop)
	return r, db, pub
}

func seedOrder(t *testing.T, db *store.DB, id string, payment, fulfillment *string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.InsertOrder(context.Background(), &models.Order{
		OrderID:           id,
		CartID:            "cart-" + id,
		Provider:          models.ProviderPayme,
		ProviderTransID:   "tx-" + id,
		Amount:            1000,
		Status:            models.OrderPending,
		PaymentStatus:     payment,
		FulfillmentStatus: fulfillment,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
}

func TestEvaluate_CompletesOnceUnderRace(t *testing.T) {
	r, db, pub := newReconciler(t, time.Hour)
	seedOrder(t, db, "o-1", ptr(models.PaymentCaptured), nil)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := r.Evaluate(ctx, "o-1")
			assert.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, pub.count())

	order, err := db.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.False(t, order.CompletedAt.IsZero())
}

func TestEvaluate_LeavesRefundedPending(t *testing.T) {
	r, db, pub := newReconciler(t, time.Hour)
	seedOrder(t, db, "o-1", ptr(models.PaymentRefunded), nil)

	won, err := r.Evaluate(context.Background(), "o-1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.Zero(t, pub.count())
}

func TestHandleEvent_OutOfOrder(t *testing.T) {
	r, db, pub := newReconciler(t, time.Hour)
	seedOrder(t, db, "o-1", nil, nil)
	ctx := context.Background()

	// Fulfillment arrives before payment.
	require.NoError(t, r.HandleEvent(ctx, models.OrderStatusEvent{OrderID: "o-1", FulfillmentStatus: ptr("shipped")}))
	assert.Equal(t, 1, pub.count())

	require.NoError(t, r.HandleEvent(ctx, models.OrderStatusEvent{OrderID: "o-1", PaymentStatus: ptr("paid")}))
	assert.Equal(t, 1, pub.count())

	order, err := db.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.Equal(t, "paid", *order.PaymentStatus)
	assert.Equal(t, "shipped", *order.FulfillmentStatus)
}

func TestHandleEvent_UnknownOrderIgnored(t *testing.T) {
	r, _, pub := newReconciler(t, time.Hour)
	require.NoError(t, r.HandleEvent(context.Background(), models.OrderStatusEvent{OrderID: "elsewhere", PaymentStatus: ptr("paid")}))
	assert.Zero(t, pub.count())
}

func TestHandleMessage(t *testing.T) {
	r, db, pub := newReconciler(t, time.Hour)
	seedOrder(t, db, "o-1", nil, ptr("not_fulfilled"))
	ctx := context.Background()

	assert.NoError(t, r.HandleMessage(ctx, kafkago.Message{Value: []byte("{not json")}))
	assert.NoError(t, r.HandleMessage(ctx, kafkago.Message{Value: []byte(`{"payment_status":"paid"}`)}))

	value, err := json.Marshal(models.OrderStatusEvent{OrderID: "o-1", FulfillmentStatus: ptr("delivered")})
	require.NoError(t, err)
	require.NoError(t, r.HandleMessage(ctx, kafkago.Message{Value: value}))
	assert.Equal(t, 1, pub.count())
}

func TestScheduleRecheck(t *testing.T) {
	r, db, pub := newReconciler(t, 20*time.Millisecond)
	seedOrder(t, db, "o-1", ptr(models.PaymentCaptured), nil)

	r.ScheduleRecheck("o-1")
	r.ScheduleRecheck("o-1")
	assert.Equal(t, 1, r.Pending())

	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, r.Pending())
}

func TestStop_CancelsTimers(t *testing.T) {
	r, db, pub := newReconciler(t, 50*time.Millisecond)
	seedOrder(t, db, "o-1", ptr(models.PaymentCaptured), nil)

	r.ScheduleRecheck("o-1")
	r.Stop()
	r.ScheduleRecheck("o-1")

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, pub.count())
	assert.Zero(t, r.Pending())
}

func TestSweep(t *testing.T) {
	r, db, pub := newReconciler(t, time.Hour)
	seedOrder(t, db, "o-1", ptr(models.PaymentCaptured), nil)
	seedOrder(t, db, "o-2", ptr(models.PaymentRefunded), nil)
	seedOrder(t, db, "o-3", nil, ptr(models.FulfillmentDelivered))
	seedOrder(t, db, "o-4", nil, nil)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, pub.count())

	n, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
