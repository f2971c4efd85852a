package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/apperr"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
	"ms-payments/internal/store/storetest"
)

func newTx(id, account string, created time.Time) *models.Transaction {
	return &models.Transaction{
		ID:           id,
		State:        models.StateCreated,
		Amount:       500000,
		AccountRef:   account,
		ProviderTime: created.UnixMilli(),
		CreatedAt:    created,
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, db.InsertTransaction(ctx, newTx("tx1", "order_1", now)))

	got, err := db.GetTransaction(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCreated, got.State)
	assert.Equal(t, int64(500000), got.Amount)
	assert.True(t, got.PerformedAt.IsZero())
	assert.Nil(t, got.CancelReason)

	_, err = db.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionTransaction_OnlyOneWinner(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertTransaction(ctx, newTx("tx1", "order_1", time.Now().UTC())))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := &models.Transaction{ID: "tx1", State: models.StateCompleted, PerformedAt: time.Now().UTC()}
			ok, err := db.TransitionTransaction(ctx, tx, models.StateCreated, "state", "performed_at")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	got, err := db.GetTransaction(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, got.State)
	assert.Equal(t, int64(500000), got.Amount)
}

func TestFindCreatedTransactionByAccount(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()

	_, err := db.FindCreatedTransactionByAccount(ctx, "order_1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, db.InsertTransaction(ctx, newTx("tx1", "order_1", time.Now().UTC())))
	got, err := db.FindCreatedTransactionByAccount(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", got.ID)
}

func TestListTransactionsCreatedBetween(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.InsertTransaction(ctx, newTx("b", "c2", base.Add(2*time.Hour))))
	require.NoError(t, db.InsertTransaction(ctx, newTx("a", "c1", base.Add(time.Hour))))
	require.NoError(t, db.InsertTransaction(ctx, newTx("c", "c3", base.Add(5*time.Hour))))

	txs, err := db.ListTransactionsCreatedBetween(ctx, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "a", txs[0].ID)
	assert.Equal(t, "b", txs[1].ID)
}

func TestCartLoadAndConvert(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()
	storetest.SeedCart(t, db, "cart-1", 1500, [2]int64{1000, 2}, [2]int64{2500, 1})

	c, err := db.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, int64(6000), c.Total())

	ok, err := db.MarkCartConverted(ctx, "cart-1", "order-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.MarkCartConverted(ctx, "cart-1", "order-b")
	require.NoError(t, err)
	assert.False(t, ok)

	c, err = db.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, "order-a", c.ConvertedOrderID)

	_, err = db.GetCart(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSessionLookups(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s := &models.PaymentSession{
		CorrelationID: "corr-1",
		Provider:      models.ProviderClick,
		CartID:        "cart-1",
		Amount:        6000,
		State:         models.SessionCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.InsertSession(ctx, s))
	require.NotZero(t, s.ID)

	got, err := db.GetSessionByCorrelationID(ctx, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	got, err = db.LatestSessionForCart(ctx, "cart-1", models.ProviderClick, models.SessionCreated, models.SessionPrepared)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = db.LatestSessionForCart(ctx, "cart-1", models.ProviderPayme)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	s.State = models.SessionPrepared
	s.ProviderTransID = "999"
	ok, err := db.TransitionSession(ctx, s, models.SessionCreated, "state", "provider_trans_id")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TransitionSession(ctx, s, models.SessionCreated, "state")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = db.GetSessionByProviderTrans(ctx, models.ProviderClick, "999")
	require.NoError(t, err)
	assert.Equal(t, models.SessionPrepared, got.State)
}

func TestCompleteOrder_Once(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.InsertOrder(ctx, &models.Order{
		OrderID: "o-1", CartID: "cart-1", Provider: models.ProviderPayme, Amount: 6000,
		Status: models.OrderPending, CreatedAt: now, UpdatedAt: now,
	}))

	ids, err := db.ListPendingOrderIDs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1"}, ids)

	ok, err := db.CompleteOrder(ctx, "o-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.CompleteOrder(ctx, "o-1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err = db.ListPendingOrderIDs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUpdateOrderStatuses_KeepsNilFields(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.InsertOrder(ctx, &models.Order{
		OrderID: "o-1", CartID: "cart-1", Provider: models.ProviderClick, Amount: 100,
		Status: models.OrderPending, PaymentStatus: models.StringPtr(models.PaymentCaptured),
		CreatedAt: now, UpdatedAt: now,
	}))

	ok, err := db.UpdateOrderStatuses(ctx, "o-1", nil, models.StringPtr(models.FulfillmentShipped))
	require.NoError(t, err)
	assert.True(t, ok)

	o, err := db.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	require.NotNil(t, o.PaymentStatus)
	assert.Equal(t, models.PaymentCaptured, *o.PaymentStatus)
	require.NotNil(t, o.FulfillmentStatus)
	assert.Equal(t, models.FulfillmentShipped, *o.FulfillmentStatus)

	o, err = db.GetOrderByCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", o.OrderID)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := storetest.NewDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(ctx context.Context, tx *store.DB) error {
		require.NoError(t, tx.InsertTransaction(ctx, newTx("tx1", "order_1", time.Now().UTC())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = db.GetTransaction(ctx, "tx1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
