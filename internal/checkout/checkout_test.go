package checkout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/apperr"
	"ms-payments/internal/config"
	"ms-payments/internal/logger"
	"ms-payments/internal/lookup"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
	"ms-payments/internal/store/storetest"
)

var (
	paymeCfg = config.PaymeConfig{MerchantID: "5e730e8e0b852a417aa49ceb", CheckoutURL: "https://checkout.paycom.uz", AccountKey: "order_id"}
	clickCfg = config.ClickConfig{ServiceID: "12345", MerchantID: "678", PayURL: "https://my.click.uz/services/pay", ReturnURL: "https://shop.example/click/return"}
)

func TestPaymeURL(t *testing.T) {
	got := PaymeURL(paymeCfg, "cart-1", 6000)
	require.True(t, strings.HasPrefix(got, "https://checkout.paycom.uz/"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, "https://checkout.paycom.uz/"))
	require.NoError(t, err)
	assert.Equal(t, "m=5e730e8e0b852a417aa49ceb;ac.order_id=cart-1;a=6000", string(decoded))
}

func TestClickURL(t *testing.T) {
	got := ClickURL(clickCfg, "cart-1", 600050, "corr-1")

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "my.click.uz", u.Host)
	q := u.Query()
	assert.Equal(t, "12345", q.Get("service_id"))
	assert.Equal(t, "678", q.Get("merchant_id"))
	assert.Equal(t, "6000.50", q.Get("amount"))
	assert.Equal(t, "cart-1", q.Get("transaction_param"))
	assert.Equal(t, "https://shop.example/click/return?correlation_id=corr-1", q.Get("return_url"))
}

func newService(t *testing.T) (*Service, *store.DB) {
	db := storetest.NewDB(t)
	storetest.SeedCart(t, db, "cart-1", 1500, [2]int64{1000, 2}, [2]int64{2500, 1})
	return NewService(db, paymeCfg, clickCfg, logger.Discard()), db
}

func TestStart(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	resp, err := svc.Start(ctx, models.CheckoutRequest{CartID: "cart-1", Provider: models.ProviderClick})
	require.NoError(t, err)
	assert.Equal(t, "60.00", resp.Amount)
	assert.Contains(t, resp.PaymentURL, "amount=60.00")

	session, err := db.GetSessionByCorrelationID(ctx, resp.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCreated, session.State)
	assert.Equal(t, int64(6000), session.Amount)
	assert.Equal(t, resp.PaymentURL, session.PaymentURL)
}

func TestStart_Rejects(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, models.CheckoutRequest{CartID: "cart-1", Provider: "stripe"})
	assert.Equal(t, "validation", apperr.Kind(err))

	_, err = svc.Start(ctx, models.CheckoutRequest{CartID: "nope", Provider: models.ProviderPayme})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = db.MarkCartConverted(ctx, "cart-1", "order-1")
	require.NoError(t, err)
	_, err = svc.Start(ctx, models.CheckoutRequest{CartID: "cart-1", Provider: models.ProviderPayme})
	assert.Equal(t, "state_conflict", apperr.Kind(err))
}

func newRouter(svc *Service, db *store.DB) http.Handler {
	resolver := lookup.NewResolver(lookup.DefaultStrategies(db), 10*time.Millisecond, 50*time.Millisecond, logger.Discard())
	h := NewHandler(svc, resolver, logger.Discard())
	r := chi.NewRouter()
	r.Route("/api/checkout", h.Routes)
	return r
}

func TestHandler_Flow(t *testing.T) {
	svc, db := newService(t)
	router := newRouter(svc, db)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout/", bytes.NewBufferString(`{"cart_id":"cart-1","provider":"payme"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var started models.CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.CorrelationID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkout/"+started.CorrelationID+"/qr", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkout/"+started.CorrelationID+"/order", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"processing"}`, rec.Body.String())

	session, err := db.GetSessionByCorrelationID(ctx, started.CorrelationID)
	require.NoError(t, err)
	session.State = models.SessionCompleted
	session.OrderID = "order-9"
	require.NoError(t, db.UpdateSession(ctx, session, "state", "order_id"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkout/"+started.CorrelationID+"/order", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","order_id":"order-9"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkout/"+started.CorrelationID+"/qr", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Errors(t *testing.T) {
	svc, db := newService(t)
	router := newRouter(svc, db)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "bad_json", method: http.MethodPost, path: "/api/checkout/", body: `{`, want: http.StatusBadRequest},
		{name: "unknown_cart", method: http.MethodPost, path: "/api/checkout/", body: `{"cart_id":"x","provider":"click"}`, want: http.StatusNotFound},
		{name: "unknown_session_order", method: http.MethodGet, path: "/api/checkout/nope/order", want: http.StatusNotFound},
		{name: "unknown_session_qr", method: http.MethodGet, path: "/api/checkout/nope/qr", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
