package click

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/config"
	"ms-payments/internal/logger"
	"ms-payments/internal/lookup"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Poll(ctx context.Context, ref string) (string, error) {
	args := m.Called(ref)
	return args.String(0), args.Error(1)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/click/prepare", h.Prepare)
	r.Post("/click/complete", h.Complete)
	r.Get("/click/return", h.Return)
	r.Post("/click/return", h.Return)
	return r
}

func form(req Request) url.Values {
	v := url.Values{}
	v.Set("click_trans_id", req.ClickTransID)
	v.Set("service_id", req.ServiceID)
	v.Set("click_paydoc_id", req.ClickPaydocID)
	v.Set("merchant_trans_id", req.MerchantTransID)
	if req.MerchantPrepareID != "" {
		v.Set("merchant_prepare_id", req.MerchantPrepareID)
	}
	v.Set("amount", req.Amount)
	v.Set("action", req.Action)
	v.Set("error", req.Error)
	v.Set("sign_time", req.SignTime)
	v.Set("sign_string", req.SignString)
	return v
}

func post(t *testing.T, h http.Handler, path string, v url.Values) Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandler_PrepareAndComplete(t *testing.T) {
	f := newFixture(t)
	h := newRouter(&Handler{Service: f.svc, Logger: logger.Discard()})

	prep := post(t, h, "/click/prepare", form(prepareRequest("1001", "cart-1", "60.00")))
	require.Equal(t, CodeSuccess, prep.Error)
	require.NotNil(t, prep.MerchantPrepareID)

	done := post(t, h, "/click/complete", form(completeRequest("1001", "cart-1", "60.00", *prep.MerchantPrepareID, "0")))
	require.Equal(t, CodeSuccess, done.Error)
	assert.Equal(t, *prep.MerchantPrepareID, *done.MerchantConfirmID)
	f.capturer.Wait()
}

func TestHandler_Return(t *testing.T) {
	redirect := config.RedirectConfig{SuccessURL: "https://shop.example/checkout/success", FailureURL: "https://shop.example/checkout/failed"}

	tests := []struct {
		name         string
		query        string
		setup        func(*mockResolver)
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "cancelled_skips_polling",
			query:        "merchant_trans_id=cart-1&status=cancelled",
			wantStatus:   http.StatusFound,
			wantLocation: "https://shop.example/checkout/failed?ref=cart-1",
		},
		{
			name:         "negative_error_skips_polling",
			query:        "merchant_trans_id=cart-1&error=-5017",
			wantStatus:   http.StatusFound,
			wantLocation: "https://shop.example/checkout/failed?ref=cart-1",
		},
		{
			name:         "found",
			query:        "correlation_id=corr-1&merchant_trans_id=cart-1&status=success",
			setup:        func(m *mockResolver) { m.On("Poll", "corr-1").Return("o-1", nil) },
			wantStatus:   http.StatusFound,
			wantLocation: "https://shop.example/checkout/success?order_id=o-1",
		},
		{
			name:       "still_processing",
			query:      "merchant_trans_id=cart-1",
			setup:      func(m *mockResolver) { m.On("Poll", "cart-1").Return("", lookup.ErrProcessing) },
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing_reference",
			query:      "status=success",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &mockResolver{}
			if tt.setup != nil {
				tt.setup(res)
			}
			h := newRouter(&Handler{Resolver: res, Redirect: redirect, Logger: logger.Discard()})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/click/return?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
			if tt.wantStatus == http.StatusAccepted {
				assert.JSONEq(t, `{"status":"processing","ref":"cart-1"}`, rec.Body.String())
			}
			res.AssertExpectations(t)
		})
	}
}
