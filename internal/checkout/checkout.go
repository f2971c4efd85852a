// Package checkout starts provider payment sessions for storefront carts and
// answers the storefront's order lookups.
package checkout

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"ms-payments/internal/amount"
	"ms-payments/internal/apperr"
	"ms-payments/internal/config"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
)

const qrSize = 256

type Service struct {
	db    *store.DB
	payme config.PaymeConfig
	click config.ClickConfig
	log   *logger.Logger
	now   func() time.Time
}

func NewService(db *store.DB, payme config.PaymeConfig, click config.ClickConfig, log *logger.Logger) *Service {
	return &Service{db: db, payme: payme, click: click, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Start opens a payment session for the cart and returns the URL the payer
// is sent to. The amount always comes from the stored cart.
func (s *Service) Start(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	if req.CartID == "" {
		return nil, apperr.Invalid("cart_id", "required")
	}
	cart, err := s.db.GetCart(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if cart.Converted() {
		return nil, &apperr.StateConflictError{Entity: "cart", ID: cart.ID, From: "converted", To: "checkout"}
	}
	total := cart.Total()
	if total <= 0 {
		return nil, apperr.Invalid("cart_id", "cart total must be positive")
	}

	correlationID := uuid.NewString()
	var paymentURL string
	switch req.Provider {
	case models.ProviderPayme:
		paymentURL = PaymeURL(s.payme, cart.ID, total)
	case models.ProviderClick:
		paymentURL = ClickURL(s.click, cart.ID, total, correlationID)
	default:
		return nil, apperr.Invalid("provider", fmt.Sprintf("unsupported provider %q", req.Provider))
	}

	now := s.now()
	session := &models.PaymentSession{
		CorrelationID: correlationID,
		Provider:      req.Provider,
		CartID:        cart.ID,
		Amount:        total,
		State:         models.SessionCreated,
		PaymentURL:    paymentURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.InsertSession(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info("CHECKOUT", fmt.Sprintf("Started %s session %s for cart %s (%d)", req.Provider, correlationID, cart.ID, total))
	return &models.CheckoutResponse{
		CorrelationID: correlationID,
		PaymentURL:    paymentURL,
		Amount:        amount.ToDecimalString(total),
	}, nil
}

// QRCode renders the session's payment URL as a PNG.
func (s *Service) QRCode(ctx context.Context, correlationID string) ([]byte, error) {
	session, err := s.db.GetSessionByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if session.State == models.SessionCompleted || session.State == models.SessionCancelled {
		return nil, &apperr.StateConflictError{Entity: "session", ID: correlationID, From: string(session.State), To: "qr"}
	}
	png, err := qrcode.Encode(session.PaymentURL, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr for session %s: %w", correlationID, err)
	}
	return png, nil
}

// PaymeURL is the hosted checkout link: base64 of "m=..;ac.<key>=..;a=..".
func PaymeURL(cfg config.PaymeConfig, cartID string, total int64) string {
	key := cfg.AccountKey
	if key == "" {
		key = "order_id"
	}
	params := fmt.Sprintf("m=%s;ac.%s=%s;a=%d", cfg.MerchantID, key, cartID, total)
	return strings.TrimRight(cfg.CheckoutURL, "/") + "/" + base64.StdEncoding.EncodeToString([]byte(params))
}

// ClickURL is the hosted payment link. Click takes the amount in major units.
func ClickURL(cfg config.ClickConfig, cartID string, total int64, correlationID string) string {
	q := url.Values{}
	q.Set("service_id", cfg.ServiceID)
	q.Set("merchant_id", cfg.MerchantID)
	q.Set("amount", amount.ToDecimalString(total))
	q.Set("transaction_param", cartID)
	if cfg.ReturnURL != "" {
		q.Set("return_url", withQuery(cfg.ReturnURL, "correlation_id", correlationID))
	}
	return cfg.PayURL + "?" + q.Encode()
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// IsClientError reports whether err is the caller's fault.
func IsClientError(err error) bool {
	var (
		ve *apperr.ValidationError
		se *apperr.StateConflictError
	)
	return errors.As(err, &ve) || errors.As(err, &se) || errors.Is(err, apperr.ErrNotFound)
}

// Session returns the session opened by Start.
func (s *Service) Session(ctx context.Context, correlationID string) (*models.PaymentSession, error) {
	return s.db.GetSessionByCorrelationID(ctx, correlationID)
}
