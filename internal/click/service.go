// Package click implements Click's two-phase merchant API: prepare reserves
// the cart against a click_trans_id, complete captures it exactly once.
package click

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ms-payments/internal/amount"
	"ms-payments/internal/apperr"
	"ms-payments/internal/capture"
	"ms-payments/internal/config"
	"ms-payments/internal/lock"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
)

const (
	ActionPrepare  = 0
	ActionComplete = 1
)

// Request carries the form fields of a prepare or complete call.
type Request struct {
	ClickTransID      string
	ServiceID         string
	ClickPaydocID     string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	Error             string
	ErrorNote         string
	SignTime          string
	SignString        string
}

func (r Request) signFields() SignFields {
	return SignFields{
		ClickTransID:      r.ClickTransID,
		ServiceID:         r.ServiceID,
		MerchantTransID:   r.MerchantTransID,
		MerchantPrepareID: r.MerchantPrepareID,
		Amount:            r.Amount,
		Action:            r.Action,
		SignTime:          r.SignTime,
	}
}

// Response is the JSON body Click expects. MerchantPrepareID is set on
// prepare, MerchantConfirmID on complete.
type Response struct {
	ClickTransID      int64  `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID *int64 `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID *int64 `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

type Service struct {
	db       *store.DB
	locker   lock.Locker
	capturer *capture.Capturer
	cfg      config.ClickConfig
	log      *logger.Logger
	now      func() time.Time
}

func NewService(db *store.DB, locker lock.Locker, capturer *capture.Capturer, cfg config.ClickConfig, log *logger.Logger) *Service {
	return &Service{
		db:       db,
		locker:   locker,
		capturer: capturer,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) respond(req Request, code int) Response {
	id, _ := strconv.ParseInt(req.ClickTransID, 10, 64)
	return Response{ClickTransID: id, MerchantTransID: req.MerchantTransID, Error: code, ErrorNote: note(code)}
}

func (s *Service) prepared(req Request, sessionID int64) Response {
	resp := s.respond(req, CodeSuccess)
	resp.MerchantPrepareID = &sessionID
	return resp
}

func (s *Service) confirmed(req Request, sessionID int64) Response {
	resp := s.respond(req, CodeSuccess)
	resp.MerchantConfirmID = &sessionID
	return resp
}

// checkRequest runs the checks shared by both phases and returns the decoded
// amount or a Click error code.
func (s *Service) checkRequest(req Request, wantAction int) (int64, int) {
	if req.ClickTransID == "" || req.MerchantTransID == "" || req.SignTime == "" || req.Action == "" {
		return 0, CodeBadRequest
	}

	verify := VerifyPrepare
	if wantAction == ActionComplete {
		verify = VerifyComplete
	}
	if !verify(req.signFields(), s.cfg.SecretKey, req.SignString) {
		s.log.LogSecurity("CLICK_SIGNATURE", fmt.Sprintf("signature mismatch for click_trans_id %s: %v", req.ClickTransID, &apperr.SignatureError{Provider: models.ProviderClick}))
		return 0, CodeSignFailed
	}

	if action, err := strconv.Atoi(req.Action); err != nil || action != wantAction {
		return 0, CodeActionNotFound
	}
	if s.cfg.ServiceID != "" && req.ServiceID != s.cfg.ServiceID {
		return 0, CodeBadRequest
	}

	minor, err := amount.ToMinorUnits(req.Amount)
	if err != nil || minor <= 0 {
		return 0, CodeInvalidAmount
	}
	return minor, CodeSuccess
}

// Prepare validates the cart and records the session as prepared.
func (s *Service) Prepare(ctx context.Context, req Request) Response {
	minor, code := s.checkRequest(req, ActionPrepare)
	if code != CodeSuccess {
		return s.respond(req, code)
	}

	release, err := s.locker.Acquire(ctx, "cart:"+req.MerchantTransID)
	if err != nil {
		s.log.Error("CLICK", fmt.Sprintf("Lock for cart %s: %v", req.MerchantTransID, err))
		return s.respond(req, CodeUpdateFailed)
	}
	defer release()

	if existing, err := s.db.GetSessionByProviderTrans(ctx, models.ProviderClick, req.ClickTransID); err == nil {
		if existing.CartID != req.MerchantTransID {
			s.log.Warn("CLICK", fmt.Sprintf("Replayed prepare %s names cart %s, session %d belongs to %s", req.ClickTransID, req.MerchantTransID, existing.ID, existing.CartID))
			return s.respond(req, CodeOrderNotFound)
		}
		if existing.Amount != minor {
			s.log.Warn("CLICK", fmt.Sprintf("Replayed prepare %s carries amount %d, session %d holds %d", req.ClickTransID, minor, existing.ID, existing.Amount))
			return s.respond(req, CodeInvalidAmount)
		}
		switch existing.State {
		case models.SessionCompleted:
			return s.respond(req, CodeAlreadyPaid)
		case models.SessionCancelled:
			return s.respond(req, CodeCancelled)
		default:
			return s.prepared(req, existing.ID)
		}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return s.internal(req, "load session", err)
	}

	cart, err := s.db.GetCart(ctx, req.MerchantTransID)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.respond(req, CodeOrderNotFound)
	}
	if err != nil {
		return s.internal(req, "load cart", err)
	}
	if cart.Converted() {
		return s.respond(req, CodeAlreadyPaid)
	}
	if cart.Total() != minor {
		s.log.Warn("CLICK", fmt.Sprintf("Amount %d does not match cart %s total %d", minor, cart.ID, cart.Total()))
		return s.respond(req, CodeInvalidAmount)
	}

	snapshot := s.snapshot(req)
	now := s.now()

	session, err := s.db.LatestSessionForCart(ctx, cart.ID, models.ProviderClick, models.SessionCreated, models.SessionPrepared)
	switch {
	case err == nil:
		session.State = models.SessionPrepared
		session.ProviderTransID = req.ClickTransID
		session.ProviderState = snapshot
		session.Amount = minor
		session.UpdatedAt = now
		err = s.db.UpdateSession(ctx, session, "state", "provider_trans_id", "provider_state", "amount", "updated_at")
	case errors.Is(err, apperr.ErrNotFound):
		session = &models.PaymentSession{
			CorrelationID:   uuid.NewString(),
			Provider:        models.ProviderClick,
			CartID:          cart.ID,
			Amount:          minor,
			State:           models.SessionPrepared,
			ProviderTransID: req.ClickTransID,
			ProviderState:   snapshot,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err = s.db.InsertSession(ctx, session)
	}
	if err != nil {
		return s.internal(req, "save session", err)
	}

	s.log.LogTransaction(models.ProviderClick, req.ClickTransID, fmt.Sprintf("prepared cart %s as session %d", cart.ID, session.ID))
	return s.prepared(req, session.ID)
}

// Complete captures the prepared session once. Replays return the first
// outcome.
func (s *Service) Complete(ctx context.Context, req Request) Response {
	minor, code := s.checkRequest(req, ActionComplete)
	if code != CodeSuccess {
		return s.respond(req, code)
	}

	prepareID, err := strconv.ParseInt(req.MerchantPrepareID, 10, 64)
	if err != nil {
		return s.respond(req, CodeTransactionNotFound)
	}

	release, err := s.locker.Acquire(ctx, "cart:"+req.MerchantTransID)
	if err != nil {
		s.log.Error("CLICK", fmt.Sprintf("Lock for cart %s: %v", req.MerchantTransID, err))
		return s.respond(req, CodeUpdateFailed)
	}
	defer release()

	session, err := s.db.GetSession(ctx, prepareID)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.respond(req, CodeTransactionNotFound)
	}
	if err != nil {
		return s.internal(req, "load session", err)
	}
	if session.Provider != models.ProviderClick || session.ProviderTransID != req.ClickTransID || session.CartID != req.MerchantTransID {
		return s.respond(req, CodeTransactionNotFound)
	}
	if session.Amount != minor {
		return s.respond(req, CodeInvalidAmount)
	}

	switch session.State {
	case models.SessionCompleted:
		return s.confirmed(req, session.ID)
	case models.SessionCancelled:
		return s.respond(req, CodeCancelled)
	case models.SessionPrepared:
	default:
		return s.respond(req, CodeTransactionNotFound)
	}

	if clickErr, _ := strconv.Atoi(req.Error); clickErr < 0 {
		session.State = models.SessionCancelled
		session.ProviderState = s.snapshot(req)
		session.UpdatedAt = s.now()
		if _, err := s.db.TransitionSession(ctx, session, models.SessionPrepared, "state", "provider_state", "updated_at"); err != nil {
			return s.internal(req, "cancel session", err)
		}
		s.log.LogTransaction(models.ProviderClick, req.ClickTransID, fmt.Sprintf("cancelled by provider: %s %s", req.Error, req.ErrorNote))
		return s.respond(req, CodeCancelled)
	}

	var order *models.Order
	err = s.db.InTx(ctx, func(ctx context.Context, tx *store.DB) error {
		var err error
		order, err = s.capturer.Capture(ctx, tx, capture.Request{
			Provider:      models.ProviderClick,
			TransactionID: req.ClickTransID,
			CartID:        session.CartID,
			Amount:        minor,
		})
		if err != nil {
			return err
		}

		session.State = models.SessionCompleted
		session.OrderID = order.OrderID
		session.ProviderState = s.snapshot(req)
		session.UpdatedAt = s.now()
		won, err := tx.TransitionSession(ctx, session, models.SessionPrepared, "state", "order_id", "provider_state", "updated_at")
		if err != nil {
			return err
		}
		if !won {
			return &apperr.StateConflictError{Entity: "payment session", ID: req.MerchantPrepareID, From: string(models.SessionPrepared), To: string(models.SessionCompleted)}
		}
		return nil
	})
	switch {
	case errors.Is(err, capture.ErrAlreadyPaid):
		return s.respond(req, CodeAlreadyPaid)
	case errors.Is(err, apperr.ErrNotFound):
		return s.respond(req, CodeOrderNotFound)
	case err != nil:
		return s.internal(req, "capture", err)
	}

	s.capturer.AfterCapture(order)
	s.log.LogTransaction(models.ProviderClick, req.ClickTransID, "completed as order "+order.OrderID)
	return s.confirmed(req, session.ID)
}

func (s *Service) internal(req Request, step string, err error) Response {
	s.log.Error("CLICK", fmt.Sprintf("%s failed for click_trans_id %s: %v", step, req.ClickTransID, err))
	return s.respond(req, CodeUpdateFailed)
}

// snapshot keeps the last callback without its signature.
func (s *Service) snapshot(req Request) string {
	raw, _ := json.Marshal(map[string]string{
		"click_trans_id":    req.ClickTransID,
		"click_paydoc_id":   req.ClickPaydocID,
		"amount":            req.Amount,
		"action":            req.Action,
		"error":             req.Error,
		"error_note":        req.ErrorNote,
		"sign_time":         req.SignTime,
		"merchant_trans_id": req.MerchantTransID,
	})
	return string(raw)
}
