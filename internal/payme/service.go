// Package payme implements the Payme merchant API: a JSON-RPC style endpoint
// driving a per-transaction state machine with numeric states.
package payme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-payments/internal/apperr"
	"ms-payments/internal/capture"
	"ms-payments/internal/config"
	"ms-payments/internal/lock"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/store"
)

// ReceiptBuilder produces the fiscal detail returned by
// CheckPerformTransaction.
type ReceiptBuilder interface {
	Build(ctx context.Context, cart *models.Cart, amount int64) (models.FiscalReceipt, error)
	Blocks(cartID string, err error) bool
}

type Service struct {
	db       *store.DB
	locker   lock.Locker
	capturer *capture.Capturer
	receipts ReceiptBuilder
	cfg      config.PaymeConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewService accepts a nil receipts builder, in which case no fiscal detail
// is returned.
func NewService(db *store.DB, locker lock.Locker, capturer *capture.Capturer, receipts ReceiptBuilder, cfg config.PaymeConfig, log *logger.Logger) *Service {
	if cfg.AccountKey == "" {
		cfg.AccountKey = "order_id"
	}
	return &Service{
		db:       db,
		locker:   locker,
		capturer: capturer,
		receipts: receipts,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// timestamp is now at millisecond precision so stored and reported times agree.
func (s *Service) timestamp() time.Time {
	return s.now().Truncate(time.Millisecond)
}

func (s *Service) accountRef(account Account) (string, error) {
	ref, ok := account.Ref(s.cfg.AccountKey)
	if !ok {
		return "", newError(CodeAccountNotFound, s.cfg.AccountKey)
	}
	return ref, nil
}

// validate is the business check shared by CheckPerformTransaction and
// CreateTransaction.
func (s *Service) validate(ctx context.Context, ref string, amount int64) (*models.Cart, error) {
	if amount <= 0 {
		return nil, newError(CodeInvalidAmount, "amount")
	}
	cart, err := s.db.GetCart(ctx, ref)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, newError(CodeAccountNotFound, s.cfg.AccountKey)
	}
	if err != nil {
		return nil, err
	}
	if cart.Converted() {
		return nil, newError(CodeAlreadyPaid, s.cfg.AccountKey)
	}
	if cart.Total() != amount {
		return nil, newError(CodeInvalidAmount, "amount")
	}
	return cart, nil
}

func (s *Service) CheckPerformTransaction(ctx context.Context, p CheckPerformParams) (*CheckPerformResult, error) {
	ref, err := s.accountRef(p.Account)
	if err != nil {
		return nil, err
	}
	cart, err := s.validate(ctx, ref, int64(p.Amount))
	if err != nil {
		return nil, err
	}

	result := &CheckPerformResult{Allow: true}
	if s.receipts == nil {
		return result, nil
	}

	receipt, err := s.receipts.Build(ctx, cart, int64(p.Amount))
	if err != nil && s.receipts.Blocks(cart.ID, err) {
		var mismatch *apperr.ReconciliationMismatch
		if errors.As(err, &mismatch) {
			return nil, newError(CodeInvalidAmount, "detail")
		}
		return nil, err
	}
	result.Detail = receipt
	return result, nil
}

func (s *Service) CreateTransaction(ctx context.Context, p CreateParams) (*CreateResult, error) {
	if p.ID == "" {
		return nil, newError(CodeInvalidRequest, "id")
	}
	ref, err := s.accountRef(p.Account)
	if err != nil {
		return nil, err
	}
	amount := int64(p.Amount)

	release, err := s.locker.Acquire(ctx, "payme:"+p.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.db.GetTransaction(ctx, p.ID)
	switch {
	case err == nil:
		return s.replayCreate(ctx, existing, ref, amount)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	releaseCart, err := s.locker.Acquire(ctx, "cart:"+ref)
	if err != nil {
		return nil, err
	}
	defer releaseCart()

	if _, err := s.validate(ctx, ref, amount); err != nil {
		return nil, err
	}

	other, err := s.db.FindCreatedTransactionByAccount(ctx, ref)
	switch {
	case err == nil && other.ID != p.ID:
		if !other.Expired(s.now(), s.cfg.TxTimeout) {
			return nil, newError(CodeAccountBusy, s.cfg.AccountKey)
		}
		if err := s.cancelExpired(ctx, other); err != nil {
			return nil, err
		}
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	tx := &models.Transaction{
		ID:           p.ID,
		State:        models.StateCreated,
		Amount:       amount,
		AccountRef:   ref,
		ProviderTime: p.Time,
		CreatedAt:    s.timestamp(),
	}
	if err := s.db.InsertTransaction(ctx, tx); err != nil {
		// Another instance may have inserted the same id first.
		if stored, getErr := s.db.GetTransaction(ctx, p.ID); getErr == nil {
			return s.replayCreate(ctx, stored, ref, amount)
		}
		return nil, err
	}

	s.bindSession(ctx, ref, p.ID)
	s.log.LogTransaction(models.ProviderPayme, p.ID, fmt.Sprintf("created for %s=%s amount %d", s.cfg.AccountKey, ref, amount))
	return &CreateResult{CreateTime: ms(tx.CreatedAt), Transaction: tx.ID, State: int(tx.State)}, nil
}

// replayCreate answers a CreateTransaction for an id that already exists.
// The same id with other parameters is a conflict, not a replay.
func (s *Service) replayCreate(ctx context.Context, tx *models.Transaction, ref string, amount int64) (*CreateResult, error) {
	if tx.AccountRef != ref || tx.Amount != amount {
		s.log.Warn("PAYME", fmt.Sprintf("Transaction %s reused with different account or amount", tx.ID))
		return nil, newError(CodeInvalidState, "id")
	}
	if tx.Expired(s.now(), s.cfg.TxTimeout) {
		if err := s.cancelExpired(ctx, tx); err != nil {
			return nil, err
		}
		return nil, newError(CodeInvalidState, "timeout")
	}
	return &CreateResult{CreateTime: ms(tx.CreatedAt), Transaction: tx.ID, State: int(tx.State)}, nil
}

func (s *Service) PerformTransaction(ctx context.Context, p IDParams) (*PerformResult, error) {
	release, err := s.locker.Acquire(ctx, "payme:"+p.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.load(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	switch tx.State {
	case models.StateCompleted:
		return performResult(tx), nil
	case models.StateCreated:
	default:
		return nil, newError(CodeInvalidState, "state")
	}

	if tx.Expired(s.now(), s.cfg.TxTimeout) {
		if err := s.cancelExpired(ctx, tx); err != nil {
			return nil, err
		}
		return nil, newError(CodeInvalidState, "timeout")
	}

	var order *models.Order
	err = s.db.InTx(ctx, func(ctx context.Context, db *store.DB) error {
		tx.State = models.StateCompleted
		tx.PerformedAt = s.timestamp()
		won, err := db.TransitionTransaction(ctx, tx, models.StateCreated, "state", "performed_at")
		if err != nil {
			return err
		}
		if !won {
			return &apperr.StateConflictError{Entity: "transaction", ID: tx.ID, From: models.StateCreated.String(), To: models.StateCompleted.String()}
		}

		order, err = s.capturer.Capture(ctx, db, capture.Request{
			Provider:      models.ProviderPayme,
			TransactionID: tx.ID,
			CartID:        tx.AccountRef,
			Amount:        tx.Amount,
		})
		if err != nil {
			return err
		}
		tx.OrderID = order.OrderID
		if err := db.SetTransactionOrder(ctx, tx.ID, order.OrderID); err != nil {
			return err
		}
		return s.finishSession(ctx, db, tx.ID, models.SessionCompleted, order.OrderID)
	})

	var conflict *apperr.StateConflictError
	switch {
	case errors.As(err, &conflict):
		current, loadErr := s.load(ctx, p.ID)
		if loadErr == nil && current.State == models.StateCompleted {
			return performResult(current), nil
		}
		return nil, newError(CodeInvalidState, "state")
	case errors.Is(err, capture.ErrAlreadyPaid):
		return nil, newError(CodeInvalidState, s.cfg.AccountKey)
	case err != nil:
		return nil, err
	}

	s.capturer.AfterCapture(order)
	s.log.LogTransaction(models.ProviderPayme, tx.ID, "performed as order "+order.OrderID)
	return performResult(tx), nil
}

func (s *Service) CheckTransaction(ctx context.Context, p IDParams) (*CheckResult, error) {
	tx, err := s.load(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &CheckResult{
		CreateTime:  ms(tx.CreatedAt),
		PerformTime: ms(tx.PerformedAt),
		CancelTime:  ms(tx.CancelledAt),
		Transaction: tx.ID,
		State:       int(tx.State),
		Reason:      tx.CancelReason,
	}, nil
}

func (s *Service) CancelTransaction(ctx context.Context, p CancelParams) (*CancelResult, error) {
	release, err := s.locker.Acquire(ctx, "payme:"+p.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.load(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	switch tx.State {
	case models.StateCreated:
		tx.State = models.StateCancelledBeforeComplete
		tx.CancelledAt = s.timestamp()
		tx.CancelReason = &p.Reason
		err := s.db.InTx(ctx, func(ctx context.Context, db *store.DB) error {
			won, err := db.TransitionTransaction(ctx, tx, models.StateCreated, "state", "cancelled_at", "cancel_reason")
			if err != nil {
				return err
			}
			if !won {
				return &apperr.StateConflictError{Entity: "transaction", ID: tx.ID, From: models.StateCreated.String(), To: tx.State.String()}
			}
			return s.finishSession(ctx, db, tx.ID, models.SessionCancelled, "")
		})
		if err != nil {
			return s.cancelConflict(ctx, p.ID, err)
		}
		s.log.LogTransaction(models.ProviderPayme, tx.ID, fmt.Sprintf("cancelled before perform, reason %d", p.Reason))
		return cancelResult(tx), nil

	case models.StateCompleted:
		var order *models.Order
		tx.State = models.StateCancelledAfterComplete
		tx.CancelledAt = s.timestamp()
		tx.CancelReason = &p.Reason
		err := s.db.InTx(ctx, func(ctx context.Context, db *store.DB) error {
			won, err := db.TransitionTransaction(ctx, tx, models.StateCompleted, "state", "cancelled_at", "cancel_reason")
			if err != nil {
				return err
			}
			if !won {
				return &apperr.StateConflictError{Entity: "transaction", ID: tx.ID, From: models.StateCompleted.String(), To: tx.State.String()}
			}
			orderID := tx.OrderID
			if orderID == "" {
				o, err := db.GetOrderByCart(ctx, tx.AccountRef)
				if err != nil {
					return err
				}
				orderID = o.OrderID
			}
			order, err = s.capturer.Refund(ctx, db, orderID)
			return err
		})
		switch {
		case errors.Is(err, capture.ErrAlreadyRefunded), errors.Is(err, capture.ErrNotRefundable):
			s.log.Warn("PAYME", fmt.Sprintf("Refusing to cancel %s: %v", tx.ID, err))
			return nil, newError(CodeUnableToCancel, "state")
		case err != nil:
			return s.cancelConflict(ctx, p.ID, err)
		}
		s.capturer.AfterRefund(order, p.Reason)
		s.log.LogTransaction(models.ProviderPayme, tx.ID, fmt.Sprintf("cancelled after perform, reason %d, order %s refunded", p.Reason, order.OrderID))
		return cancelResult(tx), nil

	default:
		return cancelResult(tx), nil
	}
}

// cancelConflict resolves a lost cancel race by answering with whatever
// state the winner left behind.
func (s *Service) cancelConflict(ctx context.Context, id string, err error) (*CancelResult, error) {
	var conflict *apperr.StateConflictError
	if !errors.As(err, &conflict) {
		return nil, err
	}
	current, loadErr := s.load(ctx, id)
	if loadErr == nil && current.State.Cancelled() {
		return cancelResult(current), nil
	}
	return nil, newError(CodeUnableToCancel, "state")
}

func (s *Service) GetStatement(ctx context.Context, p StatementParams) (*StatementResult, error) {
	if p.From > p.To {
		return nil, newError(CodeInvalidRequest, "from")
	}
	txs, err := s.db.ListTransactionsCreatedBetween(ctx, time.UnixMilli(p.From).UTC(), time.UnixMilli(p.To).UTC())
	if err != nil {
		return nil, err
	}

	result := &StatementResult{Transactions: make([]StatementEntry, 0, len(txs))}
	for _, tx := range txs {
		result.Transactions = append(result.Transactions, StatementEntry{
			ID:          tx.ID,
			Time:        tx.ProviderTime,
			Amount:      tx.Amount,
			Account:     map[string]string{s.cfg.AccountKey: tx.AccountRef},
			CreateTime:  ms(tx.CreatedAt),
			PerformTime: ms(tx.PerformedAt),
			CancelTime:  ms(tx.CancelledAt),
			Transaction: tx.ID,
			State:       int(tx.State),
			Reason:      tx.CancelReason,
		})
	}
	return result, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Transaction, error) {
	if id == "" {
		return nil, newError(CodeInvalidRequest, "id")
	}
	tx, err := s.db.GetTransaction(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, newError(CodeTxNotFound, "id")
	}
	return tx, err
}

func (s *Service) cancelExpired(ctx context.Context, tx *models.Transaction) error {
	reason := models.ReasonTimeout
	tx.State = models.StateCancelledBeforeComplete
	tx.CancelledAt = s.timestamp()
	tx.CancelReason = &reason
	return s.db.InTx(ctx, func(ctx context.Context, db *store.DB) error {
		won, err := db.TransitionTransaction(ctx, tx, models.StateCreated, "state", "cancelled_at", "cancel_reason")
		if err != nil {
			return err
		}
		if won {
			s.log.LogTransaction(models.ProviderPayme, tx.ID, "cancelled after timeout")
			return s.finishSession(ctx, db, tx.ID, models.SessionCancelled, "")
		}
		return nil
	})
}

// bindSession attaches the new transaction to the storefront's open Payme
// session for the cart, if there is one.
func (s *Service) bindSession(ctx context.Context, cartID, txID string) {
	session, err := s.db.LatestSessionForCart(ctx, cartID, models.ProviderPayme, models.SessionCreated)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn("PAYME", fmt.Sprintf("Session lookup for cart %s failed: %v", cartID, err))
		}
		return
	}
	session.State = models.SessionPrepared
	session.ProviderTransID = txID
	session.UpdatedAt = s.now()
	if _, err := s.db.TransitionSession(ctx, session, models.SessionCreated, "state", "provider_trans_id", "updated_at"); err != nil {
		s.log.Warn("PAYME", fmt.Sprintf("Binding session %d to %s failed: %v", session.ID, txID, err))
	}
}

func (s *Service) finishSession(ctx context.Context, db *store.DB, txID string, state models.SessionState, orderID string) error {
	session, err := db.GetSessionByProviderTrans(ctx, models.ProviderPayme, txID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	session.State = state
	session.UpdatedAt = s.now()
	cols := []string{"state", "updated_at"}
	if orderID != "" {
		session.OrderID = orderID
		cols = append(cols, "order_id")
	}
	return db.UpdateSession(ctx, session, cols...)
}

func performResult(tx *models.Transaction) *PerformResult {
	return &PerformResult{PerformTime: ms(tx.PerformedAt), Transaction: tx.ID, State: int(tx.State)}
}

func cancelResult(tx *models.Transaction) *CancelResult {
	return &CancelResult{CancelTime: ms(tx.CancelledAt), Transaction: tx.ID, State: int(tx.State)}
}
