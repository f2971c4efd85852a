// Package apperr defines the error taxonomy shared by both provider adapters,
// the fiscal reconciler and the completion reconciler.
//
// Provider packages translate these into their own wire codes; the HTTP
// surfaces that are not provider-facing use HTTPStatus.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is the sentinel every NotFoundError matches with errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed account, amount or request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Kind() string { return "validation" }

// StateConflictError reports an illegal state transition.
type StateConflictError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: %s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *StateConflictError) Kind() string { return "state_conflict" }

// SignatureError is a failed provider signature or credential check. It never
// carries the expected value.
type SignatureError struct {
	Provider string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature check failed for %s request", e.Provider)
}

func (e *SignatureError) Kind() string { return "signature" }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Kind() string { return "not_found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ReconciliationMismatch is raised when a fiscal receipt does not add up to the
// transaction amount within tolerance.
type ReconciliationMismatch struct {
	Expected    int64
	FiscalTotal int64
	Tolerance   int64
}

func (e *ReconciliationMismatch) Error() string {
	return fmt.Sprintf("fiscal total %d differs from amount %d by more than %d", e.FiscalTotal, e.Expected, e.Tolerance)
}

func (e *ReconciliationMismatch) Kind() string { return "reconciliation_mismatch" }

// Delta is FiscalTotal - Expected.
func (e *ReconciliationMismatch) Delta() int64 { return e.FiscalTotal - e.Expected }

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type kinder interface {
	Kind() string
}

// Kind classifies err for logs and metrics.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

var kindToStatus = map[string]int{
	"validation":              http.StatusBadRequest,
	"state_conflict":          http.StatusConflict,
	"signature":               http.StatusUnauthorized,
	"not_found":               http.StatusNotFound,
	"reconciliation_mismatch": http.StatusUnprocessableEntity,
	"timeout":                 http.StatusGatewayTimeout,
	"canceled":                http.StatusRequestTimeout,
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
