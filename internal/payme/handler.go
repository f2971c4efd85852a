package payme

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"ms-payments/internal/logger"
)

const (
	authLogin    = "Paycom"
	maxBodyBytes = 1 << 20
)

var nullID = json.RawMessage("null")

// Handler serves the single Payme endpoint. Every outcome is HTTP 200 with
// the result or error in the envelope.
type Handler struct {
	Service *Service
	Key     string
	Logger  *logger.Logger
}

func NewHandler(service *Service, key string, log *logger.Logger) *Handler {
	return &Handler{Service: service, Key: key, Logger: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.write(w, nullID, nil, newError(CodeParseError, ""))
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		h.write(w, nullID, nil, newError(CodeParseError, ""))
		return
	}
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}

	if !h.authorized(r) {
		h.Logger.LogSecurity("PAYME_AUTH_FAILED", fmt.Sprintf("Rejected %s from %s", req.Method, r.RemoteAddr))
		h.write(w, id, nil, newError(CodeUnauthorized, ""))
		return
	}

	if req.Method == "" {
		h.write(w, id, nil, newError(CodeInvalidRequest, "method"))
		return
	}

	result, err := h.dispatch(r.Context(), req)
	if err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			h.Logger.Error("PAYME", fmt.Sprintf("%s failed [%s]: %v", req.Method, middleware.GetReqID(r.Context()), err))
			perr = newError(CodeSystemError, "")
		}
		h.write(w, id, nil, perr)
		return
	}
	h.write(w, id, result, nil)
}

func (h *Handler) authorized(r *http.Request) bool {
	login, password, ok := r.BasicAuth()
	if !ok || h.Key == "" {
		return false
	}
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(authLogin)) == 1
	keyOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.Key)) == 1
	return loginOK && keyOK
}

func (h *Handler) dispatch(ctx context.Context, req request) (interface{}, error) {
	switch req.Method {
	case MethodCheckPerformTransaction:
		var p CheckPerformParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.Service.CheckPerformTransaction(ctx, p)
	case MethodCreateTransaction:
		var p CreateParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.Service.CreateTransaction(ctx, p)
	case MethodPerformTransaction:
		var p IDParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.Service.PerformTransaction(ctx, p)
	case MethodCheckTransaction:
		var p IDParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.Service.CheckTransaction(ctx, p)
	case MethodCancelTransaction:
		var p CancelParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.Service.CancelTransaction(ctx, p)
	case MethodGetStatement:
		var p StatementParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.Service.GetStatement(ctx, p)
	default:
		return nil, newError(CodeMethodNotFound, req.Method)
	}
}

func (h *Handler) write(w http.ResponseWriter, id json.RawMessage, result interface{}, perr *Error) {
	resp := response{JSONRPC: "2.0", ID: id}
	if perr != nil {
		resp.Error = perr
	} else {
		resp.Result = result
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("PAYME", "Failed to encode response: "+err.Error())
	}
}
