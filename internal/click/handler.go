package click

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ms-payments/internal/config"
	"ms-payments/internal/logger"
	"ms-payments/internal/lookup"
)

// failureStatuses are the return-callback statuses that skip polling.
var failureStatuses = map[string]bool{
	"cancelled": true,
	"canceled":  true,
	"error":     true,
	"failed":    true,
}

// OrderResolver finds the order a storefront reference turned into.
type OrderResolver interface {
	Poll(ctx context.Context, ref string) (string, error)
}

type Handler struct {
	Service  *Service
	Resolver OrderResolver
	Redirect config.RedirectConfig
	Logger   *logger.Logger
}

func parseRequest(r *http.Request) (Request, error) {
	if err := r.ParseForm(); err != nil {
		return Request{}, err
	}
	f := r.PostForm
	if len(f) == 0 {
		f = r.Form
	}
	return Request{
		ClickTransID:      f.Get("click_trans_id"),
		ServiceID:         f.Get("service_id"),
		ClickPaydocID:     f.Get("click_paydoc_id"),
		MerchantTransID:   f.Get("merchant_trans_id"),
		MerchantPrepareID: f.Get("merchant_prepare_id"),
		Amount:            f.Get("amount"),
		Action:            f.Get("action"),
		Error:             f.Get("error"),
		ErrorNote:         f.Get("error_note"),
		SignTime:          f.Get("sign_time"),
		SignString:        f.Get("sign_string"),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Prepare handles POST /click/prepare. Click always gets HTTP 200; the
// outcome is in the error field.
func (h *Handler) Prepare(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeJSON(w, http.StatusOK, Response{Error: CodeBadRequest, ErrorNote: note(CodeBadRequest)})
		return
	}
	writeJSON(w, http.StatusOK, h.Service.Prepare(r.Context(), req))
}

// Complete handles POST /click/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeJSON(w, http.StatusOK, Response{Error: CodeBadRequest, ErrorNote: note(CodeBadRequest)})
		return
	}
	writeJSON(w, http.StatusOK, h.Service.Complete(r.Context(), req))
}

// Return handles the browser coming back from Click. It waits a bounded time
// for the order to materialize and redirects to the storefront.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ref := r.Form.Get("correlation_id")
	if ref == "" {
		ref = r.Form.Get("merchant_trans_id")
	}
	status := strings.ToLower(r.Form.Get("status"))
	code, _ := strconv.Atoi(r.Form.Get("error"))

	if failureStatuses[status] || code < 0 {
		h.Logger.Info("CLICK", fmt.Sprintf("Return for %s reports status=%q error=%d", ref, status, code))
		http.Redirect(w, r, withQuery(h.Redirect.FailureURL, "ref", ref), http.StatusFound)
		return
	}
	if ref == "" {
		http.Error(w, "missing correlation_id or merchant_trans_id", http.StatusBadRequest)
		return
	}

	orderID, err := h.Resolver.Poll(r.Context(), ref)
	if errors.Is(err, lookup.ErrProcessing) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing", "ref": ref})
		return
	}
	if err != nil {
		h.Logger.Error("CLICK", fmt.Sprintf("Return lookup for %s failed: %v", ref, err))
		http.Redirect(w, r, withQuery(h.Redirect.FailureURL, "ref", ref), http.StatusFound)
		return
	}

	http.Redirect(w, r, withQuery(h.Redirect.SuccessURL, "order_id", orderID), http.StatusFound)
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
