package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ms-payments/internal/apperr"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/sse"
	"ms-payments/internal/utils"
)

const (
	statusReady      = "ready"
	statusProcessing = "processing"
	statusCancelled  = "cancelled"
)

// OrderFinder maps a correlation id to its order without waiting.
type OrderFinder interface {
	Lookup(ctx context.Context, ref string) (string, error)
}

type Handler struct {
	Service *Service
	Orders  OrderFinder
	Logger  *logger.Logger

	// Events enables the server-sent events endpoint when set.
	Events        *sse.CheckoutEventEmitter
	StreamTimeout time.Duration
}

func NewHandler(service *Service, orders OrderFinder, log *logger.Logger) *Handler {
	return &Handler{Service: service, Orders: orders, Logger: log}
}

// Routes mounts the storefront endpoints under the caller's prefix.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Start)
	r.Get("/{correlationId}/order", h.Order)
	r.Get("/{correlationId}/qr", h.QR)
	if h.Events != nil {
		r.Get("/{correlationId}/events", h.Stream)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	if !IsClientError(err) {
		h.Logger.Error("CHECKOUT", fmt.Sprintf("%s [%s]: %v", message, middleware.GetReqID(r.Context()), err))
	}
	utils.WriteError(w, message, err)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "Invalid request payload", apperr.Invalid("body", err.Error()))
		return
	}

	resp, err := h.Service.Start(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Could not start checkout", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, resp)
}

// Order answers 200 once the order exists and 202 while the provider
// callback has not produced it yet.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := chi.URLParam(r, "correlationId")

	session, err := h.Service.Session(ctx, correlationID)
	if err != nil {
		h.fail(w, r, "Unknown checkout", err)
		return
	}

	orderID, err := h.Orders.Lookup(ctx, correlationID)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, models.OrderLookupResponse{Status: statusReady, OrderID: orderID})
	case errors.Is(err, apperr.ErrNotFound) && session.State == models.SessionCancelled:
		utils.WriteJSON(w, http.StatusOK, models.OrderLookupResponse{Status: statusCancelled})
	case errors.Is(err, apperr.ErrNotFound):
		utils.WriteJSON(w, http.StatusAccepted, models.OrderLookupResponse{Status: statusProcessing})
	default:
		h.fail(w, r, "Order lookup failed", err)
	}
}

func (h *Handler) QR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Service.QRCode(r.Context(), chi.URLParam(r, "correlationId"))
	if err != nil {
		h.fail(w, r, "Could not render QR code", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
