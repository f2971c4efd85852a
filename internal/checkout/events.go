package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-payments/internal/models"
)

const (
	defaultStreamTimeout = 2 * time.Minute
	heartbeatInterval    = 15 * time.Second
)

// Stream holds a server-sent events connection open until the checkout's
// order exists, then sends one "order" event and closes. A "timeout" event
// tells the client to fall back to polling.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationId")
	session, err := h.Service.Session(r.Context(), correlationID)
	if err != nil {
		h.fail(w, r, "Unknown checkout", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	timeout := h.StreamTimeout
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	// Subscribe before the first lookup so a capture in between is not missed.
	captures := h.Events.Subscribe(ctx, session.CartID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if orderID, err := h.Orders.Lookup(ctx, correlationID); err == nil {
		writeEvent(w, flusher, "order", models.OrderLookupResponse{Status: statusReady, OrderID: orderID})
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case ev, open := <-captures:
			if open {
				writeEvent(w, flusher, "order", models.OrderLookupResponse{Status: statusReady, OrderID: ev.OrderID})
				return
			}
			// Closed means ctx is done.
			if r.Context().Err() == nil {
				writeEvent(w, flusher, "timeout", models.OrderLookupResponse{Status: statusProcessing})
			}
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
