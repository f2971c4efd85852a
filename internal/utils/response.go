package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-payments/internal/apperr"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message string, err error) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     err.Error(),
		Kind:      apperr.Kind(err),
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError picks the status from the error kind. Internal errors are not
// echoed to the client.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		WriteJSON(w, status, APIResponse{Success: false, Message: message, Error: "internal error", Kind: "internal", Timestamp: time.Now().UTC()})
		return
	}
	WriteJSON(w, status, ErrorResponse(message, err))
}
