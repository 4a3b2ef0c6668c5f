package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/lifecycle"
	"github.com/srg/uwave/internal/registry"
)

// Error codes returned in the error body.
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeCancelled        = "cancelled"
	ErrCodeConnectionFailed = "connection_failed"
	ErrCodeTransport        = "transport_error"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeInternal         = "internal_error"
)

// Error is the JSON error body.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// classify maps a domain error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, registry.ErrDuplicateDevice), errors.Is(err, lifecycle.ErrAlreadyConnecting),
		errors.Is(err, lifecycle.ErrConnectAborted):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, device.ErrUserCancelled):
		return http.StatusRequestTimeout, ErrCodeCancelled
	case errors.Is(err, lifecycle.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, lifecycle.ErrConnectionFailed):
		return http.StatusBadGateway, ErrCodeConnectionFailed
	case errors.Is(err, device.ErrTransport):
		return http.StatusBadGateway, ErrCodeTransport
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}
