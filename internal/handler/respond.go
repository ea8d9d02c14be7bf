// Package handler provides the HTTP handlers of the arcade API.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/hlog"

	"arcade-backend/internal/auth"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/service"
)

// IdempotencyHeader carries the client-chosen idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil && status < http.StatusInternalServerError {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error to its HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, status, message, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "Insufficient balance"
	case errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound, "Item not found"
	case errors.Is(err, service.ErrDailyAlreadyClaimed):
		return http.StatusConflict, "Daily reward already claimed"
	case errors.Is(err, service.ErrItemAlreadyOwned):
		return http.StatusConflict, "Item already owned"
	case errors.Is(err, retry.ErrTransient):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return nil
}

// accountID returns the authenticated account or writes a 401.
func accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", auth.ErrMissingToken)
		return "", false
	}
	return id, true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}
