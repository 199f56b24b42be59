package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"citefleurie/internal/util"
	"citefleurie/services/site/internal/app"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, envelope{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

// writeAppError maps an app error kind to its status and code. Internal
// causes are logged, never returned.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	writeAppErrorWithData(w, r, err, nil)
}

func writeAppErrorWithData(w http.ResponseWriter, r *http.Request, err error, data any) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request_failed", "code", code, "err", err)
	}
	writeJSON(w, status, envelope{
		Data:      data,
		Error:     app.Message(err),
		Code:      code,
		Retryable: status == http.StatusServiceUnavailable,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, app.ErrUnauthorized):
		return http.StatusUnauthorized, "AUTH_INVALID_TOKEN"
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, app.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, app.ErrEmail):
		return http.StatusBadGateway, "EMAIL_FAILED"
	case errors.Is(err, app.ErrStorage) && app.IsRetryable(err):
		return http.StatusServiceUnavailable, "STORAGE_TIMEOUT"
	case errors.Is(err, app.ErrStorage):
		return http.StatusInternalServerError, "STORAGE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR"
	}
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return false
	}
	return true
}
