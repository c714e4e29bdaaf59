package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response has the same shape:
//   {"error": "validation_error", "message": "This slug is already taken...", "field": "slug"}
//
// "field" is only present for validation errors tied to one form input, so
// the frontend can put the message next to that input.
//
// WORKFLOW RESULTS:
// A successful (or partially successful) workflow answers 200 with
//   {"status": "success", "redirect": "/dashboard", "message": "...", "data": ...}
// and "status": "partial" plus "warning" when a later step failed.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/service"
)

// ErrorResponse is the standard error format returned by all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Form field the message belongs to
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, the headers are sent and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeResult(w http.ResponseWriter, res *service.Result) {
	writeJSON(w, http.StatusOK, res)
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// The service layer returns apperror kinds; this is the only place they turn
// into HTTP status codes:
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401
//	ErrForbidden    → 403
//	ErrNotFound     → 404
//	ErrConflict     → 409 (duplicate submission)
//	backend rejected the access token → 401, see sessionRejected
//	anything else   → 500 with a generic message
//
// errors.As walks the whole chain, so a kind wrapped with
// fmt.Errorf("...: %w", err) still maps correctly.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: appErr.Message,
				Field:   appErr.Field,
			})
			return
		}
	}

	if baas.IsAuth(err) {
		sessionRejected(w, r)
		return
	}

	// Unknown error: never expose internal details (SQL, URLs, tokens) to
	// the client. The workflow runner has already logged it.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Something went wrong. Please try again.",
	})
}

// sessionRejected answers a data call the backend refused because of the
// request's access token. The token is refreshed once; if that fails too
// the session ends, and the next request sees the browser signed out.
func sessionRejected(w http.ResponseWriter, r *http.Request) {
	message := "Your session has expired. Please sign in again."
	st := snapshot(r)
	if store, _ := browser(r); store != nil && st.Session != nil {
		fresh, err := store.Auth().RefreshRejected(r.Context(), st.Session.AccessToken)
		if err != nil {
			slog.Error("refreshing rejected session failed", slog.String("error", err.Error()))
		}
		if fresh != nil {
			message = "Your session was renewed. Please try again."
		}
	}
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:   "session_expired",
		Message: message,
	})
}

// NotFound is the catch-all for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "The page " + r.URL.Path + " does not exist.",
	})
}
