package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// Error is the body of every failed request: {"error":{"code","message"}}.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error Error `json:"error"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeValidation         = "validation"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeAccountSuspended   = "account_suspended"
	ErrCodeInvalidResetToken  = "invalid_or_expired_token"
	ErrCodeUnknownTag         = "unknown_tag"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeUnavailable        = "unavailable"
	ErrCodeInternal           = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: Error{Code: code, Message: message}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// authFailure maps an error from the access-control core onto a status,
// code and caller-facing message. Messages are fixed strings; the wrapped
// detail stays in the logs.
func authFailure(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, "service temporarily unavailable"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid username or password"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "session expired"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "invalid session"
	case errors.Is(err, auth.ErrAccountSuspended):
		return http.StatusForbidden, ErrCodeAccountSuspended, "account is suspended"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, ErrCodeForbidden, "permission denied"
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, ErrCodeInvalidResetToken, "reset token is invalid or expired"
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, ErrCodeValidation, err.Error()
	case errors.Is(err, auth.ErrUnknownTag):
		return http.StatusBadRequest, ErrCodeUnknownTag, "unknown permission tag"
	case errors.Is(err, auth.ErrInvalidStatus):
		return http.StatusBadRequest, ErrCodeValidation, "invalid account status"
	case errors.Is(err, auth.ErrRoleNotFound):
		return http.StatusBadRequest, ErrCodeValidation, "unknown role"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "user not found"
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict, ErrCodeConflict, "username already exists"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}

// writeAuthError writes the response for err and logs anything that is
// not an expected client outcome.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := authFailure(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeError(w, status, code, message)
}
