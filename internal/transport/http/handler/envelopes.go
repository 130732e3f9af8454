package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// Error codes carried in a failed Result.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

// Result is the envelope every endpoint responds with.
type Result struct {
	OK    bool      `json:"ok"`
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IdentityView is the public shape of a user. Timestamps are Unix milliseconds.
type IdentityView struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName,omitempty"`
	IsActive    bool    `json:"isActive"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

type TokenView struct {
	Value     string `json:"value"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

type SendCodeData struct {
	ExpiresAt        int64  `json:"expiresAt"`
	MaskedIdentifier string `json:"maskedIdentifier"`
}

type VerifyCodeData struct {
	Identity IdentityView `json:"identity"`
	Token    TokenView    `json:"token"`
}

type MeData struct {
	Identity IdentityView `json:"identity"`
}

type MessageData struct {
	Message string `json:"message"`
}

func toIdentityView(u *domain.User) IdentityView {
	return IdentityView{
		ID:          u.UserID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsActive:    u.IsActive,
		CreatedAt:   millis(u.CreatedAt),
		UpdatedAt:   millis(u.UpdatedAt),
	}
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Result{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, Result{Error: &APIError{Code: code, Message: msg}})
}

// writeServiceError maps a service error onto the HTTP error taxonomy.
// Unclassified errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := http.StatusInternalServerError, CodeInternal, "Internal server error."
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		status, code, msg = http.StatusBadRequest, CodeValidation, "Invalid request."
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, msg = http.StatusUnauthorized, CodeUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrTooManyRequests):
		status, code, msg = http.StatusTooManyRequests, CodeTooManyRequests, "Too many requests."
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, status, code, msg)
		return
	}
	var pe *domain.PublicError
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	writeError(w, status, code, msg)
}
