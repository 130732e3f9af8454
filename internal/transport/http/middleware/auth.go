package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-passwordless/internal/domain"
)

const (
	bearerPrefix = "bearer "

	msgBadHeader    = "Missing or invalid Authorization header."
	msgUnauthorized = "Unauthorized"
	msgAuthFailed   = "Unable to authenticate request."
)

type contextKey string

const (
	identityKey contextKey = "identity"
	sessionKey  contextKey = "session"
)

// Authenticator resolves a bearer token to a live session and its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, *domain.Session, error)
	TouchLastUsed(sessionID string)
}

// Auth returns middleware that requires a valid session token. The resolved
// user and session are stored in the request context and the session's
// last-used time is refreshed in the background.
func Auth(svc Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, codeUnauthorized, msgBadHeader)
				return
			}
			u, sess, err := svc.Authenticate(r.Context(), token)
			if errors.Is(err, domain.ErrUnauthorized) {
				writeJSONError(w, http.StatusUnauthorized, codeUnauthorized, msgUnauthorized)
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to authenticate request", "err", err)
				writeJSONError(w, http.StatusInternalServerError, codeInternal, msgAuthFailed)
				return
			}
			svc.TouchLastUsed(sess.SessionID)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), u, sess)))
		})
	}
}

// bearerToken extracts the credential from an Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// WithIdentity returns a copy of ctx carrying the authenticated user and session.
func WithIdentity(ctx context.Context, u *domain.User, s *domain.Session) context.Context {
	ctx = context.WithValue(ctx, identityKey, u)
	return context.WithValue(ctx, sessionKey, s)
}

// IdentityFromContext extracts the authenticated user from the request context.
func IdentityFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(identityKey).(*domain.User)
	return u, ok && u != nil
}

// SessionFromContext extracts the authenticated session from the request context.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*domain.Session)
	return s, ok && s != nil
}
