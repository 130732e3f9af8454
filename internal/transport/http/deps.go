package http

import (
	"context"
	"time"

	"github.com/go-passwordless/internal/application/session"
	"github.com/go-passwordless/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	UpsertByEmail(ctx context.Context, email string, displayName *string) (*domain.User, error)
}

// SessionRepository is the minimal interface the router requires from a session store.
type SessionRepository interface {
	Put(ctx context.Context, s *domain.Session) error
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	UpdateLastUsed(ctx context.Context, sessionID string, at time.Time) error
}

// VerificationStore is the minimal interface the router requires from a one-time code store.
type VerificationStore interface {
	Create(ctx context.Context, identifier, code string) (*domain.VerificationRecord, error)
	Verify(ctx context.Context, identifier, code string) (domain.VerificationOutcome, error)
}

// CodeSender delivers one-time codes to the user.
type CodeSender interface {
	SendCode(ctx context.Context, to, code string) error
}

// Deps holds all infrastructure dependencies for the router. Sessions is
// built by the caller so it can be flushed on shutdown.
type Deps struct {
	UserRepo      UserRepository
	Verifications VerificationStore
	Sender        CodeSender
	Sessions      session.Service
}
