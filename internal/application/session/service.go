package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/id"
	pkgtoken "github.com/go-passwordless/internal/pkg/token"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTouchTimeout = 5 * time.Second
	defaultTouchBackoff = 100 * time.Millisecond
)

type Service interface {
	GenerateToken() (string, error)
	Create(ctx context.Context, userID, token string, expiresAt time.Time, meta domain.SessionMetadata) (*domain.Session, error)
	// FindByToken returns nil, nil when no session carries token.
	FindByToken(ctx context.Context, token string) (*domain.Session, error)
	IsExpired(s *domain.Session) bool
	// TouchLastUsed records session activity in the background. Failures are logged only.
	TouchLastUsed(sessionID string)
	Authenticate(ctx context.Context, token string) (*domain.User, *domain.Session, error)
	// Flush blocks until every pending TouchLastUsed has finished.
	Flush()
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	UpdateLastUsed(ctx context.Context, sessionID string, at time.Time) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type service struct {
	sessionRepo  sessionStore
	userRepo     userStore
	touchTimeout time.Duration
	touchRetries uint64
	touchBackoff time.Duration
	now          func() time.Time
	touches      sync.WaitGroup
}

type ServiceDeps struct {
	SessionRepo  sessionStore
	UserRepo     userStore
	TouchTimeout time.Duration
	TouchRetries int
	// TouchBackoff is the pause between touch retries. Zero means 100ms.
	TouchBackoff time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		sessionRepo:  deps.SessionRepo,
		userRepo:     deps.UserRepo,
		touchTimeout: deps.TouchTimeout,
		touchBackoff: deps.TouchBackoff,
		now:          deps.Now,
	}
	if deps.TouchRetries > 0 {
		s.touchRetries = uint64(deps.TouchRetries)
	}
	if s.touchTimeout <= 0 {
		s.touchTimeout = defaultTouchTimeout
	}
	if s.touchBackoff <= 0 {
		s.touchBackoff = defaultTouchBackoff
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) GenerateToken() (string, error) {
	return pkgtoken.NewSessionToken()
}

func (s *service) Create(ctx context.Context, userID, token string, expiresAt time.Time, meta domain.SessionMetadata) (*domain.Session, error) {
	sess := &domain.Session{
		SessionID: id.New(),
		Token:     token,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
		ExpiresAt: expiresAt.UTC(),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	sessionsIssued.Inc()
	return sess, nil
}

func (s *service) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := s.sessionRepo.GetByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *service) IsExpired(sess *domain.Session) bool {
	return !s.now().Before(sess.ExpiresAt)
}

func (s *service) TouchLastUsed(sessionID string) {
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.touchTimeout)
		defer cancel()

		backoff := retry.WithMaxRetries(s.touchRetries, retry.NewConstant(s.touchBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := s.sessionRepo.UpdateLastUsed(ctx, sessionID, s.now().UTC()); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			touchFailures.Inc()
			slog.Warn("failed to update session last_used_at", "session_id", sessionID, "err", err)
		}
	}()
}

func (s *service) Flush() {
	s.touches.Wait()
}

func (s *service) Authenticate(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	sess, err := s.FindByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		authFailures.WithLabelValues("unknown_token").Inc()
		return nil, nil, fmt.Errorf("session not found: %w", domain.ErrUnauthorized)
	}
	if s.IsExpired(sess) {
		authFailures.WithLabelValues("expired").Inc()
		return nil, nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	u, err := s.userRepo.Get(ctx, sess.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		authFailures.WithLabelValues("unknown_user").Inc()
		return nil, nil, fmt.Errorf("session user not found: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	if !u.IsActive {
		authFailures.WithLabelValues("inactive_user").Inc()
		return nil, nil, fmt.Errorf("user inactive: %w", domain.ErrUnauthorized)
	}
	return u, sess, nil
}
