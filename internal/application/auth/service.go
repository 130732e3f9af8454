package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-passwordless/internal/application/session"
	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/otp"
	"github.com/go-passwordless/internal/pkg/validate"
)

// Messages returned to callers for each failed verification outcome.
const (
	MsgCodeExpired     = "Verification code expired. Request a new code."
	MsgTooManyAttempts = "Too many attempts. Please request a new verification code."
	MsgInvalidCode     = "Invalid verification code."
)

type SendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,otp"`
}

// CodeRequest describes an issued code without revealing it.
type CodeRequest struct {
	ExpiresAt        time.Time
	MaskedIdentifier string
}

// LoginResult is the outcome of a successful verification.
type LoginResult struct {
	User     *domain.User
	Session  *domain.Session
	IssuedAt time.Time
}

type Service interface {
	RequestCode(ctx context.Context, req SendCodeRequest) (*CodeRequest, error)
	VerifyCode(ctx context.Context, req VerifyCodeRequest, meta domain.SessionMetadata) (*LoginResult, error)
}

type verificationStore interface {
	Create(ctx context.Context, identifier, code string) (*domain.VerificationRecord, error)
	Verify(ctx context.Context, identifier, code string) (domain.VerificationOutcome, error)
}

type userStore interface {
	UpsertByEmail(ctx context.Context, email string, displayName *string) (*domain.User, error)
}

type codeSender interface {
	SendCode(ctx context.Context, to, code string) error
}

type service struct {
	verifications verificationStore
	users         userStore
	sessions      session.Service
	sender        codeSender
	newCode       func() (string, error)
	sessionTTL    time.Duration
	now           func() time.Time
}

type ServiceDeps struct {
	Verifications verificationStore
	UserRepo      userStore
	Sessions      session.Service
	Sender        codeSender
	// FixedCode, when set, replaces random codes. Development only.
	FixedCode  string
	SessionTTL time.Duration
	Now        func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		verifications: deps.Verifications,
		users:         deps.UserRepo,
		sessions:      deps.Sessions,
		sender:        deps.Sender,
		newCode:       otp.NewCode,
		sessionTTL:    deps.SessionTTL,
		now:           deps.Now,
	}
	if deps.FixedCode != "" {
		fixed := deps.FixedCode
		s.newCode = func() (string, error) { return fixed, nil }
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = domain.DefaultSessionTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) RequestCode(ctx context.Context, req SendCodeRequest) (*CodeRequest, error) {
	req.Email = NormalizeIdentifier(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, domain.NewPublicError(domain.ErrBadRequest, err.Error())
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	rec, err := s.verifications.Create(ctx, req.Email, code)
	if err != nil {
		return nil, err
	}
	codesRequested.Inc()

	if err := s.sender.SendCode(ctx, req.Email, code); err != nil {
		codeDeliveryFailures.Inc()
		slog.Error("failed to deliver verification code", "destination", MaskIdentifier(req.Email), "err", err)
	}
	return &CodeRequest{ExpiresAt: rec.ExpiresAt, MaskedIdentifier: MaskIdentifier(req.Email)}, nil
}

func (s *service) VerifyCode(ctx context.Context, req VerifyCodeRequest, meta domain.SessionMetadata) (*LoginResult, error) {
	req.Email = NormalizeIdentifier(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if err := validate.Struct(req); err != nil {
		return nil, domain.NewPublicError(domain.ErrBadRequest, err.Error())
	}

	outcome, err := s.verifications.Verify(ctx, req.Email, req.Code)
	if err != nil {
		return nil, err
	}
	verificationOutcomes.WithLabelValues(outcome.String()).Inc()
	if outcome != domain.VerificationSuccess {
		return nil, outcomeError(outcome)
	}

	// The code is consumed from here on; failures below are not rolled back.
	u, err := s.users.UpsertByEmail(ctx, req.Email, defaultDisplayName(req.Email))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	token, err := s.sessions.GenerateToken()
	if err != nil {
		return nil, err
	}
	issuedAt := s.now().UTC()
	sess, err := s.sessions.Create(ctx, u.UserID, token, issuedAt.Add(s.sessionTTL), meta)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Session: sess, IssuedAt: issuedAt}, nil
}

// NormalizeIdentifier trims and lowercases an email address.
func NormalizeIdentifier(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskIdentifier keeps the first character of the local part and the domain,
// e.g. "alice@example.com" becomes "a***@example.com".
func MaskIdentifier(email string) string {
	local, domainPart, found := strings.Cut(email, "@")
	if !found {
		domainPart = "example.com"
	}
	prefix := "u"
	if local != "" {
		r := []rune(local)
		prefix = string(r[0])
	}
	return prefix + "***@" + domainPart
}

func outcomeError(outcome domain.VerificationOutcome) error {
	switch outcome {
	case domain.VerificationExpired:
		return domain.NewPublicError(domain.ErrBadRequest, MsgCodeExpired)
	case domain.VerificationTooManyAttempts:
		return domain.NewPublicError(domain.ErrTooManyRequests, MsgTooManyAttempts)
	default:
		return domain.NewPublicError(domain.ErrUnauthorized, MsgInvalidCode)
	}
}

func defaultDisplayName(email string) *string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return nil
	}
	return &local
}
