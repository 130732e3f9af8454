package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/infrastructure/memory"
	"github.com/go-passwordless/internal/infrastructure/verificationtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) UpsertByEmail(ctx context.Context, email string, displayName *string) (*domain.User, error) {
	args := m.Called(ctx, email, displayName)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendCode(ctx context.Context, to, code string) error {
	return m.Called(ctx, to, code).Error(0)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) GenerateToken() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}
func (m *mockSessions) Create(ctx context.Context, userID, token string, expiresAt time.Time, meta domain.SessionMetadata) (*domain.Session, error) {
	args := m.Called(ctx, userID, token, expiresAt, meta)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessions) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	args := m.Called(ctx, token)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessions) IsExpired(s *domain.Session) bool { return m.Called(s).Bool(0) }
func (m *mockSessions) TouchLastUsed(sessionID string) { m.Called(sessionID) }
func (m *mockSessions) Authenticate(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	args := m.Called(ctx, token)
	u, _ := args.Get(0).(*domain.User)
	s, _ := args.Get(1).(*domain.Session)
	return u, s, args.Error(2)
}
func (m *mockSessions) Flush() { m.Called() }

// --- fixture ---

const testCode = "424242"

type fixture struct {
	clock    *verificationtest.Clock
	store    *memory.VerificationStore
	users    *mockUserStore
	sessions *mockSessions
	sender   *mockSender
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    verificationtest.NewClock(),
		users:    &mockUserStore{},
		sessions: &mockSessions{},
		sender:   &mockSender{},
	}
	f.store = memory.NewVerificationStore(verificationtest.TTL, verificationtest.MaxAttempts).WithClock(f.clock.Now)
	f.svc = NewService(ServiceDeps{
		Verifications: f.store,
		UserRepo:      f.users,
		Sessions:      f.sessions,
		Sender:        f.sender,
		FixedCode:     testCode,
		Now:           f.clock.Now,
	})
	return f
}

func (f *fixture) requestCode(t *testing.T, email string) {
	t.Helper()
	f.sender.On("SendCode", mock.Anything, mock.Anything, testCode).Return(nil)
	_, err := f.svc.RequestCode(context.Background(), SendCodeRequest{Email: email})
	require.NoError(t, err)
}

func publicMessage(t *testing.T, err error) string {
	t.Helper()
	var pe *domain.PublicError
	require.ErrorAs(t, err, &pe)
	return pe.Message
}

// --- RequestCode ---

func TestRequestCode_StoresNormalizedIdentifier(t *testing.T) {
	f := newFixture(t)
	f.sender.On("SendCode", mock.Anything, "alice@example.com", testCode).Return(nil).Once()

	res, err := f.svc.RequestCode(context.Background(), SendCodeRequest{Email: "  Alice@Example.COM "})
	require.NoError(t, err)
	assert.Equal(t, "a***@example.com", res.MaskedIdentifier)
	assert.True(t, res.ExpiresAt.Equal(f.clock.Now().Add(verificationtest.TTL)))

	rec, err := f.store.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, testCode, rec.Code)
	assert.Equal(t, 0, rec.Attempts)
	f.sender.AssertExpectations(t)
}

func TestRequestCode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		email string
		msg   string
	}{
		{name: "empty", email: "", msg: "Email is required."},
		{name: "whitespace", email: "   ", msg: "Email is required."},
		{name: "malformed", email: "not-an-email", msg: "Email must be a valid address."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.RequestCode(context.Background(), SendCodeRequest{Email: tt.email})
			assert.ErrorIs(t, err, domain.ErrBadRequest)
			assert.Equal(t, tt.msg, publicMessage(t, err))
			f.sender.AssertNotCalled(t, "SendCode", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRequestCode_DeliveryFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.sender.On("SendCode", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp: 421 try later"))

	res, err := f.svc.RequestCode(context.Background(), SendCodeRequest{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "b***@example.com", res.MaskedIdentifier)

	_, err = f.store.Get(context.Background(), "bob@example.com")
	assert.NoError(t, err)
}

func TestRequestCode_RandomCodeWithoutFixedCode(t *testing.T) {
	store := memory.NewVerificationStore(0, 0)
	sender := &mockSender{}
	var sent string
	sender.On("SendCode", mock.Anything, "carol@example.com", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.String(2) }).
		Return(nil)

	svc := NewService(ServiceDeps{Verifications: store, Sender: sender})
	_, err := svc.RequestCode(context.Background(), SendCodeRequest{Email: "carol@example.com"})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "carol@example.com")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, rec.Code)
	assert.Equal(t, rec.Code, sent)
}

// --- VerifyCode ---

func TestVerifyCode_Success(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")

	now := f.clock.Now().UTC()
	ua := "Mozilla/5.0"
	meta := domain.SessionMetadata{UserAgent: &ua}
	user := &domain.User{UserID: "u1", Email: "alice@example.com", IsActive: true}
	sess := &domain.Session{SessionID: "s1", Token: "tok", UserID: "u1", ExpiresAt: now.Add(domain.DefaultSessionTTL)}

	f.users.On("UpsertByEmail", mock.Anything, "alice@example.com", mock.MatchedBy(func(name *string) bool {
		return name != nil && *name == "alice"
	})).Return(user, nil).Once()
	f.sessions.On("GenerateToken").Return("tok", nil).Once()
	f.sessions.On("Create", mock.Anything, "u1", "tok", now.Add(domain.DefaultSessionTTL), meta).Return(sess, nil).Once()

	res, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: " ALICE@example.com", Code: testCode}, meta)
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.UserID)
	assert.Equal(t, "tok", res.Session.Token)
	assert.True(t, res.IssuedAt.Equal(now))

	f.users.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
}

func TestVerifyCode_CodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")
	f.users.On("UpsertByEmail", mock.Anything, mock.Anything, mock.Anything).Return(&domain.User{UserID: "u1", IsActive: true}, nil)
	f.sessions.On("GenerateToken").Return("tok", nil)
	f.sessions.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&domain.Session{Token: "tok"}, nil)

	req := VerifyCodeRequest{Email: "alice@example.com", Code: testCode}
	_, err := f.svc.VerifyCode(context.Background(), req, domain.SessionMetadata{})
	require.NoError(t, err)

	_, err = f.svc.VerifyCode(context.Background(), req, domain.SessionMetadata{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, MsgInvalidCode, publicMessage(t, err))
}

func TestVerifyCode_WrongCode(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice@example.com", Code: "000000"}, domain.SessionMetadata{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, MsgInvalidCode, publicMessage(t, err))

	rec, err := f.store.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	f.users.AssertNotCalled(t, "UpsertByEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_NoPendingCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "nobody@example.com", Code: "123456"}, domain.SessionMetadata{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyCode_ThrottledAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")

	for i := 0; i < verificationtest.MaxAttempts; i++ {
		_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice@example.com", Code: "000000"}, domain.SessionMetadata{})
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice@example.com", Code: testCode}, domain.SessionMetadata{})
	assert.ErrorIs(t, err, domain.ErrTooManyRequests)
	assert.Equal(t, MsgTooManyAttempts, publicMessage(t, err))
}

func TestVerifyCode_Expired(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")
	f.clock.Advance(verificationtest.TTL + time.Millisecond)

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice@example.com", Code: testCode}, domain.SessionMetadata{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Equal(t, MsgCodeExpired, publicMessage(t, err))

	_, err = f.store.Get(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyCode_MalformedInputDoesNotConsumeAttempts(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice@example.com", Code: "12ab56"}, domain.SessionMetadata{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Equal(t, "Code must be a 6-digit string.", publicMessage(t, err))

	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice", Code: testCode}, domain.SessionMetadata{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	rec, err := f.store.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts)
}

func TestVerifyCode_StorageFaultKeepsCodeConsumed(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")
	f.users.On("UpsertByEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("dynamodb unavailable"))

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice@example.com", Code: testCode}, domain.SessionMetadata{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrBadRequest))
	assert.False(t, errors.Is(err, domain.ErrUnauthorized))
	assert.False(t, errors.Is(err, domain.ErrTooManyRequests))

	_, err = f.store.Get(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_SessionCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.requestCode(t, "alice@example.com")
	f.users.On("UpsertByEmail", mock.Anything, mock.Anything, mock.Anything).Return(&domain.User{UserID: "u1", IsActive: true}, nil)
	f.sessions.On("GenerateToken").Return("tok", nil)
	f.sessions.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("conditional check failed"))

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Email: "alice@example.com", Code: testCode}, domain.SessionMetadata{})
	assert.ErrorContains(t, err, "conditional check failed")
}

// --- helpers ---

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "a***@example.com", MaskIdentifier("alice@example.com"))
	assert.Equal(t, "u***@example.org", MaskIdentifier("@example.org"))
	assert.Equal(t, "b***@example.com", MaskIdentifier("bob"))
	assert.Equal(t, "u***@example.com", MaskIdentifier(""))
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeIdentifier("\tAlice@Example.com \n"))
}
