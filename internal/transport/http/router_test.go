package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-passwordless/internal/application/session"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/infrastructure/logsender"
	"github.com/go-passwordless/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepos is an in-memory stand-in for the DynamoDB user and session tables.
type fakeRepos struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]*domain.Session
	touched  map[string]time.Time
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]*domain.Session),
		touched:  make(map[string]time.Time),
	}
}

func (f *fakeRepos) Get(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.UserID == userID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
}

func (f *fakeRepos) UpsertByEmail(_ context.Context, email string, displayName *string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:      fmt.Sprintf("u%d", len(f.users)+1),
		Email:       email,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.users[email] = u
	cp := *u
	return &cp, nil
}

func (f *fakeRepos) setActive(email string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email].IsActive = active
}

func (f *fakeRepos) Put(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.Token] = &cp
	return nil
}

func (f *fakeRepos) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepos) UpdateLastUsed(_ context.Context, sessionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[sessionID] = at
	return nil
}

type testServer struct {
	handler  http.Handler
	repos    *fakeRepos
	sessions session.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		AppEnv:                "development",
		FixedVerificationCode: "123456",
		SessionTTL:            domain.DefaultSessionTTL,
		AllowedOrigins:        []string{"*"},
	}
	repos := newFakeRepos()
	sessions := session.NewService(session.ServiceDeps{SessionRepo: repos, UserRepo: repos})
	t.Cleanup(sessions.Flush)
	h := NewRouter(cfg, &Deps{
		UserRepo:      repos,
		Verifications: memory.NewVerificationStore(0, 0),
		Sender:        logsender.New(false),
		Sessions:      sessions,
	})
	return &testServer{handler: h, repos: repos, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	var out map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	rr, _ := s.do(t, http.MethodPost, "/v1/auth/send-code", `{"email":"`+email+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, out := s.do(t, http.MethodPost, "/v1/auth/verify-code", `{"email":"`+email+`","code":"123456"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := out["data"].(map[string]any)
	return data["token"].(map[string]any)["value"].(string)
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestRouter_LoginFlow(t *testing.T) {
	s := newTestServer(t)

	rr, out := s.do(t, http.MethodPost, "/v1/auth/send-code", `{"email":" Alice@Example.com "}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, out["ok"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "a***@example.com", data["maskedIdentifier"])
	assert.NotContains(t, rr.Body.String(), "123456")

	rr, out = s.do(t, http.MethodPost, "/v1/auth/verify-code", `{"email":"alice@example.com","code":"123456"}`,
		map[string]string{"User-Agent": "router-test"})
	require.Equal(t, http.StatusOK, rr.Code)
	data = out["data"].(map[string]any)
	identity := data["identity"].(map[string]any)
	assert.Equal(t, "alice@example.com", identity["email"])
	assert.Equal(t, "alice", identity["displayName"])
	token := data["token"].(map[string]any)
	value := token["value"].(string)
	assert.Regexp(t, `^[0-9a-f]{64}$`, value)
	assert.Equal(t, float64(domain.DefaultSessionTTL.Milliseconds()), token["expiresAt"].(float64)-token["issuedAt"].(float64))

	stored, err := s.repos.GetByToken(context.Background(), value)
	require.NoError(t, err)
	require.NotNil(t, stored.UserAgent)
	assert.Equal(t, "router-test", *stored.UserAgent)

	rr, out = s.do(t, http.MethodGet, "/v1/auth/me", "", map[string]string{"Authorization": "Bearer " + value})
	require.Equal(t, http.StatusOK, rr.Code)
	me := out["data"].(map[string]any)["identity"].(map[string]any)
	assert.Equal(t, identity["id"], me["id"])

	s.sessions.Flush()
	s.repos.mu.Lock()
	_, touched := s.repos.touched[stored.SessionID]
	s.repos.mu.Unlock()
	assert.True(t, touched)
}

func TestRouter_SecondVerifyWithSameCodeFails(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "bob@example.com")

	rr, out := s.do(t, http.MethodPost, "/v1/auth/verify-code", `{"email":"bob@example.com","code":"123456"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(out))
}

func TestRouter_ReturningUserKeepsIdentity(t *testing.T) {
	s := newTestServer(t)
	first := s.login(t, "carol@example.com")
	second := s.login(t, "carol@example.com")
	assert.NotEqual(t, first, second)

	a, _ := s.repos.GetByToken(context.Background(), first)
	b, _ := s.repos.GetByToken(context.Background(), second)
	assert.Equal(t, a.UserID, b.UserID)
}

func TestRouter_Throttle(t *testing.T) {
	s := newTestServer(t)
	rr, _ := s.do(t, http.MethodPost, "/v1/auth/send-code", `{"email":"dave@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	for i := 0; i < domain.DefaultVerificationMaxAttempts; i++ {
		rr, _ = s.do(t, http.MethodPost, "/v1/auth/verify-code", `{"email":"dave@example.com","code":"000000"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr, out := s.do(t, http.MethodPost, "/v1/auth/verify-code", `{"email":"dave@example.com","code":"123456"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", errorCode(out))
}

func TestRouter_Validation(t *testing.T) {
	s := newTestServer(t)

	rr, out := s.do(t, http.MethodPost, "/v1/auth/send-code", `{"email":"not-an-email"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(out))

	rr, out = s.do(t, http.MethodPost, "/v1/auth/verify-code", `{"email":"erin@example.com","code":"12345"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(out))
}

func TestRouter_MeRejections(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "frank@example.com")

	rr, out := s.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Missing or invalid Authorization header.", out["error"].(map[string]any)["message"])

	rr, _ = s.do(t, http.MethodGet, "/v1/auth/me", "", map[string]string{"Authorization": "Bearer " + strings.Repeat("0", 64)})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = s.do(t, http.MethodGet, "/v1/auth/me", "", map[string]string{"Authorization": "bearer " + token})
	assert.Equal(t, http.StatusOK, rr.Code)

	s.repos.setActive("frank@example.com", false)
	rr, out = s.do(t, http.MethodGet, "/v1/auth/me", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized", out["error"].(map[string]any)["message"])
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rr, out := s.do(t, http.MethodGet, "/v1/health-check/ping", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", out["data"].(map[string]any)["message"])

	s.login(t, "grace@example.com")
	rr, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pwl_verification_outcomes_total")
	assert.Contains(t, rr.Body.String(), "pwl_sessions_issued_total")
}
