package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/config"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/utils"
)

const (
	testSecret   = "handler-test-secret-0123456789"
	goodPassword = "Correct-Horse-9!"
)

func testConfig() config.Config {
	return config.Config{
		Env:              "development",
		JWTSecret:        testSecret,
		AccessTTLMin:     15,
		RefreshTTLDays:   7,
		BcryptCost:       bcrypt.MinCost,
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
		PasswordHistory:  5,
		ResetTTL:         time.Hour,
		FrontendURL:      "http://localhost:3000",
	}
}

type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
	hist   map[uint64][]string
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uint64]*model.User{}, hist: map[uint64][]string{}}
}

func (m *memUsers) Create(_ context.Context, email, hash, phone string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return 0, repository.ErrDuplicate
		}
	}
	m.nextID++
	m.byID[m.nextID] = &model.User{ID: m.nextID, Email: email, PasswordHash: hash, Phone: phone, IsActive: true}
	return m.nextID, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, found := m.byID[id]; found {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByResetToken(_ context.Context, hash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ResetTokenHash == hash && u.ResetExpiresAt != nil && u.ResetExpiresAt.After(time.Now()) {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) RecordFailedLogin(_ context.Context, id uint64, max int, lockout time.Duration) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.FailedLoginCount++
	if u.FailedLoginCount >= max {
		until := time.Now().Add(lockout)
		u.LockedUntil = &until
	}
	return u.FailedLoginCount, u.LockedUntil, nil
}

func (m *memUsers) RecordSuccessfulLogin(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	now := time.Now()
	u.FailedLoginCount, u.LockedUntil, u.LastLogin = 0, nil, &now
	return nil
}

func (m *memUsers) SetResetToken(_ context.Context, id uint64, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].ResetTokenHash, m.byID[id].ResetExpiresAt = hash, &exp
	return nil
}

func (m *memUsers) PasswordHistory(_ context.Context, id uint64, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{m.byID[id].PasswordHash}, m.hist[id]...), nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id uint64, hash string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	m.hist[id] = append([]string{u.PasswordHash}, m.hist[id]...)
	u.PasswordHash, u.ResetTokenHash, u.ResetExpiresAt = hash, "", nil
	return nil
}

func (m *memUsers) CompleteProfile(_ context.Context, id uint64, p *model.AuthorProfile, _ *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].AuthorProfile, m.byID[id].IsProfileComplete = p, true
	return nil
}

func (m *memUsers) UpdateAuthorProfile(_ context.Context, id uint64, p *model.AuthorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].AuthorProfile = p
	return nil
}

type memTokens struct {
	mu   sync.Mutex
	live map[string]uint64
}

func newMemTokens() *memTokens { return &memTokens{live: map[string]uint64{}} }

func (m *memTokens) StoreRefresh(_ context.Context, uid uint64, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[hash] = uid
	return nil
}

func (m *memTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if uid, found := m.live[hash]; found {
		return uid, nil
	}
	return 0, repository.ErrNotFound
}

func (m *memTokens) Rotate(_ context.Context, uid uint64, oldHash, newHash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.live[oldHash]; !found {
		return repository.ErrNotFound
	}
	delete(m.live, oldHash)
	m.live[newHash] = uid
	return nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, hash)
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, uid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, id := range m.live {
		if id == uid {
			delete(m.live, h)
		}
	}
	return nil
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

type memMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *memMailer) Send(_ context.Context, to []string, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, html})
	return nil
}

type authFixture struct {
	e      *echo.Echo
	h      *AuthHandler
	users  *memUsers
	tokens *memTokens
	mail   *memMailer
	bl     middleware.Blacklist
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		e:      echo.New(),
		users:  newMemUsers(),
		tokens: newMemTokens(),
		mail:   &memMailer{},
		bl:     middleware.NewMemoryBlacklist(),
	}
	f.e.HTTPErrorHandler = apperr.Handler(zerolog.Nop())
	f.h = NewAuthHandler(testConfig(), f.users, f.tokens, f.bl, f.mail, zerolog.Nop())

	g := f.e.Group("/api/auth")
	g.POST("/register", f.h.Register)
	g.POST("/login", f.h.Login)
	g.POST("/refresh", f.h.Refresh)
	g.POST("/forgot-password", f.h.ForgotPassword)
	g.POST("/reset-password/:token", f.h.ResetPassword)
	authed := g.Group("", middleware.JWTAuth(testSecret, f.bl, zerolog.Nop()))
	authed.POST("/logout", f.h.Logout)
	authed.GET("/profile", f.h.Profile)
	authed.POST("/complete-profile", f.h.CompleteProfile)
	return f
}

func (f *authFixture) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func (f *authFixture) register(t *testing.T, email string) authResp {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/auth/register", `{"email":"`+email+`","password":"`+goodPassword+`"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var out authResp
	if err := json.Unmarshal(decode(t, rec).Data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRegister(t *testing.T) {
	f := newAuthFixture()
	resp := f.register(t, "ada@example.org")
	if resp.User.Role != "" || resp.User.IsProfileComplete {
		t.Fatalf("new user should have no role and an incomplete profile: %+v", resp.User)
	}
	if resp.Access.Token == "" || resp.Refresh.Token == "" {
		t.Fatal("expected a token pair")
	}

	tests := []struct {
		name string
		body string
		want int
		code string
	}{
		{"duplicate email", `{"email":"ADA@example.org","password":"` + goodPassword + `"}`, http.StatusConflict, apperr.CodeDuplicate},
		{"bad email", `{"email":"nope","password":"` + goodPassword + `"}`, http.StatusBadRequest, apperr.CodeValidation},
		{"weak password", `{"email":"bob@example.org","password":"short"}`, http.StatusBadRequest, apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/auth/register", tt.body, "")
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if env := decode(t, rec); env.Success || env.Code != tt.code {
				t.Fatalf("envelope %+v", env)
			}
		})
	}
}

func TestLoginLockout(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.org")

	wrong := `{"email":"ada@example.org","password":"Wrong-Horse-9!"}`
	for i := 1; i < 5; i++ {
		rec := f.do(http.MethodPost, "/api/auth/login", wrong, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i, rec.Code)
		}
		var details map[string]int
		_ = json.Unmarshal(decode(t, rec).Details, &details)
		if details["attemptsRemaining"] != 5-i {
			t.Fatalf("attempt %d: remaining %v", i, details)
		}
	}
	if rec := f.do(http.MethodPost, "/api/auth/login", wrong, ""); rec.Code != http.StatusLocked {
		t.Fatalf("fifth failure: status %d", rec.Code)
	}
	good := `{"email":"ada@example.org","password":"` + goodPassword + `"}`
	rec := f.do(http.MethodPost, "/api/auth/login", good, "")
	if rec.Code != http.StatusLocked || decode(t, rec).Code != apperr.CodeLocked {
		t.Fatalf("locked account accepted a login: %d", rec.Code)
	}

	if rec := f.do(http.MethodPost, "/api/auth/login", `{"email":"ghost@example.org","password":"x"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: status %d", rec.Code)
	}
}

func TestRefreshRotatesOnce(t *testing.T) {
	f := newAuthFixture()
	resp := f.register(t, "ada@example.org")
	body := `{"refresh_token":"` + resp.Refresh.Token + `"}`

	rec := f.do(http.MethodPost, "/api/auth/refresh", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodPost, "/api/auth/refresh", body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: status %d", rec.Code)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	f := newAuthFixture()
	resp := f.register(t, "ada@example.org")

	if rec := f.do(http.MethodGet, "/api/auth/profile", "", resp.Access.Token); rec.Code != http.StatusOK {
		t.Fatalf("profile before logout: %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/auth/logout", "{}", resp.Access.Token); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/api/auth/profile", "", resp.Access.Token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("profile after logout: %d", rec.Code)
	}
	if len(f.tokens.live) != 0 {
		t.Fatalf("refresh tokens left after logout: %d", len(f.tokens.live))
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.org")

	for _, email := range []string{"ada@example.org", "ghost@example.org"} {
		rec := f.do(http.MethodPost, "/api/auth/forgot-password", `{"email":"`+email+`"}`, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("forgot %s: %d", email, rec.Code)
		}
	}
	if len(f.mail.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(f.mail.sent))
	}

	u, _ := f.users.GetByEmail(context.Background(), "ada@example.org")
	raw, hash, err := utils.NewResetToken()
	if err != nil {
		t.Fatal(err)
	}
	_ = f.users.SetResetToken(context.Background(), u.ID, hash, time.Now().Add(time.Hour))

	if rec := f.do(http.MethodPost, "/api/auth/reset-password/"+raw, `{"password":"`+goodPassword+`"}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("reusing the current password: status %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/auth/reset-password/"+raw, `{"password":"Another-Pass-42?"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodPost, "/api/auth/reset-password/"+raw, `{"password":"Third-Pass-77?"}`, ""); rec.Code == http.StatusOK {
		t.Fatal("reset token worked twice")
	}
}

func TestCompleteProfileOnce(t *testing.T) {
	f := newAuthFixture()
	resp := f.register(t, "ada@example.org")
	tok := resp.Access.Token

	if rec := f.do(http.MethodPost, "/api/auth/complete-profile", `{"title":"Dr"}`, tok); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: %d", rec.Code)
	}
	body := `{"title":"Dr","fullName":"Ada Lovelace","gender":"female","orcid":"0000-0002-1825-0097"}`
	if rec := f.do(http.MethodPost, "/api/auth/complete-profile", body, tok); rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodPost, "/api/auth/complete-profile", body, tok); rec.Code != http.StatusBadRequest {
		t.Fatalf("second completion: %d", rec.Code)
	}
}
