package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodtrack/prodtrack-api/internal/httputil"
)

type stubLimiter struct {
	mu        sync.Mutex
	exceeded  map[string]bool
	cooldowns map[string]bool
	recorded  []string
}

func newStubLimiter() *stubLimiter {
	return &stubLimiter{exceeded: map[string]bool{}, cooldowns: map[string]bool{}}
}

func (l *stubLimiter) CheckIPRateLimitWithPurpose(_ context.Context, _, purpose string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exceeded[purpose], nil
}

func (l *stubLimiter) RecordIPRequestWithPurpose(_ context.Context, _, purpose string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorded = append(l.recorded, purpose)
	return nil
}

func (l *stubLimiter) CheckEmailCooldown(_ context.Context, email string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cooldowns[email], nil
}

func (l *stubLimiter) SetEmailCooldown(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cooldowns[email] = true
	return nil
}

func newTestRouter(env *testEnv, limiter RateLimiter) http.Handler {
	h := NewHandler(env.svc, limiter)
	mw := NewMiddleware(env.svc, env.metrics)

	r := chi.NewRouter()
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/forgot-password", h.ForgotPassword)
	r.Post("/auth/reset-password", h.ResetPassword)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth)
		r.Get("/users/me", h.Profile)
		r.Put("/users/me/password", h.ChangePassword)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

var registerBody = RegisterRequest{Nome: "A", NumeroRegistro: "123", Email: "a@a.com", Senha: "secret1"}

func TestHandler_Register(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, newStubLimiter())

	rec := doJSON(t, router, http.MethodPost, "/auth/register", registerBody, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "A", created["nome"])
	assert.Equal(t, "123", created["numero_registro"])
	assert.Equal(t, "a@a.com", created["email"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "secret1")

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"duplicate registration number", RegisterRequest{Nome: "B", NumeroRegistro: "123", Email: "b@b.com", Senha: "secret2"}, http.StatusConflict, httputil.CodeRegistrationNumberExists},
		{"duplicate email", RegisterRequest{Nome: "B", NumeroRegistro: "456", Email: "a@a.com", Senha: "secret2"}, http.StatusConflict, httputil.CodeEmailAlreadyExists},
		{"missing nome", RegisterRequest{NumeroRegistro: "789", Email: "c@c.com", Senha: "secret3"}, http.StatusBadRequest, httputil.CodeNameRequired},
		{"bad email", RegisterRequest{Nome: "C", NumeroRegistro: "789", Email: "nope", Senha: "secret3"}, http.StatusBadRequest, httputil.CodeInvalidEmailFormat},
		{"short password", RegisterRequest{Nome: "C", NumeroRegistro: "789", Email: "c@c.com", Senha: "123"}, http.StatusBadRequest, httputil.CodePasswordTooShort},
		{"malformed json", `{"nome":`, http.StatusBadRequest, httputil.CodeInvalidRequestBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/auth/register", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, newStubLimiter())
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", registerBody, "").Code)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", LoginRequest{NumeroRegistro: "123", Senha: "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens AuthTokens
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, "Bearer", tokens.TokenType)

	wrongPassword := doJSON(t, router, http.MethodPost, "/auth/login", LoginRequest{NumeroRegistro: "123", Senha: "wrong"}, "")
	unknownUser := doJSON(t, router, http.MethodPost, "/auth/login", LoginRequest{NumeroRegistro: "999", Senha: "secret1"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, httputil.CodeInvalidCredentials, errorCode(t, wrongPassword))
	assert.Equal(t, wrongPassword.Code, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())

	profile := doJSON(t, router, http.MethodGet, "/users/me", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, profile.Code)
	assert.Contains(t, profile.Body.String(), `"numero_registro":"123"`)
	assert.NotContains(t, profile.Body.String(), "password")
}

func TestHandler_Profile_Gateway(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, newStubLimiter())

	rec := doJSON(t, router, http.MethodGet, "/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeMissingAuth, errorCode(t, rec))

	rec = doJSON(t, router, http.MethodGet, "/users/me", nil, "garbage.token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodeInvalidToken, errorCode(t, rec))
}

func TestHandler_ForgotPassword_IdenticalResponses(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, newStubLimiter())
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", registerBody, "").Code)

	known := doJSON(t, router, http.MethodPost, "/auth/forgot-password", ForgotPasswordRequest{Email: "a@a.com"}, "")
	unknown := doJSON(t, router, http.MethodPost, "/auth/forgot-password", ForgotPasswordRequest{Email: "nobody@a.com"}, "")
	env.svc.Wait()

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Len(t, env.delivery.all(), 1)
}

func TestHandler_ForgotPassword_CooldownStillGeneric(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, newStubLimiter())
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", registerBody, "").Code)

	first := doJSON(t, router, http.MethodPost, "/auth/forgot-password", ForgotPasswordRequest{Email: "a@a.com"}, "")
	second := doJSON(t, router, http.MethodPost, "/auth/forgot-password", ForgotPasswordRequest{Email: "A@a.com"}, "")
	env.svc.Wait()

	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Len(t, env.delivery.all(), 1, "cooldown suppresses the second email")
}

func TestHandler_ResetPassword(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, newStubLimiter())
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", registerBody, "").Code)

	rec := doJSON(t, router, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: "unknown", NovaSenha: "newsecret"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidResetToken, errorCode(t, rec))

	token := env.requestReset(t, "a@a.com")

	rec = doJSON(t, router, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: token, NovaSenha: "123"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodePasswordTooShort, errorCode(t, rec))

	rec = doJSON(t, router, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: token, NovaSenha: "newsecret"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	replay := doJSON(t, router, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: token, NovaSenha: "newsecret2"}, "")
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Equal(t, httputil.CodeInvalidResetToken, errorCode(t, replay))

	login := doJSON(t, router, http.MethodPost, "/auth/login", LoginRequest{NumeroRegistro: "123", Senha: "newsecret"}, "")
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestHandler_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, newStubLimiter())
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", registerBody, "").Code)

	tokens, err := env.svc.Login(context.Background(), "123", "secret1")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPut, "/users/me/password", ChangePasswordRequest{SenhaAtual: "wrong", NovaSenha: "newsecret"}, tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/users/me/password", ChangePasswordRequest{SenhaAtual: "secret1", NovaSenha: "newsecret"}, tokens.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err = env.svc.Login(context.Background(), "123", "newsecret")
	assert.NoError(t, err)
}

func TestHandler_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	limiter := newStubLimiter()
	limiter.exceeded[purposeLogin] = true
	router := newTestRouter(env, limiter)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", LoginRequest{NumeroRegistro: "123", Senha: "secret1"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeTooManyRequests, errorCode(t, rec))

	rec = doJSON(t, router, http.MethodPost, "/auth/register", registerBody, "")
	assert.Equal(t, http.StatusCreated, rec.Code, "limits are per purpose")
	assert.True(t, strings.Contains(strings.Join(limiter.recorded, ","), purposeRegister))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
