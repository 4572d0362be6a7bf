package auth

import (
	"errors"
	"net"
	"net/http"

	"github.com/prodtrack/prodtrack-api/internal/httputil"
	"github.com/prodtrack/prodtrack-api/internal/logging"
	"github.com/prodtrack/prodtrack-api/internal/user"
)

// Rate-limit purposes; each has its own per-IP window.
const (
	purposeRegister       = "register"
	purposeLogin          = "login"
	purposeForgotPassword = "forgot-password"
	purposeResetPassword  = "reset-password"
)

const forgotPasswordMessage = "If an account exists with that email, a password reset link has been sent."

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
}

func NewHandler(service *Service, rateLimiter RateLimiter) *Handler {
	return &Handler{service: service, rateLimiter: rateLimiter}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Nome           string `json:"nome"`
	NumeroRegistro string `json:"numero_registro"`
	Email          string `json:"email"`
	Senha          string `json:"senha"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	NumeroRegistro string `json:"numero_registro"`
	Senha          string `json:"senha"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token     string `json:"token"`
	NovaSenha string `json:"nova_senha"`
}

// ChangePasswordRequest represents a self-service password change
type ChangePasswordRequest struct {
	SenhaAtual string `json:"senha_atual"`
	NovaSenha  string `json:"nova_senha"`
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create an account identified by its registration number.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration form"
// @Success      201 {object} user.User
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Registration number or email already exists"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allowIP(w, r, purposeRegister) {
		return
	}

	var req RegisterRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	newUser, err := h.service.Register(r.Context(), RegisterInput{
		Nome:           req.Nome,
		NumeroRegistro: req.NumeroRegistro,
		Email:          req.Email,
		Senha:          req.Senha,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateRegistrationNumber):
			logger.Warn("registration failed: registration number already exists")
			httputil.RespondErrorWithCode(w, "registration number already exists", httputil.CodeRegistrationNumberExists, http.StatusConflict)
		case errors.Is(err, user.ErrDuplicateEmail):
			logger.Warn("registration failed: email already exists")
			httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrValidation):
			logger.Warn("registration failed: validation error", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), validationCode(err), http.StatusBadRequest)
		default:
			logger.Error("registration failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered", "user_id", newUser.ID)
	httputil.RespondJSON(w, newUser, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Exchange a registration number and password for an 8 hour session token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} AuthTokens
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allowIP(w, r, purposeLogin) {
		return
	}

	var req LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"numero_registro": req.NumeroRegistro})

	tokens, err := h.service.Login(r.Context(), req.NumeroRegistro, req.Senha)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed", "reason", err.Error())
			httputil.RespondErrorWithCode(w, "invalid registration number or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in")
	httputil.RespondJSON(w, tokens, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Send a password reset link to the email. The response is identical whether or not the email is registered.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email address"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if !h.allowIP(w, r, purposeForgotPassword) {
		return
	}

	email := normalizeEmail(req.Email)

	// A cooldown hit still gets the generic reply; only issuance is skipped.
	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	}
	if onCooldown {
		logger.Debug("forgot password skipped: email on cooldown")
	} else {
		if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
			logger.Error("failed to set email cooldown", "error", err.Error())
		}
		_ = h.service.RequestPasswordReset(r.Context(), email)
	}

	httputil.RespondMessage(w, forgotPasswordMessage, http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Set a new password using a reset token. Unknown, expired and used tokens are rejected alike.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Reset token and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or token"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allowIP(w, r, purposeResetPassword) {
		return
	}

	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.NovaSenha)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidOrExpiredResetToken):
			logger.Warn("password reset failed: invalid or expired token")
			httputil.RespondErrorWithCode(w, "invalid or expired reset token", httputil.CodeInvalidResetToken, http.StatusBadRequest)
		case errors.Is(err, ErrValidation):
			logger.Warn("password reset failed: validation error", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), validationCode(err), http.StatusBadRequest)
		default:
			logger.Error("password reset failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to reset password", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("password reset completed")
	httputil.RespondMessage(w, "Password reset successfully. You can now login with your new password.", http.StatusOK)
}

// allowIP enforces the per-IP window for purpose and records the attempt.
// Limiter failures let the request through.
func (h *Handler) allowIP(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())
	ip := clientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "purpose", purpose, "ip", ip)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	return true
}

// clientIP strips the port from RemoteAddr. Proxy headers only count when
// the router mounted chi's RealIP (TRUST_PROXY_HEADERS).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, ErrNameRequired):
		return httputil.CodeNameRequired
	case errors.Is(err, ErrRegistrationNumberRequired):
		return httputil.CodeRegistrationNumberRequired
	case errors.Is(err, ErrEmailRequired):
		return httputil.CodeEmailRequired
	case errors.Is(err, ErrInvalidEmailFormat):
		return httputil.CodeInvalidEmailFormat
	case errors.Is(err, ErrPasswordRequired):
		return httputil.CodePasswordRequired
	case errors.Is(err, ErrPasswordTooShort):
		return httputil.CodePasswordTooShort
	default:
		return httputil.CodeValidationFailed
	}
}
