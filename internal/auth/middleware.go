package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/prodtrack/prodtrack-api/internal/httputil"
	"github.com/prodtrack/prodtrack-api/internal/logging"
	"github.com/prodtrack/prodtrack-api/internal/metrics"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// Authenticator resolves a bearer token to a user id. *Service implements it.
type Authenticator interface {
	Authenticate(tokenStr string) (uuid.UUID, error)
}

// Middleware guards protected routes.
type Middleware struct {
	authenticator Authenticator
	metrics       *metrics.Metrics
}

func NewMiddleware(authenticator Authenticator, m *metrics.Metrics) *Middleware {
	return &Middleware{authenticator: authenticator, metrics: m}
}

// RequireAuth admits requests carrying "Authorization: Bearer <token>" with a
// valid token. Missing or malformed headers get 401, bad tokens get 403.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.reject(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		token = strings.TrimSpace(token)
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			m.reject(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
			return
		}

		userID, err := m.authenticator.Authenticate(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				logger.Debug("rejected expired token")
				m.reject(w, "token has expired", httputil.CodeTokenExpired, http.StatusForbidden)
				return
			}
			logger.Debug("rejected invalid token", "error", err)
			m.reject(w, "invalid token", httputil.CodeInvalidToken, http.StatusForbidden)
			return
		}

		ctx := WithUserID(r.Context(), userID)
		ctx = logging.WithLogger(ctx, logger.WithFields(map[string]any{"user_id": userID}))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, message, code string, status int) {
	m.metrics.AuthRejection(code)
	httputil.RespondErrorWithCode(w, message, code, status)
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	return userID, ok
}

// WithUserID returns a copy of ctx carrying userID, as RequireAuth does.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
