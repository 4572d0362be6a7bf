package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prodtrack/prodtrack-api/internal/config"
)

var ErrMissingSecret = errors.New("token secret must not be empty")

// TokenClaims is the verified content of a session token.
type TokenClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenOption configures a token service.
type TokenOption func(*tokenOptions)

type tokenOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) { o.now = now }
}

func applyTokenOptions(opts []TokenOption) tokenOptions {
	o := tokenOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTokenService builds the implementation named by format.
func NewTokenService(format string, secret []byte, opts ...TokenOption) (TokenService, error) {
	switch format {
	case config.TokenFormatPaseto:
		return NewPasetoService(secret, opts...)
	case config.TokenFormatJWT:
		return NewJWTService(secret, opts...)
	default:
		return nil, fmt.Errorf("unknown token format %q", format)
	}
}
