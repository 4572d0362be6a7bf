package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prodtrack/prodtrack-api/internal/user"
)

// UserStore is the credential store the service depends on. user.Repository
// and user.MemoryRepository both satisfy it.
type UserStore interface {
	Create(ctx context.Context, u *user.User) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByRegistrationNumber(ctx context.Context, numeroRegistro string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*user.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	SetResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, userID uuid.UUID, tokenHash, passwordHash string, now time.Time) error
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenService issues and verifies stateless session tokens.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	CreateToken(userID uuid.UUID, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// PasswordHasher turns plaintext passwords into salted slow hashes.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	// Verify reports a mismatch as (false, nil); errors mean the stored hash is unusable.
	Verify(ctx context.Context, password, encodedHash string) (bool, error)
}

// ResetDelivery sends the plaintext reset token out of band.
type ResetDelivery interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// RateLimiter guards the public endpoints.
type RateLimiter interface {
	CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}
