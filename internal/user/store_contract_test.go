package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// credentialStore is the method set both Repository and MemoryRepository provide.
type credentialStore interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByRegistrationNumber(ctx context.Context, numeroRegistro string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	SetResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, userID uuid.UUID, tokenHash, passwordHash string, now time.Time) error
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

var (
	_ credentialStore = (*Repository)(nil)
	_ credentialStore = (*MemoryRepository)(nil)
)

// runStoreContract exercises behaviour every credential store must share.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) credentialStore) {
	ctx := context.Background()

	seed := func(t *testing.T, s credentialStore) *User {
		t.Helper()
		u, err := s.Create(ctx, &User{
			Nome:           "A",
			NumeroRegistro: "123",
			Email:          "a@a.com",
			PasswordHash:   "hash-1",
		})
		require.NoError(t, err)
		return u
	}

	t.Run("create assigns identity and no reset state", func(t *testing.T) {
		s := newStore(t)
		u := seed(t, s)

		assert.NotEqual(t, uuid.Nil, u.ID)
		assert.Nil(t, u.ResetToken)
		assert.Nil(t, u.ResetExpires)
		assert.False(t, u.CreatedAt.IsZero())

		got, err := s.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "A", got.Nome)
		assert.Equal(t, "hash-1", got.PasswordHash)
	})

	t.Run("duplicates are distinguished", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		_, err := s.Create(ctx, &User{Nome: "B", NumeroRegistro: "123", Email: "b@b.com", PasswordHash: "h"})
		require.ErrorIs(t, err, ErrDuplicateRegistrationNumber)
		assert.ErrorIs(t, err, ErrDuplicate)

		_, err = s.Create(ctx, &User{Nome: "B", NumeroRegistro: "456", Email: "a@a.com", PasswordHash: "h"})
		require.ErrorIs(t, err, ErrDuplicateEmail)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("lookups", func(t *testing.T) {
		s := newStore(t)
		u := seed(t, s)

		got, err := s.GetByRegistrationNumber(ctx, "123")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		got, err = s.GetByEmail(ctx, "a@a.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = s.GetByRegistrationNumber(ctx, "999")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetByEmail(ctx, "nobody@a.com")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reset token lookup honours expiry and overwrite", func(t *testing.T) {
		s := newStore(t)
		u := seed(t, s)
		now := time.Now()

		require.NoError(t, s.SetResetToken(ctx, u.ID, "digest-1", now.Add(time.Hour)))

		got, err := s.GetByResetToken(ctx, "digest-1", now)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = s.GetByResetToken(ctx, "digest-1", now.Add(time.Hour+time.Second))
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SetResetToken(ctx, u.ID, "digest-2", now.Add(time.Hour)))
		_, err = s.GetByResetToken(ctx, "digest-1", now)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetByResetToken(ctx, "digest-2", now)
		assert.NoError(t, err)
	})

	t.Run("consume is single use and clears the pair", func(t *testing.T) {
		s := newStore(t)
		u := seed(t, s)
		now := time.Now()
		require.NoError(t, s.SetResetToken(ctx, u.ID, "digest", now.Add(time.Hour)))

		require.NoError(t, s.ConsumeResetToken(ctx, u.ID, "digest", "hash-2", now))

		got, err := s.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-2", got.PasswordHash)
		assert.Nil(t, got.ResetToken)
		assert.Nil(t, got.ResetExpires)

		err = s.ConsumeResetToken(ctx, u.ID, "digest", "hash-3", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("consume rejects expired token", func(t *testing.T) {
		s := newStore(t)
		u := seed(t, s)
		now := time.Now()
		require.NoError(t, s.SetResetToken(ctx, u.ID, "digest", now.Add(-time.Minute)))

		err := s.ConsumeResetToken(ctx, u.ID, "digest", "hash-2", now)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-1", got.PasswordHash)
	})

	t.Run("clear expired keeps live tokens", func(t *testing.T) {
		s := newStore(t)
		expired := seed(t, s)
		live, err := s.Create(ctx, &User{Nome: "B", NumeroRegistro: "456", Email: "b@b.com", PasswordHash: "h"})
		require.NoError(t, err)

		now := time.Now()
		require.NoError(t, s.SetResetToken(ctx, expired.ID, "old", now.Add(-time.Minute)))
		require.NoError(t, s.SetResetToken(ctx, live.ID, "new", now.Add(time.Hour)))

		n, err := s.ClearExpiredResetTokens(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := s.GetByID(ctx, expired.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ResetToken)
		assert.Nil(t, got.ResetExpires)

		got, err = s.GetByID(ctx, live.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ResetToken)
		assert.Equal(t, "new", *got.ResetToken)
	})

	t.Run("update password clears pending reset", func(t *testing.T) {
		s := newStore(t)
		u := seed(t, s)
		require.NoError(t, s.SetResetToken(ctx, u.ID, "digest", time.Now().Add(time.Hour)))

		require.NoError(t, s.UpdatePassword(ctx, u.ID, "hash-2"))

		got, err := s.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-2", got.PasswordHash)
		assert.Nil(t, got.ResetToken)
		assert.Nil(t, got.ResetExpires)

		_, err = s.GetByResetToken(ctx, "digest", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update password of unknown user", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdatePassword(ctx, uuid.New(), "h")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
