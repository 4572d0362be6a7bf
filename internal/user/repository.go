package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/prodtrack/prodtrack-api/internal/database"
)

// Repository persists users in postgres through bun.
type Repository struct {
	db  bun.IDB
	now func() time.Time
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts u, assigning an ID and timestamps when unset.
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	dbUser := mapModelToDBUser(u)
	if dbUser.ID == uuid.Nil {
		dbUser.ID = uuid.New()
	}
	now := r.now().UTC()
	dbUser.CreatedAt = now
	dbUser.UpdatedAt = now
	dbUser.ResetToken = nil
	dbUser.ResetExpires = nil

	if _, err := r.db.NewInsert().Model(dbUser).Exec(ctx); err != nil {
		if dupErr := duplicateError(err); dupErr != nil {
			return nil, dupErr
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, "by id", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", id)
	})
}

// GetByRegistrationNumber retrieves a user by login handle.
func (r *Repository) GetByRegistrationNumber(ctx context.Context, numeroRegistro string) (*User, error) {
	return r.getOne(ctx, "by registration number", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("numero_registro = ?", numeroRegistro)
	})
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, "by email", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("email = ?", email)
	})
}

// GetByResetToken finds the user whose stored reset token equals tokenHash
// and has not expired at now.
func (r *Repository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	return r.getOne(ctx, "by reset token", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("reset_token = ?", tokenHash).Where("reset_expires > ?", now)
	})
}

func (r *Repository) getOne(ctx context.Context, what string, filter func(*bun.SelectQuery) *bun.SelectQuery) (*User, error) {
	dbUser := new(database.User)
	err := filter(r.db.NewSelect().Model(dbUser)).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", what, err)
	}
	return mapDBUserToModel(dbUser), nil
}

// UpdatePassword updates a user's password hash and drops any pending reset
// token, so an emailed link cannot undo the change.
func (r *Repository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_token = NULL").
		Set("reset_expires = NULL").
		Set("updated_at = ?", r.now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOneRow(result)
}

// SetResetToken stores a reset token digest and its expiry, replacing any
// token the user already had.
func (r *Repository) SetResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_token = ?", tokenHash).
		Set("reset_expires = ?", expiresAt.UTC()).
		Set("updated_at = ?", r.now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return expectOneRow(result)
}

// ConsumeResetToken sets the new password hash and clears the reset pair in
// one statement, only while the token still matches and is unexpired.
// ErrNotFound means another request consumed it first or it lapsed.
func (r *Repository) ConsumeResetToken(ctx context.Context, userID uuid.UUID, tokenHash, passwordHash string, now time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_token = NULL").
		Set("reset_expires = NULL").
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", userID).
		Where("reset_token = ?", tokenHash).
		Where("reset_expires > ?", now).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	return expectOneRow(result)
}

// ClearExpiredResetTokens nulls out reset pairs that expired at or before now.
func (r *Repository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_token = NULL").
		Set("reset_expires = NULL").
		Where("reset_expires IS NOT NULL").
		Where("reset_expires <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired reset tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// duplicateError maps a unique violation to the matching sentinel, or nil.
func duplicateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgerrcode.UniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case database.ConstraintUsersNumeroRegistro:
		return ErrDuplicateRegistrationNumber
	case database.ConstraintUsersEmail:
		return ErrDuplicateEmail
	default:
		return ErrDuplicate
	}
}

func mapModelToDBUser(u *User) *database.User {
	return &database.User{
		ID:             u.ID,
		Nome:           u.Nome,
		NumeroRegistro: u.NumeroRegistro,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		ResetToken:     u.ResetToken,
		ResetExpires:   u.ResetExpires,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:             dbu.ID,
		Nome:           dbu.Nome,
		NumeroRegistro: dbu.NumeroRegistro,
		Email:          dbu.Email,
		PasswordHash:   dbu.PasswordHash,
		ResetToken:     dbu.ResetToken,
		ResetExpires:   dbu.ResetExpires,
		CreatedAt:      dbu.CreatedAt,
		UpdatedAt:      dbu.UpdatedAt,
	}
}
