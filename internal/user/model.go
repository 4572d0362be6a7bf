package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")

	ErrDuplicateEmail              error = &DuplicateError{Field: "email"}
	ErrDuplicateRegistrationNumber error = &DuplicateError{Field: "registration number"}
)

// DuplicateError reports which unique field a create collided on. Every
// DuplicateError matches ErrDuplicate under errors.Is.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string { return e.Field + " already exists" }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// User is an account. The reset fields are both nil or both set.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Nome           string     `json:"nome"`
	NumeroRegistro string     `json:"numero_registro"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	ResetToken     *string    `json:"-"`
	ResetExpires   *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasPendingReset reports whether the user holds a reset token still valid at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetToken != nil && u.ResetExpires != nil && now.Before(*u.ResetExpires)
}
