package auth

import "errors"

// ErrValidation wraps every input validation failure.
var ErrValidation = errors.New("validation failed")

var (
	ErrNameRequired               = validationError("nome is required")
	ErrRegistrationNumberRequired = validationError("numero_registro is required")
	ErrEmailRequired              = validationError("email is required")
	ErrInvalidEmailFormat         = validationError("invalid email format")
	ErrPasswordRequired           = validationError("password is required")
	ErrPasswordTooShort           = validationError("password must be at least 6 characters")
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid registration number or password")

	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")

	// ErrInvalidOrExpiredResetToken deliberately covers unknown, expired and
	// already used reset tokens alike.
	ErrInvalidOrExpiredResetToken = errors.New("invalid or expired reset token")
)

type fieldError struct {
	msg string
}

func (e *fieldError) Error() string { return e.msg }

func (e *fieldError) Is(target error) bool { return target == ErrValidation }

func validationError(msg string) error { return &fieldError{msg: msg} }
