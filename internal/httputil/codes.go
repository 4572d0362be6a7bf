package httputil

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	CodeInternalError      = "internal_error"
	CodeInvalidRequestBody = "invalid_request_body"
	CodeTooManyRequests    = "too_many_requests"

	// registration and credential validation
	CodeNameRequired               = "name_required"
	CodeRegistrationNumberRequired = "registration_number_required"
	CodeEmailRequired              = "email_required"
	CodeInvalidEmailFormat         = "invalid_email_format"
	CodePasswordRequired           = "password_required"
	CodePasswordTooShort           = "password_too_short"
	CodeValidationFailed           = "validation_failed"
	CodeRegistrationNumberExists   = "registration_number_exists"
	CodeEmailAlreadyExists         = "email_exists"

	CodeInvalidCredentials = "invalid_credentials"
	CodeUserNotFound       = "user_not_found"

	// auth gateway
	CodeMissingAuth       = "missing_auth"
	CodeInvalidAuthHeader = "invalid_auth_header"
	CodeInvalidToken      = "invalid_token"
	CodeTokenExpired      = "token_expired"

	CodeInvalidResetToken = "invalid_reset_token"
)
