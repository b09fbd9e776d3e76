package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidToken        = "invalid_token"
	TextCodeTokenExpired        = "token_expired"
	TextCodeAuthFailed          = "authentication_failed"
	TextCodeAdminCodeRejected   = "admin_code_rejected"
	TextCodeDuplicateAccount    = "duplicate_external_account"
	TextCodeRegistrationFailed  = "registration_failed"
	TextCodeCompensationFailure = "provisioning_compensation_failure"
	TextCodeUserNotFound        = "user_not_found"
	TextCodeAdminRequired       = "admin_access_required"
)

// ErrInvalidToken is returned for malformed tokens or bad signatures.
var ErrInvalidToken = errors.New("invalid or malformed identity token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned for tokens past their expiry.
var ErrTokenExpired = errors.New("identity token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrAuthenticationFailed is returned when every role probe rejected the
// identity: the token verified but no backend record grants a role.
var ErrAuthenticationFailed = errors.New("no role probe accepted the identity", errors.CategoryAuth).
	WithTextCode(TextCodeAuthFailed).
	WithCode(errors.CodeUnauthorized)

// ErrAdminCodeRejected is returned at registration when the supplied admin
// code does not match the configured shared secret.
var ErrAdminCodeRejected = errors.New("invalid admin code", errors.CategoryValidation).
	WithTextCode(TextCodeAdminCodeRejected).
	WithCode(errors.CodeBadRequest)

// ErrDuplicateExternalAccount is returned when the provider already has an
// account for the email. The losing registration created nothing, so the
// saga must not compensate.
var ErrDuplicateExternalAccount = errors.New("external account already exists", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateAccount).
	WithCode(errors.CodeConflict)

// ErrRegistrationFailed is the user-safe registration failure. The specific
// cause is carried in Source/metadata for operators, never for the caller.
var ErrRegistrationFailed = errors.New("registration failed", errors.CategoryInternal).
	WithTextCode(TextCodeRegistrationFailed).
	WithCode(errors.CodeInternal)

// ErrCompensationFailed marks a compensation step that could not undo an
// external side effect. It is an operational alert, not a user outcome.
var ErrCompensationFailed = errors.New("failed to delete orphaned external account", errors.CategoryInternal).
	WithTextCode(TextCodeCompensationFailure).
	WithCode(errors.CodeInternal)

// ErrUserNotFound is returned for directory lookups with no match.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrAdminRequired is returned by the admin gate middleware.
var ErrAdminRequired = errors.New("admin access required", errors.CategoryAuthz).
	WithTextCode(TextCodeAdminRequired).
	WithCode(errors.CodeForbidden)

// IsTokenExpiredError will check for expired tokens.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsUserNotFoundError will check for directory misses.
func IsUserNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == TextCodeUserNotFound
}

// IsUniqueViolation reports whether err is a unique constraint failure from
// the underlying driver. Both sqlite and postgres are matched by message;
// neither driver exposes a portable sentinel through bun.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
