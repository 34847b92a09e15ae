package accounts

import (
	"github.com/goliatone/go-errors"
)

// Text codes surfaced alongside rich errors so clients can branch without
// string matching.
const (
	TextCodeInvalidToken      = "TOKEN_INVALID"
	TextCodeEmailUnconfirmed  = "EMAIL_UNCONFIRMED"
	TextCodeAccountDisabled   = "ACCOUNT_DISABLED"
	TextCodeBadCredentials    = "BAD_CREDENTIALS"
	TextCodeDuplicateEmail    = "DUPLICATE_EMAIL"
	TextCodeNotificationError = "NOTIFICATION_FAILED"
)

// ErrInvalidCredentials is the single generic authentication failure. It
// covers both unknown email and wrong password so responses cannot be used
// to probe for account existence.
var ErrInvalidCredentials = errors.New(
	"invalid email or password, check your credentials or recover your password",
	errors.CategoryAuth,
).WithTextCode(TextCodeBadCredentials)

// ErrEmailNotConfirmed is the one deliberate exception to generic auth
// errors: the caller already proved they can act on it.
var ErrEmailNotConfirmed = errors.New(
	"your email address has not been confirmed, follow the activation link we sent you",
	errors.CategoryAuth,
).WithTextCode(TextCodeEmailUnconfirmed)

// ErrAccountDisabled covers confirmed accounts that were deactivated.
var ErrAccountDisabled = errors.New(
	"your account has been disabled, contact support",
	errors.CategoryAuth,
).WithTextCode(TextCodeAccountDisabled)

// ErrInvalidActivationLink collapses decode failures, missing accounts, and
// token mismatches into one outcome.
var ErrInvalidActivationLink = errors.New(
	"activation link is invalid or has expired",
	errors.CategoryValidation,
).WithTextCode(TextCodeInvalidToken)

// ErrInvalidResetLink is the reset flow's counterpart to
// ErrInvalidActivationLink; both collapse their failure causes the same way.
var ErrInvalidResetLink = errors.New(
	"password reset link is invalid or has expired",
	errors.CategoryValidation,
).WithTextCode(TextCodeInvalidToken)

// ErrRegistrationNotCompleted is returned when the confirmation mail could
// not be delivered and the pending account was rolled back.
var ErrRegistrationNotCompleted = errors.New(
	"registration could not be completed, try again later",
	errors.CategoryOperation,
).WithTextCode(TextCodeNotificationError)

// ErrUnableToFindSession means the auth middleware stored nothing under
// the session context key.
var ErrUnableToFindSession = errors.New(
	"unable to find session in context",
	errors.CategoryAuth,
).WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession means the stored value was not a Session.
var ErrUnableToDecodeSession = errors.New(
	"unable to decode session from context",
	errors.CategoryAuth,
).WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString guards the hashing primitives.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput)

// ErrMismatchedHashAndPassword wraps bcrypt's mismatch error.
var ErrMismatchedHashAndPassword = errors.New(
	"password does not match",
	errors.CategoryAuth,
).WithTextCode(TextCodeBadCredentials)

// IsDuplicateEmail reports whether err is the duplicate-email conflict
// raised when account creation collides with the unique email constraint.
func IsDuplicateEmail(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeDuplicateEmail
}

// IsInvalidTokenError reports whether err is a collapsed token failure from
// either the activation or the reset flow.
func IsInvalidTokenError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeInvalidToken
}

// IsEmailNotConfirmedError reports whether err is the unconfirmed-email
// login rejection.
func IsEmailNotConfirmedError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeEmailUnconfirmed
}

// IsAccountDisabledError reports whether err is the disabled-account login
// rejection.
func IsAccountDisabledError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeAccountDisabled
}
