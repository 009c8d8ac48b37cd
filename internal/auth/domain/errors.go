package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the machine-checkable classification of an auth failure.
// The user-facing Message for UnknownAccount and InvalidCredentials is
// deliberately identical so callers cannot distinguish a missing account
// from a wrong password (account enumeration). Lockout is intentionally
// disclosed, including the remaining time.
type ErrorKind string

const (
	KindUnknownAccount       ErrorKind = "unknown_account"
	KindInvalidCredentials   ErrorKind = "invalid_credentials"
	KindAccountLocked        ErrorKind = "account_locked"
	KindTwoFactorRequired    ErrorKind = "two_factor_required"
	KindInvalidTwoFactorCode ErrorKind = "invalid_two_factor_code"
	KindProfileNotFound      ErrorKind = "profile_not_found"
	KindPermissionDenied     ErrorKind = "permission_denied"
	KindGuardUnavailable     ErrorKind = "guard_unavailable"
	KindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
)

const invalidCredentialsMessage = "invalid username or password"

// AuthError is the typed result for expected auth failures. Infrastructure
// faults wrap the underlying error; expected conditions (locked, bad code)
// carry only their payload fields.
type AuthError struct {
	Kind    ErrorKind
	Message string

	// AttemptsRemaining is set for KindInvalidCredentials.
	AttemptsRemaining int
	// RetryAfter is set for KindAccountLocked.
	RetryAfter time.Duration

	cause error
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.cause }

// Is matches two AuthErrors by kind, so errors.Is(err, &AuthError{Kind: k})
// and the sentinel helpers below work with wrapped chains.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the ErrorKind from an error chain, or "" if the error is
// not an AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func ErrUnknownAccount() *AuthError {
	return &AuthError{Kind: KindUnknownAccount, Message: invalidCredentialsMessage}
}

func ErrInvalidCredentials(attemptsRemaining int) *AuthError {
	return &AuthError{
		Kind:              KindInvalidCredentials,
		Message:           invalidCredentialsMessage,
		AttemptsRemaining: attemptsRemaining,
	}
}

func ErrAccountLocked(retryAfter time.Duration) *AuthError {
	return &AuthError{
		Kind:       KindAccountLocked,
		Message:    fmt.Sprintf("account locked, try again in %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

func ErrTwoFactorRequired() *AuthError {
	return &AuthError{Kind: KindTwoFactorRequired, Message: "two-factor code required"}
}

func ErrInvalidTwoFactorCode() *AuthError {
	return &AuthError{Kind: KindInvalidTwoFactorCode, Message: "invalid two-factor code"}
}

func ErrProfileNotFound() *AuthError {
	return &AuthError{Kind: KindProfileNotFound, Message: "profile not found"}
}

func ErrPermissionDenied(msg string) *AuthError {
	if msg == "" {
		msg = "permission denied"
	}
	return &AuthError{Kind: KindPermissionDenied, Message: msg}
}

func ErrGuardUnavailable(cause error) *AuthError {
	return &AuthError{Kind: KindGuardUnavailable, Message: "lockout guard unavailable", cause: cause}
}

func ErrUpstreamUnavailable(cause error) *AuthError {
	return &AuthError{Kind: KindUpstreamUnavailable, Message: "authentication backend unavailable", cause: cause}
}
