package services

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialExhausted = errors.New("service temporarily unavailable")
	ErrTransactionFailed   = errors.New("account creation failed")

	ErrVerificationNotFound = errors.New("no pending verification for this email")
	ErrVerificationExpired  = errors.New("verification code expired")
	ErrVerificationMismatch = errors.New("invalid verification code")
	ErrAttemptsExceeded     = errors.New("too many failed attempts")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("already exists")
)

// ValidationError is a client input problem; its message is safe to return.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// MismatchError carries how many guesses remain before the challenge is burned.
type MismatchError struct {
	AttemptsLeft int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s, %d attempts left", ErrVerificationMismatch, e.AttemptsLeft)
}

func (e *MismatchError) Is(target error) bool { return target == ErrVerificationMismatch }
