package errors

import (
	"errors"
	"fmt"
)

// Common error types for the API client
var (
	// Credential errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrMissingRefreshToken = errors.New("missing refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshFailed       = errors.New("refresh failed")

	// Session errors
	ErrNoSession       = errors.New("no active session")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionCorrupt  = errors.New("session record corrupt")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrRetryExhausted = errors.New("retries exhausted")

	// General errors
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Mark returns an error that matches both sentinel and cause
func Mark(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
