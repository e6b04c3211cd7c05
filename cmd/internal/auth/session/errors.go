package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned by login flows for a bad email/password pair.
	// It never has session side effects.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid covers bad signatures, malformed tokens and wrong audiences.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned for an authentic token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionRevoked is returned when an authentic refresh token names a session
	// that is no longer valid.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrUserNotFound is returned when the owner of a session no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrStoreUnavailable marks infrastructure failures. Callers may retry.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrSessionNotFound is the store-level miss for Get and Touch.
	ErrSessionNotFound = errors.New("session not found")

	ErrConfig = errors.New("invalid session config")
)

// StoreError wraps an infrastructure failure with the operation that hit it.
// It matches both ErrStoreUnavailable and the underlying error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Op, ErrStoreUnavailable.Error(), e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// storeFailure wraps err unless it is nil or already part of the domain taxonomy.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsRetryable reports whether err is a transient infrastructure failure.
func IsRetryable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
