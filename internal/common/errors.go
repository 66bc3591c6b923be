// Package common defines shared constants and sentinel errors used across
// the keyring server and its tooling. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Session errors. A missing or expired session always means a fresh login.
	ErrSessionNotFound = errors.New("session not found")

	// Key hierarchy errors.
	ErrKeyUnlockFailed        = errors.New("key unlock failed")
	ErrDecapsulationFailed    = errors.New("decapsulation failed")
	ErrResetKeyPasswordNotSet = errors.New("reset key password is not set")

	// Import errors. The queued payload is kept when this is returned.
	ErrInvalidImport = errors.New("invalid import")

	// Startup errors.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)
