package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("session not found")
	ErrTokenMismatch      = errors.New("token mismatch")
	ErrExpired            = errors.New("session expired")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrEncoding           = errors.New("qr encoding failed")

	// ErrConflict is returned by a Store when an insert violates a
	// uniqueness constraint.
	ErrConflict = errors.New("uniqueness conflict")
)

// unavailable wraps a store failure so callers can match ErrStorageUnavailable
// while the cause stays visible in logs.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
