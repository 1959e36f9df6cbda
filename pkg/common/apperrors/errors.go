// Package apperrors defines the error taxonomy raised by the conditioning
// core. All three sentinels are returned synchronously to the immediate
// caller; handler-side failures are logged instead and never propagate.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the caller lacks rights over the target user.
	ErrUnauthorized = errors.New("caller is not authorized for target user")

	// ErrNotFound means a referenced entity is absent from the system of
	// record.
	ErrNotFound = errors.New("entity not found")

	// ErrPersistence means a repository operation failed.
	ErrPersistence = errors.New("persistence operation failed")
)

// Unauthorizedf wraps ErrUnauthorized with context.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnauthorized)...)
}

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Persistencef wraps ErrPersistence with context.
func Persistencef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPersistence)...)
}

// IsUnauthorized reports whether err is (or wraps) ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPersistence reports whether err is (or wraps) ErrPersistence.
func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }
