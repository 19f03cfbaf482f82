// Package ecserr defines the error taxonomy shared across the storage
// engine. Every package wraps the sentinels here with fmt.Errorf("%w")
// rather than inventing ad-hoc error strings, so callers can classify
// failures with errors.Is regardless of which layer produced them.
package ecserr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the kinds described in spec §7.
var (
	// ErrValidation covers empty/malformed IDs, unknown components, and
	// incompatible filter operators.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates the entity or component does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a component insert would violate the
	// single-live-component-per-type invariant.
	ErrConflict = errors.New("conflict")

	// ErrTransient covers connection loss and serialization failures;
	// safe to retry with backoff.
	ErrTransient = errors.New("transient error")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrCache indicates a cache provider failure. Never fatal — callers
	// fall through to the database.
	ErrCache = errors.New("cache error")

	// ErrHook indicates one or more lifecycle hooks failed. Reported as a
	// side channel; never fails the originating write.
	ErrHook = errors.New("hook error")

	// ErrFatal covers registry mismatches and partitioning DDL failures
	// discovered at startup.
	ErrFatal = errors.New("fatal error")
)

// Wrap attaches op context to err while preserving the sentinel chain so
// errors.Is(result, ErrNotFound) (etc.) still succeeds.
func Wrap(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds a not-found error with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict builds a conflict error with a formatted message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Is reports whether err is (or wraps) kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
