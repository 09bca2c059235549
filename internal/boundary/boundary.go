// Package boundary isolates a unit of work so that its failure produces a
// fallback value instead of propagating to the caller's callers.
package boundary

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError wraps a value recovered from a panic inside a guarded call.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic reports whether err came from a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Guard runs fn. If fn returns an error or panics, the failure is logged under
// name and fallback is returned together with the error. A nil logger uses
// slog.Default().
func Guard[T any](logger *slog.Logger, name string, fn func() (T, error), fallback T) (result T, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
			logger.Error("panic recovered", "boundary", name, "error", err)
			result = fallback
		}
	}()

	result, err = fn()
	if err != nil {
		logger.Debug("guarded call failed", "boundary", name, "error", err)
		return fallback, err
	}
	return result, nil
}

// Do is Guard for work that produces no value.
func Do(logger *slog.Logger, name string, fn func() error) error {
	_, err := Guard(logger, name, func() (struct{}, error) {
		return struct{}{}, fn()
	}, struct{}{})
	return err
}
