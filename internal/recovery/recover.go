// Package recovery converts panics raised by pluggable collaborators (schema
// providers, table readers, backend streams) into ordinary errors.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PanicError is returned when a recovered function panicked.
type PanicError struct {
	Op    string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Op, e.Value)
}

func logPanic(logger *slog.Logger, op string, r any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("panic recovered",
		"op", op,
		"panic", r,
		"stack", string(debug.Stack()),
	)
}

// Call runs fn and returns its result. A panic is logged with its stack and
// returned as *PanicError.
func Call[T any](logger *slog.Logger, op string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, op, r)
			var zero T
			result, err = zero, &PanicError{Op: op, Value: r}
		}
	}()
	return fn()
}

// Do is Call for functions that only return an error.
func Do(logger *slog.Logger, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, op, r)
			err = &PanicError{Op: op, Value: r}
		}
	}()
	return fn()
}

// GRPC runs a Flight handler step. A panic becomes codes.Internal.
func GRPC(logger *slog.Logger, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, op, r)
			err = status.Errorf(codes.Internal, "%s panicked: %v", op, r)
		}
	}()
	return fn()
}
