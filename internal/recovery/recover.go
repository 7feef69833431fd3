// Package recovery turns panics raised inside collection code into errors, so
// a faulty ScanFunc or catalog fails one request instead of the server.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrPanic is wrapped by every error produced from a recovered panic.
var ErrPanic = errors.New("panic")

// PanicError describes a recovered panic.
type PanicError struct {
	Op    string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Op, e.Value)
}

func (e *PanicError) Unwrap() error { return ErrPanic }

// Call runs fn and reports a panic as a *PanicError.
// attrs (typically schema and collection) are added to the log record.
func Call(logger *slog.Logger, op string, fn func() error, attrs ...slog.Attr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = report(logger, op, r, attrs)
		}
	}()
	return fn()
}

// Get is Call for functions returning a value. After a panic the value is zero.
//
//	reader, err := recovery.Get(logger, "Scan", func() (array.RecordReader, error) {
//	    return coll.Scan(ctx, opts)
//	}, slog.String("collection", name))
func Get[T any](logger *slog.Logger, op string, fn func() (T, error), attrs ...slog.Attr) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, err = zero, report(logger, op, r, attrs)
		}
	}()
	return fn()
}

// Cleanup runs fn and only logs a panic. For deferred releases.
func Cleanup(logger *slog.Logger, op string, fn func(), attrs ...slog.Attr) {
	defer func() {
		if r := recover(); r != nil {
			report(logger, op, r, attrs)
		}
	}()
	fn()
}

func report(logger *slog.Logger, op string, r any, attrs []slog.Attr) *PanicError {
	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("operation", op),
		slog.Any("panic", r),
		slog.String("stack", string(debug.Stack())),
	)
	all = append(all, attrs...)
	logger.LogAttrs(context.Background(), slog.LevelError, "Panic recovered", all...)
	return &PanicError{Op: op, Value: r}
}
