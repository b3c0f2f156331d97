package fstream

import (
	"errors"
	"fmt"
	"os"
)

// Stream errors. ErrNotFound aliases os.ErrNotExist so that os.IsNotExist
// and errors.Is(err, fs.ErrNotExist) keep working on wrapped errors.
var (
	ErrNotFound  = os.ErrNotExist
	ErrCancelled = errors.New("fstream: cancelled")
)

// IOError is a read or write failure at a given offset.
type IOError struct {
	Op     string // "read" or "write"
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("fstream: %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the source does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCancelled reports whether err is the result of a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// ProtocolViolation is the panic value raised when the sequencing contract
// is broken, e.g. a chunk arrives while the previous one is still being
// written or demand is requested with n < 1.
type ProtocolViolation struct {
	Rule string
}

func (p ProtocolViolation) Error() string {
	return "fstream: protocol violation: " + p.Rule
}

func violation(format string, args ...any) {
	panic(ProtocolViolation{Rule: fmt.Sprintf(format, args...)})
}
