// Package errs defines the error taxonomy shared by the dispatch engine and
// its bounded containers, plus the mapping to the numeric status codes used
// at the command-line boundary.
package errs

import "errors"

var (
	// ErrFailed is the generic failure.
	ErrFailed = errors.New("operation failed")
	// ErrNullInput reports a missing required reference.
	ErrNullInput = errors.New("required input is nil")
	// ErrInvalidParam reports a malformed argument.
	ErrInvalidParam = errors.New("invalid parameter")
	// ErrOutOfMemory reports an allocation failure.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrNotFound reports a lookup miss (handler name, cache key, pool object).
	ErrNotFound = errors.New("not found")
	// ErrOverflow reports a bounded structure at capacity.
	ErrOverflow = errors.New("capacity exceeded")
	// ErrUnderflow reports removal from an empty structure.
	ErrUnderflow = errors.New("underflow")
	// ErrInvalidState reports an operation attempted in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")
)

// Boundary status codes.
const (
	CodeSuccess      = 0
	CodeError        = -1
	CodeNullInput    = -2
	CodeInvalidParam = -3
	CodeOutOfMemory  = -4
	CodeNotFound     = -5
	CodeOverflow     = -6
	CodeUnderflow    = -7
)

// Code maps err onto the closed set of boundary status codes. A nil error is
// CodeSuccess; InvalidState and unrecognised errors are CodeError.
func Code(err error) int {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, ErrNullInput):
		return CodeNullInput
	case errors.Is(err, ErrInvalidParam):
		return CodeInvalidParam
	case errors.Is(err, ErrOutOfMemory):
		return CodeOutOfMemory
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrOverflow):
		return CodeOverflow
	case errors.Is(err, ErrUnderflow):
		return CodeUnderflow
	default:
		return CodeError
	}
}
