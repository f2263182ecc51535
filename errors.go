package tjpeg

import (
	"errors"
	"fmt"
)

// Errors reported by the Decompressor before any engine call is made.
var (
	// ErrNotInitialized is returned when an operation needs a parsed JPEG header and none is associated.
	ErrNotInitialized = errors.New("JPEG buffer not initialized")
	// ErrInvalidArgument is returned for out-of-range, nil or empty parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCorruptHeader is returned when a parsed header field is outside the known range.
	ErrCorruptHeader = errors.New("JPEG header information is invalid")
	// ErrUnsatisfiableScale is returned when no scaling factor, including 1/1, fits the requested bounds.
	ErrUnsatisfiableScale = errors.New("could not scale down to desired image dimensions")
	// ErrUnsupportedFormat is returned when a destination image has a layout no decode path supports.
	ErrUnsupportedFormat = errors.New("unsupported destination format")
	// ErrNativeFailure is returned (wrapped in a CodecError) when the engine fails.
	ErrNativeFailure = errors.New("codec failure")
	// ErrClosed is returned when a Decompressor is used after Close.
	ErrClosed = errors.New("decompressor is closed")
)

// Errors reported by the built-in engine.
var (
	ErrNoJPEG      = errors.New("not a JPEG file")
	ErrUnsupported = errors.New("unsupported format")
	ErrOutOfMemory = errors.New("out of memory")
	ErrInternal    = errors.New("internal error")
	ErrSyntax      = errors.New("syntax error")
)

// CodecError records a failed engine operation.
// It matches both ErrNativeFailure and the underlying engine error with errors.Is.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("tjpeg: %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() []error {
	return []error{ErrNativeFailure, e.Err}
}

// invalidArg annotates ErrInvalidArgument with the calling operation.
func invalidArg(op string) error {
	return fmt.Errorf("%w in %s", ErrInvalidArgument, op)
}
