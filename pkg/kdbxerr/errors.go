// Package kdbxerr defines the sentinel error kinds surfaced by the kdbx
// streaming pipeline, and a small wrapper that attaches call-site context
// without losing the sentinel for errors.Is/errors.As.
package kdbxerr

import (
	"errors"
	"fmt"
)

var (
	// ErrBadSignature means the file does not begin with a KDBX magic.
	ErrBadSignature = errors.New("kdbx: bad signature")

	// ErrUnsupportedVersion means the major version is not supported by
	// this implementation (only KDBX v3 is).
	ErrUnsupportedVersion = errors.New("kdbx: unsupported version")

	// ErrMalformedHeader means a TLV parse failure or a missing required
	// header field.
	ErrMalformedHeader = errors.New("kdbx: malformed header")

	// ErrBadPassword means the stream-start-bytes comparison failed, or
	// the outer decrypt rejected the ciphertext (a length that is not a
	// whole number of blocks, or invalid PKCS#7 padding in the final
	// block). Indistinguishable, by design, from a wrong key file.
	ErrBadPassword = errors.New("kdbx: bad password or key file")

	// ErrIntegrityFailure means a hashed-block frame's hash did not match
	// its payload.
	ErrIntegrityFailure = errors.New("kdbx: integrity check failed")

	// ErrCorruptFrame means a hashed-block frame's length or index was out
	// of range.
	ErrCorruptFrame = errors.New("kdbx: corrupt frame")

	// ErrCompression means the inflater or deflater reported a stream
	// error.
	ErrCompression = errors.New("kdbx: compression error")

	// ErrPrimitive means an underlying crypto primitive failed.
	ErrPrimitive = errors.New("kdbx: primitive failure")

	// ErrIO means the underlying source or sink failed.
	ErrIO = errors.New("kdbx: io error")

	// ErrOutOfMemory means the allocator failed.
	ErrOutOfMemory = errors.New("kdbx: out of memory")

	// ErrCancelled means the caller dropped the stream before completion.
	ErrCancelled = errors.New("kdbx: cancelled")

	// ErrEmptyCredentials means no credential factor was added to the
	// composite key builder before sealing.
	ErrEmptyCredentials = errors.New("kdbx: no credential factors provided")

	// ErrSealed means add() was called on a composite key builder that has
	// already been sealed.
	ErrSealed = errors.New("kdbx: composite key already sealed")

	// ErrInvalidFactor means a factor digest was not 32 bytes.
	ErrInvalidFactor = errors.New("kdbx: credential factor must be 32 bytes")
)

// Error wraps a sentinel with the operation that surfaced it, so logs and
// %v output carry context while errors.Is(err, kdbxerr.ErrX) still works.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kdbx.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap attaches op to err. It returns nil if err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Wrapf wraps sentinel with additional formatted detail, keeping sentinel
// reachable via errors.Unwrap/errors.Is.
func Wrapf(op string, sentinel error, format string, args ...interface{}) error {
	return &Error{Op: op, Err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)}
}
