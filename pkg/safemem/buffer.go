// Package safemem provides allocation of byte buffers that hold secret
// material: key bytes, derived keys, and decrypted plaintext in flight
// through the pipeline. Every Buffer is zeroed on Release. Every non-empty
// Buffer made by Alloc attempts an OS page-lock so the backing memory is
// never written to swap; a Buffer made by FromBytes is not page-locked.
package safemem

import (
	"runtime"

	"github.com/spectralops/kdbxpipe/pkg/logging"
)

// Buffer is a contiguous, owned byte region meant for secret material.
// It has a single owner at any moment: pass it by transferring the
// *Buffer pointer, never by sharing it across goroutines concurrently.
type Buffer struct {
	data     []byte
	locked   bool
	logger   logging.Logger
	released bool
}

// Alloc allocates a new Buffer of length n. If logger is nil, a fresh
// logging.New() logger (writing to stderr) is used; page-lock failures are
// reported through it at Warn level and are never fatal.
func Alloc(n int, logger logging.Logger) *Buffer {
	if logger == nil {
		logger = logging.New()
	}
	b := &Buffer{
		data:   make([]byte, n),
		logger: logger,
	}
	if n > 0 {
		if err := lockPages(b.data); err != nil {
			logger.WithField("size", n).WithError(err).Warn("safemem: failed to page-lock allocation")
		} else {
			b.locked = true
		}
	}
	return b
}

// FromBytes wraps an existing slice as a Buffer, taking ownership of it.
// The caller must not retain or mutate the slice afterwards.
func FromBytes(data []byte, logger logging.Logger) *Buffer {
	if logger == nil {
		logger = logging.New()
	}
	return &Buffer{data: data, logger: logger}
}

// Bytes returns the live backing slice. The returned slice is only valid
// until Release is called.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Release zeroes the buffer contents, unlocks any locked pages, and marks
// the buffer as consumed. Release is idempotent; calling it twice is safe
// and the second call is a no-op.
func (b *Buffer) Release() {
	if b.released {
		return
	}
	zero(b.data)
	if b.locked {
		if err := unlockPages(b.data); err != nil {
			b.logger.WithError(err).Warn("safemem: failed to page-unlock allocation")
		}
	}
	b.released = true
}

// zero overwrites buf with zero bytes in a way the compiler cannot elide
// as a dead store (see golang/go#33325): a plain loop followed by
// runtime.KeepAlive is sufficient because KeepAlive forces the compiler to
// treat buf as live, and therefore the preceding writes as observable,
// through this call.
func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}
