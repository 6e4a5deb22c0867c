package kdbxcrypto

import (
	"crypto/rand"

	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// CryptoRandReader implements RandomBytes over crypto/rand. It holds no
// state and is safe for concurrent use by any number of goroutines, the
// way the spec's §5 "only process-wide shared resource" note requires.
type CryptoRandReader struct{}

// DefaultRandom is the process-wide RandomBytes instance new header
// fields are generated from when the caller does not supply one.
var DefaultRandom RandomBytes = CryptoRandReader{}

// Fill fills buf with random bytes from crypto/rand.
func (CryptoRandReader) Fill(buf []byte) error {
	if _, err := rand.Read(buf); err != nil {
		return kdbxerr.Wrap("RandomBytes.Fill", err)
	}
	return nil
}
