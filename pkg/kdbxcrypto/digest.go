package kdbxcrypto

import (
	"crypto/sha256"
	"hash"
)

// SHA256Digest adapts the standard library's SHA-256 implementation to
// the Digest interface. SHA-256 is a primitive being consumed, not
// implemented, so stdlib is the correct source here (see DESIGN.md).
type SHA256Digest struct {
	h hash.Hash
}

// NewSHA256 returns a fresh SHA-256 digest.
func NewSHA256() *SHA256Digest {
	return &SHA256Digest{h: sha256.New()}
}

func (d *SHA256Digest) Write(p []byte) (int, error) { return d.h.Write(p) }
func (d *SHA256Digest) Sum() []byte                 { return d.h.Sum(nil) }
func (d *SHA256Digest) Reset()                      { d.h.Reset() }

// Sum256 is a convenience one-shot SHA-256 over data.
func Sum256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
