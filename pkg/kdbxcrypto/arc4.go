package kdbxcrypto

import (
	"crypto/rc4"

	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// ARC4Stream implements StreamCipher for the legacy ARC4 inner stream id.
// gokeepasslib's own NewStreamManager refuses to construct one ("not
// implemented"); this implementation does, entirely via the standard
// library's crypto/rc4, since ARC4 is a primitive being consumed and
// crypto/rc4 is the only actively available Go implementation of it in
// the ecosystem this repo draws from.
type ARC4Stream struct {
	c *rc4.Cipher
}

// NewARC4Stream builds an ARC4 stream cipher from the raw inner key (no
// extra key-derivation step, unlike Salsa20's SHA-256 pre-hash).
func NewARC4Stream(key []byte) (*ARC4Stream, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, kdbxerr.Wrap("NewARC4Stream", err)
	}
	return &ARC4Stream{c: c}, nil
}

// XORKeyStream XORs src into dst with the next len(src) keystream bytes.
func (a *ARC4Stream) XORKeyStream(dst, src []byte) {
	a.c.XORKeyStream(dst, src)
}
