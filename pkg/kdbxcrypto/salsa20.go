package kdbxcrypto

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/salsa20/salsa"
)

// kdbxSalsaNonce is the fixed 8-byte nonce KeePass uses for the inner
// Salsa20 stream, taken from gokeepasslib's crypto.SalsaStream (it is a
// protocol constant, not a secret).
var kdbxSalsaNonce = [8]byte{0xe8, 0x30, 0x09, 0x4b, 0x97, 0x20, 0x5d, 0x2a}

// Salsa20Stream implements StreamCipher for KeePass's inner-stream
// protection, generating 64-byte Salsa20 blocks via
// golang.org/x/crypto/salsa20/salsa.Core and buffering the unused tail of
// each block the way gokeepasslib's SalsaStream.fetchBytes does, so a
// caller requesting an odd number of bytes doesn't waste keystream.
type Salsa20Stream struct {
	key     [32]byte
	counter uint64
	buf     []byte // unconsumed keystream bytes from the current block
}

// NewSalsa20Stream derives the Salsa20 key as SHA-256(innerKey), matching
// KeePass's key-setup (gokeepasslib NewSalsaStream).
func NewSalsa20Stream(innerKey []byte) *Salsa20Stream {
	return &Salsa20Stream{key: sha256.Sum256(innerKey)}
}

// XORKeyStream XORs src into dst with the next len(src) keystream bytes.
func (s *Salsa20Stream) XORKeyStream(dst, src []byte) {
	need := len(src)
	out := dst[:need]
	i := 0
	for i < need {
		if len(s.buf) == 0 {
			s.buf = s.nextBlock()
		}
		n := len(s.buf)
		if need-i < n {
			n = need - i
		}
		for j := 0; j < n; j++ {
			out[i+j] = src[i+j] ^ s.buf[j]
		}
		s.buf = s.buf[n:]
		i += n
	}
}

// nextBlock produces one 64-byte Salsa20 block and advances the counter,
// matching gokeepasslib's 64-bit little-endian block counter split across
// Salsa20 state words 8 and 9.
func (s *Salsa20Stream) nextBlock() []byte {
	var nonceAndCounter [16]byte
	copy(nonceAndCounter[0:8], kdbxSalsaNonce[:])
	binary.LittleEndian.PutUint64(nonceAndCounter[8:16], s.counter)

	var block [64]byte
	salsa.Core(&block, &nonceAndCounter, &s.key, &salsa.Sigma)
	s.counter++
	return block[:]
}
