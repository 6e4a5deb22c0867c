// Package kdbxcrypto adapts third-party and standard-library crypto
// primitives behind the small capability interfaces the pipeline consumes:
// Digest, BlockCipher, StreamCipher, Compressor/Decompressor, and
// RandomBytes. None of these types implement cryptography themselves —
// they wire an interface onto an existing implementation, the way
// gokeepasslib's crypto subpackage wires AESEncrypter/SalsaStream/
// ChaChaStream onto crypto/aes and (in that package's case) a hand-rolled
// Salsa20. Here the Salsa20 block function comes from
// golang.org/x/crypto/salsa20/salsa instead of being hand-rolled, per this
// repo's design notes.
package kdbxcrypto

// Digest is a one-shot or incremental hash capability.
type Digest interface {
	Write(p []byte) (n int, err error)
	Sum() []byte
	Reset()
}

// BlockCipher performs block-cipher transformation with PKCS#7 padding on
// encryption and padding validation on decryption.
type BlockCipher interface {
	// Encrypt pads plaintext with PKCS#7 and CBC-encrypts it.
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt CBC-decrypts ciphertext and strips PKCS#7 padding.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// StreamCipher produces a keystream consumed by XOR, in strictly
// increasing order; it is not safe for concurrent use by multiple
// goroutines since it carries its position as internal state.
type StreamCipher interface {
	// XORKeyStream XORs src with the next len(src) keystream bytes,
	// writing the result to dst (which may alias src).
	XORKeyStream(dst, src []byte)
}

// Compressor streams plaintext bytes into a compressed form.
type Compressor interface {
	Write(p []byte) (int, error)
	Close() error
}

// Decompressor streams a compressed byte source back into plaintext.
type Decompressor interface {
	Read(p []byte) (int, error)
	Close() error
}

// RandomBytes fills buffers with cryptographically secure random bytes.
// The process-wide default is backed by crypto/rand and is safe for
// concurrent use, matching the spec's "only process-wide shared resource"
// note in §5.
type RandomBytes interface {
	Fill(buf []byte) error
}
