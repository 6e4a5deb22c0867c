// Package innerstream implements the KDBX protected-field cipher: the
// keystream that masks individual "Protected" field values inside the
// decrypted XML payload, distinct from the outer AES-256-CBC database
// cipher. Grounded on gokeepasslib's crypto.go Stream interface and
// StreamManager (NewStreamManager / Unpack / Pack), generalized here to
// operate on an ordered sequence of opaque byte fields rather than on a
// parsed XML/Entry tree, since XML structure is out of this repo's scope
// and is left to an external collaborator per the spec's data model.
package innerstream

import (
	"github.com/spectralops/kdbxpipe/pkg/header"
	"github.com/spectralops/kdbxpipe/pkg/kdbxcrypto"
	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// New constructs the StreamCipher named by id, seeded from the header's
// ProtectedStreamKey-derived key. id must be InnerStreamARC4 or
// InnerStreamSalsa; InnerStreamNone is rejected since a cipher is the
// whole point of this package, and KDBX v3's ChaCha20 variant (id 3) is a
// KDBX v4 addition and out of scope here.
func New(id header.InnerStreamID, key []byte) (kdbxcrypto.StreamCipher, error) {
	switch id {
	case header.InnerStreamARC4:
		return kdbxcrypto.NewARC4Stream(key)
	case header.InnerStreamSalsa:
		return kdbxcrypto.NewSalsa20Stream(key), nil
	default:
		return nil, kdbxerr.Wrapf("innerstream.New", kdbxerr.ErrMalformedHeader, "unsupported inner stream id %d", id)
	}
}

// ProtectedFieldCipher masks and unmasks a sequence of protected field
// values in document order, using a single StreamCipher instance whose
// keystream position advances with every call. Field order must match
// between Mask and Unmask passes over the same document, which is the
// caller's responsibility (typically: walk the XML tree in the same
// order gokeepasslib's UnlockProtectedEntry/LockProtectedEntry do).
//
// Not safe for concurrent use: the underlying StreamCipher carries
// position as state.
type ProtectedFieldCipher struct {
	cipher kdbxcrypto.StreamCipher
}

// NewProtectedFieldCipher wraps an already-constructed StreamCipher.
func NewProtectedFieldCipher(cipher kdbxcrypto.StreamCipher) *ProtectedFieldCipher {
	return &ProtectedFieldCipher{cipher: cipher}
}

// Unmask XORs the next len(protected) keystream bytes over protected,
// returning the plaintext field value. Call order must match the order
// the fields were masked in.
func (p *ProtectedFieldCipher) Unmask(protected []byte) []byte {
	out := make([]byte, len(protected))
	p.cipher.XORKeyStream(out, protected)
	return out
}

// Mask XORs the next len(plaintext) keystream bytes over plaintext,
// returning the protected field value to store on disk.
func (p *ProtectedFieldCipher) Mask(plaintext []byte) []byte {
	out := make([]byte, len(plaintext))
	p.cipher.XORKeyStream(out, plaintext)
	return out
}
