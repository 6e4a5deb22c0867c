// Package compositekey builds the KDBX master composite key from one or
// more credential factors (password, key file, challenge response) and
// runs the transform-round KDF that turns it into the key actually used to
// derive the outer cipher key. Grounded on gokeepasslib's credentials.go
// (buildCompositeKey / cryptAESKey / buildMasterKey), generalized into an
// explicit Builder so factors can be supplied incrementally and sealed
// once, per the spec's CompositeKey data model.
package compositekey

import (
	"github.com/spectralops/kdbxpipe/pkg/kdbxcrypto"
	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

const factorSize = 32

// Builder accumulates 32-byte credential factor digests and seals them
// into a single 32-byte composite key. It has a single owner at a time and
// is not safe for concurrent use.
type Builder struct {
	factors [][]byte
	sealed  bool
}

// NewBuilder returns an empty composite key builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a 32-byte factor digest. It fails with ErrInvalidFactor if
// the factor is not exactly 32 bytes, and ErrSealed if called after Seal.
func (b *Builder) Add(factor []byte) error {
	if b.sealed {
		return kdbxerr.Wrap("Builder.Add", kdbxerr.ErrSealed)
	}
	if len(factor) != factorSize {
		return kdbxerr.Wrap("Builder.Add", kdbxerr.ErrInvalidFactor)
	}
	cp := make([]byte, factorSize)
	copy(cp, factor)
	b.factors = append(b.factors, cp)
	return nil
}

// Seal computes the 32-byte composite key as SHA-256 over the
// concatenation of every added factor digest, in insertion order. It is
// idempotent: calling it again returns the same value without requiring
// factors to be re-added. An empty factor list is invalid.
func (b *Builder) Seal() ([]byte, error) {
	if len(b.factors) == 0 {
		return nil, kdbxerr.Wrap("Builder.Seal", kdbxerr.ErrEmptyCredentials)
	}
	b.sealed = true
	digest := kdbxcrypto.NewSHA256()
	for _, f := range b.factors {
		digest.Write(f)
	}
	return digest.Sum(), nil
}
