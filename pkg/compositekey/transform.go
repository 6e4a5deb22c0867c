package compositekey

import (
	"crypto/aes"
	"sync"

	"github.com/spectralops/kdbxpipe/pkg/kdbxcrypto"
	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// Transform iterates composite through rounds applications of
// AES-256-ECB-encrypt(transformSeed, ·), treating the 32-byte composite
// key as two independent 16-byte halves, then hashes the result with
// SHA-256. This is gokeepasslib's cryptAESKey: block.Encrypt is called
// directly on each half (a single-block AES-ECB encryption), rather than
// going through a general ECB cipher.Mode wrapper, since KDBX only ever
// needs single-block transforms here.
//
// The two halves are independent by construction (AES-ECB never mixes
// blocks), so this function runs them concurrently on two goroutines
// joined by a WaitGroup barrier — the only synchronization the spec's
// design notes call for. The result is identical to running them
// serially; TestTransformDeterministicRegardlessOfParallelism guards this.
func Transform(composite, transformSeed []byte, rounds uint64) ([]byte, error) {
	if len(composite) != 32 {
		return nil, kdbxerr.Wrap("Transform", kdbxerr.ErrInvalidFactor)
	}
	if len(transformSeed) != 32 {
		return nil, kdbxerr.Wrapf("Transform", kdbxerr.ErrMalformedHeader, "transform seed must be 32 bytes, got %d", len(transformSeed))
	}

	block, err := aes.NewCipher(transformSeed)
	if err != nil {
		return nil, kdbxerr.Wrap("Transform", err)
	}

	out := make([]byte, 32)
	copy(out, composite)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		transformHalf(block, out[:16], rounds)
	}()
	go func() {
		defer wg.Done()
		transformHalf(block, out[16:], rounds)
	}()
	wg.Wait()

	sum := kdbxcrypto.Sum256(out)
	return sum[:], nil
}

func transformHalf(block interface {
	Encrypt(dst, src []byte)
}, half []byte, rounds uint64) {
	for i := uint64(0); i < rounds; i++ {
		block.Encrypt(half, half)
	}
}

// MasterKey computes SHA-256(masterSeed || transformed), the key the outer
// AES-256-CBC decryptor/encryptor actually uses.
func MasterKey(masterSeed, transformed []byte) []byte {
	digest := kdbxcrypto.NewSHA256()
	digest.Write(masterSeed)
	digest.Write(transformed)
	return digest.Sum()
}
