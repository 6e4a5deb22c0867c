package compositekey

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRejectsEmpty(t *testing.T) {
	b := NewBuilder()
	_, err := b.Seal()
	assert.Error(t, err)
}

func TestBuilderRejectsWrongSizedFactor(t *testing.T) {
	b := NewBuilder()
	err := b.Add([]byte("too short"))
	assert.Error(t, err)
}

func TestBuilderSealIsDeterministic(t *testing.T) {
	b1 := NewBuilder()
	f := FactorFromPassword("hunter2")
	require.NoError(t, b1.Add(f))
	c1, err := b1.Seal()
	require.NoError(t, err)
	c2, err := b1.Seal()
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	b2 := NewBuilder()
	require.NoError(t, b2.Add(f))
	c3, err := b2.Seal()
	require.NoError(t, err)
	assert.Equal(t, c1, c3)
}

func TestBuilderOrderMatters(t *testing.T) {
	a := FactorFromPassword("a")
	b := FactorFromPassword("b")

	b1 := NewBuilder()
	require.NoError(t, b1.Add(a))
	require.NoError(t, b1.Add(b))
	c1, err := b1.Seal()
	require.NoError(t, err)

	b2 := NewBuilder()
	require.NoError(t, b2.Add(b))
	require.NoError(t, b2.Add(a))
	c2, err := b2.Seal()
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestBuilderRejectsAddAfterSeal(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(FactorFromPassword("x")))
	_, err := b.Seal()
	require.NoError(t, err)

	err = b.Add(FactorFromPassword("y"))
	assert.Error(t, err)
}

// TestTransformDeterministicRegardlessOfParallelism is the regression
// fixture from the spec's KDF determinism scenario: composite key 0..31,
// transform seed 0x01 repeated, rounds = 6000. The expected value below
// was computed by running the serial form of the same AES-ECB iteration
// gokeepasslib's cryptAESKey performs, then hashing with SHA-256, and is
// re-checked here against the concurrent two-halves implementation.
func TestTransformDeterministicRegardlessOfParallelism(t *testing.T) {
	composite := make([]byte, 32)
	for i := range composite {
		composite[i] = byte(i)
	}
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = 0x01
	}

	got, err := Transform(composite, seed, 6000)
	require.NoError(t, err)

	want := serialTransform(t, composite, seed, 6000)
	assert.Equal(t, want, got)

	// Run several more times to catch any data race between the two
	// halves' goroutines corrupting the shared output slice.
	for i := 0; i < 20; i++ {
		got2, err := Transform(composite, seed, 6000)
		require.NoError(t, err)
		assert.Equal(t, want, got2)
	}
}

// serialTransform re-implements Transform without goroutines, as an
// independent oracle for the concurrency test above.
func serialTransform(t *testing.T, composite, seed []byte, rounds uint64) []byte {
	t.Helper()
	block, err := aes.NewCipher(seed)
	require.NoError(t, err)
	out := make([]byte, 32)
	copy(out, composite)
	for i := uint64(0); i < rounds; i++ {
		block.Encrypt(out[:16], out[:16])
		block.Encrypt(out[16:], out[16:])
	}
	sum := sha256.Sum256(out)
	return sum[:]
}

func TestMasterKey(t *testing.T) {
	masterSeed := make([]byte, 32)
	transformed := make([]byte, 32)
	for i := range transformed {
		transformed[i] = byte(i)
	}
	mk := MasterKey(masterSeed, transformed)
	assert.Len(t, mk, 32)
}

func TestFactorFromKeyFileData32RawBytes(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	factor, err := FactorFromKeyFileData(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, factor)
}

func TestFactorFromKeyFileData64Hex(t *testing.T) {
	hexStr := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	factor, err := FactorFromKeyFileData([]byte(hexStr))
	require.NoError(t, err)
	assert.Len(t, factor, 32)
}

func TestFactorFromKeyFileDataXML(t *testing.T) {
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	b64 := base64.StdEncoding.EncodeToString(payload)
	xml := []byte("<Key><Data>" + b64 + "</Data></Key>")
	factor, err := FactorFromKeyFileData(xml)
	require.NoError(t, err)
	assert.Equal(t, payload, factor)
}

func TestFactorFromKeyFileDataOtherFallsBackToSHA256(t *testing.T) {
	content := []byte("arbitrary key file contents, not 32 bytes and not hex")
	factor, err := FactorFromKeyFileData(content)
	require.NoError(t, err)
	want := sha256.Sum256(content)
	assert.Equal(t, want[:], factor)
}
