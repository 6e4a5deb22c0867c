package safemem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocZeroesOnRelease(t *testing.T) {
	b := Alloc(32, nil)
	copy(b.Bytes(), []byte("super-secret-key-material-here!"))
	assert.NotEqual(t, make([]byte, 32), b.Bytes())

	b.Release()

	assert.Equal(t, make([]byte, 32), b.Bytes())
}

func TestReleaseIsIdempotent(t *testing.T) {
	b := Alloc(16, nil)
	b.Release()
	assert.NotPanics(t, func() { b.Release() })
}

func TestFromBytesTakesOwnership(t *testing.T) {
	data := []byte("abcdefgh")
	b := FromBytes(data, nil)
	assert.Equal(t, 8, b.Len())
	b.Release()
	assert.Equal(t, make([]byte, 8), data)
}
