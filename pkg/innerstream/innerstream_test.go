package innerstream

import (
	"testing"

	"github.com/spectralops/kdbxpipe/pkg/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSalsaMaskUnmaskRoundtripsInOrder(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	masker, err := New(header.InnerStreamSalsa, key)
	require.NoError(t, err)
	unmasker, err := New(header.InnerStreamSalsa, key)
	require.NoError(t, err)

	m := NewProtectedFieldCipher(masker)
	u := NewProtectedFieldCipher(unmasker)

	fields := []string{"hunter2", "", "a much longer secret field value", "x"}
	for _, f := range fields {
		protected := m.Mask([]byte(f))
		got := u.Unmask(protected)
		assert.Equal(t, f, string(got))
	}
}

func TestARC4MaskUnmaskRoundtripsInOrder(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}

	masker, err := New(header.InnerStreamARC4, key)
	require.NoError(t, err)
	unmasker, err := New(header.InnerStreamARC4, key)
	require.NoError(t, err)

	m := NewProtectedFieldCipher(masker)
	u := NewProtectedFieldCipher(unmasker)

	fields := []string{"field one", "field two", "field three"}
	for _, f := range fields {
		protected := m.Mask([]byte(f))
		got := u.Unmask(protected)
		assert.Equal(t, f, string(got))
	}
}

func TestOutOfOrderUnmaskDoesNotRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	masker, err := New(header.InnerStreamSalsa, key)
	require.NoError(t, err)
	unmasker, err := New(header.InnerStreamSalsa, key)
	require.NoError(t, err)

	m := NewProtectedFieldCipher(masker)
	u := NewProtectedFieldCipher(unmasker)

	a := m.Mask([]byte("first"))
	b := m.Mask([]byte("second"))

	// Unmasking out of order must not recover the original values, since
	// the keystream is consumed sequentially.
	gotB := u.Unmask(b)
	assert.NotEqual(t, "second", string(gotB))

	_ = a
}

func TestNewRejectsUnsupportedID(t *testing.T) {
	_, err := New(header.InnerStreamNone, make([]byte, 32))
	assert.Error(t, err)
}
