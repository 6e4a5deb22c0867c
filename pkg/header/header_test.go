package header

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader() *Header {
	h := New()
	h.MasterSeed = bytes.Repeat([]byte{0x01}, 32)
	h.TransformSeed = bytes.Repeat([]byte{0x02}, 32)
	h.TransformRounds = 6000
	h.EncryptionIV = bytes.Repeat([]byte{0x03}, 16)
	h.ProtectedStreamKey = bytes.Repeat([]byte{0x04}, 32)
	h.StreamStartBytes = bytes.Repeat([]byte{0x05}, 32)
	h.InnerRandomStreamID = InnerStreamSalsa
	h.CompressionFlags = CompressionGzip
	return h
}

func TestWriteThenReadRoundtrips(t *testing.T) {
	h := sampleHeader()
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)

	got := &Header{}
	require.NoError(t, got.ReadFrom(&buf))

	assert.Equal(t, h.MasterSeed, got.MasterSeed)
	assert.Equal(t, h.TransformSeed, got.TransformSeed)
	assert.Equal(t, h.TransformRounds, got.TransformRounds)
	assert.Equal(t, h.EncryptionIV, got.EncryptionIV)
	assert.Equal(t, h.ProtectedStreamKey, got.ProtectedStreamKey)
	assert.Equal(t, h.StreamStartBytes, got.StreamStartBytes)
	assert.Equal(t, h.InnerRandomStreamID, got.InnerRandomStreamID)
	assert.Equal(t, h.CompressionFlags, got.CompressionFlags)
	assert.Equal(t, h.CipherID, got.CipherID)
	assert.NoError(t, got.Validate())
	assert.Equal(t, 0, buf.Len())
}

func TestReadFromRecordsImageLength(t *testing.T) {
	h := sampleHeader()
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)
	full := buf.Bytes()

	trailer := []byte("this is the start of the hashed-block stream")
	r := bytes.NewReader(append(append([]byte{}, full...), trailer...))

	got := &Header{}
	require.NoError(t, got.ReadFrom(r))
	assert.Equal(t, len(full), got.ImageLength())

	rest := make([]byte, len(trailer))
	_, err = r.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, trailer, rest)
}

func TestReadFromRejectsBadSignature(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, 16))
	h := &Header{}
	err := h.ReadFrom(buf)
	assert.Error(t, err)
}

func TestReadFromRejectsUnsupportedMajorVersion(t *testing.T) {
	h := sampleHeader()
	h.MajorVersion = 4
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)

	got := &Header{}
	err = got.ReadFrom(&buf)
	assert.Error(t, err)
}

func TestUnknownFieldsArePreservedAcrossRoundtrip(t *testing.T) {
	h := sampleHeader()
	h.unknown = append(h.unknown, unknownField{id: FieldID(200), value: []byte("future-field")})

	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)

	got := &Header{}
	require.NoError(t, got.ReadFrom(&buf))
	require.Len(t, got.unknown, 1)
	assert.Equal(t, FieldID(200), got.unknown[0].id)
	assert.Equal(t, []byte("future-field"), got.unknown[0].value)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	h := New()
	assert.Error(t, h.Validate())
}

func TestCommentRoundtripsWhenPresent(t *testing.T) {
	h := sampleHeader()
	h.Comment = []byte("generated by a test")
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)

	got := &Header{}
	require.NoError(t, got.ReadFrom(&buf))
	assert.Equal(t, h.Comment, got.Comment)
}
