package kdbx

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/spectralops/kdbxpipe/pkg/header"
	"github.com/spectralops/kdbxpipe/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	buf bytes.Buffer
}

func (m *memSink) Create() (io.WriteCloser, error) {
	return nopCloser{&m.buf}, nil
}

type memSource struct {
	data []byte
}

func (m memSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func newTemplate(compression header.CompressionFlag) *header.Header {
	h := header.New()
	h.TransformSeed = bytes.Repeat([]byte{0x07}, 32)
	h.TransformRounds = 200
	h.ProtectedStreamKey = bytes.Repeat([]byte{0x09}, 32)
	h.InnerRandomStreamID = header.InnerStreamSalsa
	h.CompressionFlags = compression
	return h
}

func drain(t *testing.T, ch <-chan pipeline.Chunk) []byte {
	t.Helper()
	var out bytes.Buffer
	for c := range ch {
		require.NoError(t, c.Err)
		if c.EOF {
			break
		}
		out.Write(c.Data)
	}
	return out.Bytes()
}

func TestStoreThenLoadRoundtripsUncompressed(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{Password: "correct horse battery staple"}
	xml := []byte("<KeePassFile><Root>hello world</Root></KeePassFile>")

	sink := &memSink{}
	require.NoError(t, Store(ctx, sink, creds, newTemplate(header.CompressionNone), bytes.NewReader(xml), pipeline.Config{}, nil))

	src := memSource{data: sink.buf.Bytes()}
	result, err := Load(ctx, src, creds, pipeline.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, header.CompressionNone, result.Header.CompressionFlags)

	got := drain(t, result.XML)
	assert.Equal(t, xml, got)
}

func TestStoreThenLoadRoundtripsCompressed(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{Password: "correct horse battery staple"}
	xml := bytes.Repeat([]byte("repeat me so gzip actually shrinks it "), 500)

	sink := &memSink{}
	require.NoError(t, Store(ctx, sink, creds, newTemplate(header.CompressionGzip), bytes.NewReader(xml), pipeline.Config{}, nil))

	// A real compression win, not just the overhead of the gzip envelope.
	assert.Less(t, sink.buf.Len(), len(xml))

	src := memSource{data: sink.buf.Bytes()}
	result, err := Load(ctx, src, creds, pipeline.Config{}, nil)
	require.NoError(t, err)

	got := drain(t, result.XML)
	assert.Equal(t, xml, got)
}

func TestLoadRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	xml := []byte("<KeePassFile/>")

	sink := &memSink{}
	require.NoError(t, Store(ctx, sink, Credentials{Password: "right"}, newTemplate(header.CompressionNone), bytes.NewReader(xml), pipeline.Config{}, nil))

	src := memSource{data: sink.buf.Bytes()}
	_, err := Load(ctx, src, Credentials{Password: "wrong"}, pipeline.Config{}, nil)
	assert.Error(t, err)
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	ctx := context.Background()
	xml := []byte("<KeePassFile/>")

	sink := &memSink{}
	require.NoError(t, Store(ctx, sink, Credentials{Password: "right"}, newTemplate(header.CompressionNone), bytes.NewReader(xml), pipeline.Config{}, nil))

	truncated := sink.buf.Bytes()[:sink.buf.Len()-10]
	src := memSource{data: truncated}
	_, err := Load(ctx, src, Credentials{Password: "right"}, pipeline.Config{}, nil)
	assert.Error(t, err)
}

func TestStoreGeneratesEveryUnsetRandomField(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{Password: "correct horse battery staple"}
	xml := []byte("<KeePassFile><Root>hello world</Root></KeePassFile>")

	// A template with only the non-random fields set, exactly the
	// contract §4.7 describes: the caller never touches MasterSeed,
	// TransformSeed, EncryptionIV, ProtectedStreamKey, or
	// StreamStartBytes and still gets a storable, loadable file.
	tmpl := header.New()
	tmpl.TransformRounds = 200
	tmpl.InnerRandomStreamID = header.InnerStreamSalsa

	sink := &memSink{}
	require.NoError(t, Store(ctx, sink, creds, tmpl, bytes.NewReader(xml), pipeline.Config{}, nil))

	src := memSource{data: sink.buf.Bytes()}
	result, err := Load(ctx, src, creds, pipeline.Config{}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Header.TransformSeed, 32)
	assert.Len(t, result.Header.ProtectedStreamKey, 32)

	got := drain(t, result.XML)
	assert.Equal(t, xml, got)
}

func TestInnerStreamCipherRoundtrips(t *testing.T) {
	h := newTemplate(header.CompressionNone)

	masker, err := InnerStreamCipher(h)
	require.NoError(t, err)
	unmasker, err := InnerStreamCipher(h)
	require.NoError(t, err)

	protected := masker.Mask([]byte("a secret field"))
	got := unmasker.Unmask(protected)
	assert.Equal(t, "a secret field", string(got))
}
