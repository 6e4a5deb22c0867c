// Package kdbx orchestrates the full KDBX v3 read and write pipelines:
// deriving the master key from credentials and the container header,
// running the outer AES-256-CBC decrypt/encrypt, and chaining the
// hashed-block framer and optional gzip stage to produce or consume the
// decrypted XML byte stream. Grounded on gokeepasslib's database.go
// top-level Decode/Encode flow, re-expressed as the streaming Source/Sink
// and Chunk-pipeline architecture this repo's design notes call for.
package kdbx

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/mohae/deepcopy"
	"github.com/spectralops/kdbxpipe/pkg/block"
	"github.com/spectralops/kdbxpipe/pkg/compositekey"
	"github.com/spectralops/kdbxpipe/pkg/header"
	"github.com/spectralops/kdbxpipe/pkg/innerstream"
	"github.com/spectralops/kdbxpipe/pkg/kdbxcrypto"
	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
	"github.com/spectralops/kdbxpipe/pkg/logging"
	"github.com/spectralops/kdbxpipe/pkg/pipeline"
	"github.com/spectralops/kdbxpipe/pkg/safemem"
)

// Source opens a readable handle to a KDBX container. LocalFileSource is
// the only built-in implementation; callers may supply their own to read
// from other transports.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Sink opens a writable handle to store a KDBX container into.
type Sink interface {
	Create() (io.WriteCloser, error)
}

// LocalFileSource reads a KDBX container from a path on the local
// filesystem.
type LocalFileSource struct {
	Path string
}

// Open implements Source.
func (s LocalFileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, kdbxerr.Wrap("LocalFileSource.Open", err)
	}
	return f, nil
}

// LocalFileSink writes a KDBX container to a path on the local
// filesystem, truncating or creating it as needed.
type LocalFileSink struct {
	Path string
	Perm os.FileMode
}

// Create implements Sink.
func (s LocalFileSink) Create() (io.WriteCloser, error) {
	perm := s.Perm
	if perm == 0 {
		perm = 0o600
	}
	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, kdbxerr.Wrap("LocalFileSink.Create", err)
	}
	return f, nil
}

// Credentials names the factors used to derive the composite key, in the
// order gokeepasslib's DBCredentials applies them: password, then key
// file contents.
type Credentials struct {
	Password    string
	KeyFileData []byte
}

func (c Credentials) composite() (*safemem.Buffer, error) {
	b := compositekey.NewBuilder()
	if c.Password != "" {
		if err := b.Add(compositekey.FactorFromPassword(c.Password)); err != nil {
			return nil, kdbxerr.Wrap("Credentials.composite", err)
		}
	}
	if len(c.KeyFileData) > 0 {
		factor, err := compositekey.FactorFromKeyFileData(c.KeyFileData)
		if err != nil {
			return nil, kdbxerr.Wrap("Credentials.composite", err)
		}
		if err := b.Add(factor); err != nil {
			return nil, kdbxerr.Wrap("Credentials.composite", err)
		}
	}
	sealed, err := b.Seal()
	if err != nil {
		return nil, kdbxerr.Wrap("Credentials.composite", err)
	}
	return safemem.FromBytes(sealed, nil), nil
}

// Result carries the parsed header and a channel streaming the decrypted,
// deframed, and decompressed XML payload.
type Result struct {
	Header *header.Header
	XML    <-chan pipeline.Chunk
}

// Load opens source, authenticates credentials against it, and returns
// the parsed header plus a chunk stream of the decrypted inner XML
// document. The outer AES-256-CBC decrypt runs as a single pass over the
// body (CBC chaining requires the whole ciphertext in sequence), after
// which block deframing and optional decompression run as pipeline
// stages so the caller can start consuming XML before the whole document
// has been deframed.
func Load(ctx context.Context, source Source, creds Credentials, cfg pipeline.Config, logger logging.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.New()
	}

	rc, err := source.Open()
	if err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}

	h := &header.Header{}
	headerReader := bytes.NewReader(body)
	if err := h.ReadFrom(headerReader); err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}
	if err := h.Validate(); err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}
	ciphertext := body[h.ImageLength():]

	composite, err := creds.composite()
	if err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}
	defer composite.Release()

	transformed, err := compositekey.Transform(composite.Bytes(), h.TransformSeed, h.TransformRounds)
	if err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}
	masterKeyBuf := safemem.FromBytes(compositekey.MasterKey(h.MasterSeed, transformed), logger)
	defer masterKeyBuf.Release()

	aesCBC, err := kdbxcrypto.NewAESCBC(masterKeyBuf.Bytes(), h.EncryptionIV)
	if err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}
	plaintext, err := aesCBC.Decrypt(ciphertext)
	if err != nil {
		return nil, kdbxerr.Wrap("kdbx.Load", err)
	}
	plainBuf := safemem.FromBytes(plaintext, logger)

	if len(plainBuf.Bytes()) < len(h.StreamStartBytes) ||
		!bytes.Equal(plainBuf.Bytes()[:len(h.StreamStartBytes)], h.StreamStartBytes) {
		plainBuf.Release()
		return nil, kdbxerr.Wrap("kdbx.Load", kdbxerr.ErrBadPassword)
	}
	framed := plainBuf.Bytes()[len(h.StreamStartBytes):]

	src := pipeline.ReaderSource(ctx, bytes.NewReader(framed), cfg, 32*1024)
	stages := []pipeline.Stage{
		pipeline.ReaderStage(func(r io.Reader) (io.Reader, error) {
			return block.NewReader(r), nil
		}, 32*1024),
	}
	if h.CompressionFlags == header.CompressionGzip {
		stages = append(stages, pipeline.ReaderStage(func(r io.Reader) (io.Reader, error) {
			return kdbxcrypto.NewGzipDecompressor(r)
		}, 32*1024))
	}
	final := pipeline.Run(ctx, cfg, src, stages...)

	return &Result{Header: h, XML: final}, nil
}

// Store derives a fresh master key from creds and headerTemplate,
// compresses (if requested) and frames xml, outer-encrypts the result,
// and writes the full container to sink. Per §4.7, any of the five
// random header fields (MasterSeed, TransformSeed, EncryptionIV,
// ProtectedStreamKey, StreamStartBytes) the caller left unset are
// generated fresh through kdbxcrypto.DefaultRandom; fields the caller
// did set pass through unchanged, so storing the same plaintext twice
// with a fully-specified template never silently reuses a seed the
// caller expected to control, while a caller relying on the generated
// defaults never reuses one by omission either.
func Store(ctx context.Context, sink Sink, creds Credentials, headerTemplate *header.Header, xml io.Reader, cfg pipeline.Config, logger logging.Logger) error {
	if logger == nil {
		logger = logging.New()
	}

	// Deep-copy the template so repeated Store calls sharing one
	// *header.Header (e.g. a caller storing several databases with the
	// same cipher/KDF settings) never alias each other's generated seeds
	// or mutate the caller's copy.
	h := *(deepcopy.Copy(headerTemplate).(*header.Header))
	randomFields := []struct {
		buf  *[]byte
		size int
	}{
		{&h.MasterSeed, 32},
		{&h.TransformSeed, 32},
		{&h.EncryptionIV, 16},
		{&h.ProtectedStreamKey, 32},
		{&h.StreamStartBytes, 32},
	}
	for _, f := range randomFields {
		if len(*f.buf) != 0 {
			continue
		}
		*f.buf = make([]byte, f.size)
		if err := kdbxcrypto.DefaultRandom.Fill(*f.buf); err != nil {
			return kdbxerr.Wrap("kdbx.Store", err)
		}
	}

	var framedBuf bytes.Buffer
	bw := block.NewWriter(&framedBuf)

	var compressed io.Writer = bw
	var gz *kdbxcrypto.GzipCompressor
	if h.CompressionFlags == header.CompressionGzip {
		gz = kdbxcrypto.NewGzipCompressor(bw)
		compressed = gz
	}

	if _, err := io.Copy(compressed, xml); err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return kdbxerr.Wrap("kdbx.Store", kdbxerr.ErrCompression)
		}
	}
	if err := bw.Close(); err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}

	plain := append(append([]byte{}, h.StreamStartBytes...), framedBuf.Bytes()...)
	plainBuf := safemem.FromBytes(plain, logger)
	defer plainBuf.Release()

	composite, err := creds.composite()
	if err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}
	defer composite.Release()

	transformed, err := compositekey.Transform(composite.Bytes(), h.TransformSeed, h.TransformRounds)
	if err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}
	masterKeyBuf := safemem.FromBytes(compositekey.MasterKey(h.MasterSeed, transformed), logger)
	defer masterKeyBuf.Release()

	aesCBC, err := kdbxcrypto.NewAESCBC(masterKeyBuf.Bytes(), h.EncryptionIV)
	if err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}
	ciphertext, err := aesCBC.Encrypt(plainBuf.Bytes())
	if err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}

	w, err := sink.Create()
	if err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}
	defer w.Close()

	if _, err := h.WriteTo(w); err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}
	if _, err := w.Write(ciphertext); err != nil {
		return kdbxerr.Wrap("kdbx.Store", err)
	}
	return nil
}

// InnerStreamCipher builds the protected-field cipher for h from the
// header's raw ProtectedStreamKey field: the Salsa20 adapter keys itself
// with SHA-256 of that field, the way gokeepasslib's StreamManager does,
// while the ARC4 adapter uses the field as-is (see innerstream.New /
// kdbxcrypto's Salsa20/ARC4 adapters).
func InnerStreamCipher(h *header.Header) (*innerstream.ProtectedFieldCipher, error) {
	cipher, err := innerstream.New(h.InnerRandomStreamID, h.ProtectedStreamKey)
	if err != nil {
		return nil, kdbxerr.Wrap("kdbx.InnerStreamCipher", err)
	}
	return innerstream.NewProtectedFieldCipher(cipher), nil
}
