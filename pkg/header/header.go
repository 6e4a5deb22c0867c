// Package header codecs the KDBX v3 container header: the fixed
// signature and version words, followed by a TLV field list. Grounded on
// gokeepasslib's header.go field-id table and on the published KDBX 3
// format (signature magics and the AES-256-CBC cipher UUID are protocol
// constants, not implementation choices).
package header

import (
	"encoding/binary"
	"io"

	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// Signature magics identifying a KDBX container (vs. the legacy KDB
// format, which uses a different second word).
const (
	Signature1 uint32 = 0x9AA2D903
	Signature2 uint32 = 0xB54BFB67
)

// SupportedMajorVersion is the only major version this implementation
// parses; KDBX 4 (major version 4) uses a different HMAC framing and
// Argon2 KDF and is an explicit Non-goal.
const SupportedMajorVersion = 3

// FieldID enumerates the known KDBX v3 header TLV field ids.
type FieldID byte

const (
	FieldEndHeader           FieldID = 0
	FieldComment             FieldID = 1
	FieldCipherID            FieldID = 2
	FieldCompressionFlags    FieldID = 3
	FieldMasterSeed          FieldID = 4
	FieldTransformSeed       FieldID = 5
	FieldTransformRounds     FieldID = 6
	FieldEncryptionIV        FieldID = 7
	FieldProtectedStreamKey  FieldID = 8
	FieldStreamStartBytes    FieldID = 9
	FieldInnerRandomStreamID FieldID = 10
)

// canonicalFieldOrder is the order this implementation writes known
// fields in. The distilled spec's Open Question about canonical TLV
// ordering is resolved here: ascending id order, which is also what
// gokeepasslib's own encoder does and what mainstream KeePass 2.x readers
// accept regardless of order.
var canonicalFieldOrder = []FieldID{
	FieldComment,
	FieldCipherID,
	FieldCompressionFlags,
	FieldMasterSeed,
	FieldTransformSeed,
	FieldTransformRounds,
	FieldEncryptionIV,
	FieldProtectedStreamKey,
	FieldStreamStartBytes,
	FieldInnerRandomStreamID,
}

// CompressionFlag is the header's compression algorithm selector.
type CompressionFlag uint32

const (
	CompressionNone CompressionFlag = 0
	CompressionGzip CompressionFlag = 1
)

// InnerStreamID selects the inner-stream protection cipher.
type InnerStreamID uint32

const (
	InnerStreamNone  InnerStreamID = 0
	InnerStreamARC4  InnerStreamID = 1
	InnerStreamSalsa InnerStreamID = 2
)

// AESCBCCipherID is the 16-byte UUID KDBX v3 uses for its one defined
// cipher, AES-256-CBC.
var AESCBCCipherID = [16]byte{
	0x31, 0xC1, 0xF2, 0xE6, 0xBF, 0x71, 0x44, 0x36,
	0xA9, 0x67, 0x17, 0x0A, 0x55, 0x26, 0x54, 0xA8,
}

// unknownField preserves a TLV entry this implementation does not
// interpret, so round-tripping a file written by a newer minor-version
// tool does not silently drop fields the spec's invariant doesn't require
// dropping.
type unknownField struct {
	id    FieldID
	value []byte
}

// Header holds every KDBX v3 header field plus the length of the on-disk
// header image consumed by ReadFrom. The image bytes themselves are not
// kept: WriteTo re-serializes the fields in canonical order, so its output
// equals the original bytes only when the original used that order.
type Header struct {
	MinorVersion uint16
	MajorVersion uint16

	Comment             []byte
	CipherID            [16]byte
	CompressionFlags    CompressionFlag
	MasterSeed          []byte // 32 bytes
	TransformSeed       []byte // 32 bytes
	TransformRounds     uint64
	EncryptionIV        []byte // 16 bytes
	ProtectedStreamKey  []byte // 32 bytes, the inner-stream key
	StreamStartBytes    []byte // 32 bytes
	InnerRandomStreamID InnerStreamID

	unknown []unknownField

	// imageLength is the number of bytes consumed from the start of the
	// stream through (and including) the end-header terminator, recorded
	// by ReadFrom. It is the "header image" range the spec calls out as
	// retained for verification hooks and exact round-trip writing.
	imageLength int
}

// ImageLength reports how many bytes ReadFrom consumed for this header.
func (h *Header) ImageLength() int {
	return h.imageLength
}

// New returns a Header with version 3.1 and the only value KDBX v3 defines
// for CipherID pre-filled; every other field must be set or generated
// before writing.
func New() *Header {
	return &Header{
		MinorVersion: 1,
		MajorVersion: SupportedMajorVersion,
		CipherID:     AESCBCCipherID,
	}
}

// Validate reports kdbxerr.ErrMalformedHeader if any required KDBX v3
// field is missing, per the spec's Header invariant.
func (h *Header) Validate() error {
	switch {
	case len(h.MasterSeed) < 32:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "master seed missing or too short")
	case len(h.TransformSeed) != 32:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "transform seed must be 32 bytes")
	case h.TransformRounds == 0:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "transform rounds missing")
	case len(h.EncryptionIV) != 16:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "encryption iv must be 16 bytes")
	case len(h.ProtectedStreamKey) != 32:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "inner random stream key must be 32 bytes")
	case len(h.StreamStartBytes) != 32:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "stream start bytes must be 32 bytes")
	case h.InnerRandomStreamID != InnerStreamARC4 && h.InnerRandomStreamID != InnerStreamSalsa:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "unsupported inner random stream id %d", h.InnerRandomStreamID)
	case h.CipherID != AESCBCCipherID:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "unsupported cipher id")
	case h.CompressionFlags != CompressionNone && h.CompressionFlags != CompressionGzip:
		return kdbxerr.Wrapf("Header.Validate", kdbxerr.ErrMalformedHeader, "unsupported compression flag %d", h.CompressionFlags)
	}
	return nil
}

// countingReader tracks how many bytes have been read through it, so
// ReadFrom can record the header image length without requiring the
// underlying reader to support seeking.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFrom parses the KDBX signature, version, and TLV field list from r.
func (h *Header) ReadFrom(r io.Reader) error {
	cr := &countingReader{r: r}

	var sig1, sig2 uint32
	if err := binary.Read(cr, binary.LittleEndian, &sig1); err != nil {
		return kdbxerr.Wrap("Header.ReadFrom", err)
	}
	if err := binary.Read(cr, binary.LittleEndian, &sig2); err != nil {
		return kdbxerr.Wrap("Header.ReadFrom", err)
	}
	if sig1 != Signature1 || sig2 != Signature2 {
		return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrBadSignature)
	}

	if err := binary.Read(cr, binary.LittleEndian, &h.MinorVersion); err != nil {
		return kdbxerr.Wrap("Header.ReadFrom", err)
	}
	if err := binary.Read(cr, binary.LittleEndian, &h.MajorVersion); err != nil {
		return kdbxerr.Wrap("Header.ReadFrom", err)
	}
	if h.MajorVersion != SupportedMajorVersion {
		return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrUnsupportedVersion)
	}

	for {
		var id byte
		if err := binary.Read(cr, binary.LittleEndian, &id); err != nil {
			return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrMalformedHeader)
		}
		var length uint16
		if err := binary.Read(cr, binary.LittleEndian, &length); err != nil {
			return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrMalformedHeader)
		}
		value, err := readFull(cr, int(length))
		if err != nil {
			return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrMalformedHeader)
		}

		switch FieldID(id) {
		case FieldEndHeader:
			h.imageLength = cr.n
			return nil
		case FieldComment:
			h.Comment = value
		case FieldCipherID:
			if len(value) != 16 {
				return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrMalformedHeader)
			}
			copy(h.CipherID[:], value)
		case FieldCompressionFlags:
			if len(value) != 4 {
				return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrMalformedHeader)
			}
			h.CompressionFlags = CompressionFlag(binary.LittleEndian.Uint32(value))
		case FieldMasterSeed:
			h.MasterSeed = value
		case FieldTransformSeed:
			h.TransformSeed = value
		case FieldTransformRounds:
			if len(value) != 8 {
				return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrMalformedHeader)
			}
			h.TransformRounds = binary.LittleEndian.Uint64(value)
		case FieldEncryptionIV:
			h.EncryptionIV = value
		case FieldProtectedStreamKey:
			h.ProtectedStreamKey = value
		case FieldStreamStartBytes:
			h.StreamStartBytes = value
		case FieldInnerRandomStreamID:
			if len(value) != 4 {
				return kdbxerr.Wrap("Header.ReadFrom", kdbxerr.ErrMalformedHeader)
			}
			h.InnerRandomStreamID = InnerStreamID(binary.LittleEndian.Uint32(value))
		default:
			h.unknown = append(h.unknown, unknownField{id: FieldID(id), value: value})
		}
	}
}

// WriteTo serializes the header as signature, version, and TLV fields in
// canonical id order, followed by the end-header terminator. Unknown
// fields captured on read are re-emitted after the known ones, preserving
// their relative order among themselves.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	write := func(v interface{}) {
		if cw.err != nil {
			return
		}
		cw.err = binary.Write(cw, binary.LittleEndian, v)
	}

	write(Signature1)
	write(Signature2)
	write(h.MinorVersion)
	write(h.MajorVersion)

	writeField := func(id FieldID, value []byte) {
		if cw.err != nil {
			return
		}
		write(byte(id))
		write(uint16(len(value)))
		if cw.err != nil {
			return
		}
		_, cw.err = cw.Write(value)
	}

	for _, id := range canonicalFieldOrder {
		switch id {
		case FieldComment:
			if len(h.Comment) > 0 {
				writeField(id, h.Comment)
			}
		case FieldCipherID:
			writeField(id, h.CipherID[:])
		case FieldCompressionFlags:
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(h.CompressionFlags))
			writeField(id, buf)
		case FieldMasterSeed:
			writeField(id, h.MasterSeed)
		case FieldTransformSeed:
			writeField(id, h.TransformSeed)
		case FieldTransformRounds:
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, h.TransformRounds)
			writeField(id, buf)
		case FieldEncryptionIV:
			writeField(id, h.EncryptionIV)
		case FieldProtectedStreamKey:
			writeField(id, h.ProtectedStreamKey)
		case FieldStreamStartBytes:
			writeField(id, h.StreamStartBytes)
		case FieldInnerRandomStreamID:
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(h.InnerRandomStreamID))
			writeField(id, buf)
		}
	}

	for _, u := range h.unknown {
		writeField(u.id, u.value)
	}

	writeField(FieldEndHeader, nil)

	if cw.err != nil {
		return cw.n, kdbxerr.Wrap("Header.WriteTo", cw.err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil {
		c.err = err
	}
	return n, err
}
