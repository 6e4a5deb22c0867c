package kdbxcrypto

import (
	"compress/gzip"
	"io"

	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// GzipCompressor streams plaintext into gzip-compressed output. There is
// no third-party gzip implementation more appropriate than the standard
// library here: compress/gzip is itself the primitive being consumed
// (see DESIGN.md, pkg/kdbxcrypto).
type GzipCompressor struct {
	w *gzip.Writer
}

// NewGzipCompressor wraps w with a gzip writer.
func NewGzipCompressor(w io.Writer) *GzipCompressor {
	return &GzipCompressor{w: gzip.NewWriter(w)}
}

func (c *GzipCompressor) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, kdbxerr.Wrapf("GzipCompressor.Write", kdbxerr.ErrCompression, "%v", err)
	}
	return n, nil
}

func (c *GzipCompressor) Close() error {
	if err := c.w.Close(); err != nil {
		return kdbxerr.Wrapf("GzipCompressor.Close", kdbxerr.ErrCompression, "%v", err)
	}
	return nil
}

// GzipDecompressor streams gzip-compressed input back into plaintext.
type GzipDecompressor struct {
	r *gzip.Reader
}

// NewGzipDecompressor wraps r with a gzip reader. It fails immediately
// with ErrCompression if r does not begin with a valid gzip header.
func NewGzipDecompressor(r io.Reader) (*GzipDecompressor, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, kdbxerr.Wrapf("NewGzipDecompressor", kdbxerr.ErrCompression, "%v", err)
	}
	return &GzipDecompressor{r: gr}, nil
}

func (d *GzipDecompressor) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		return n, kdbxerr.Wrapf("GzipDecompressor.Read", kdbxerr.ErrCompression, "%v", err)
	}
	return n, err
}

func (d *GzipDecompressor) Close() error {
	if err := d.r.Close(); err != nil {
		return kdbxerr.Wrapf("GzipDecompressor.Close", kdbxerr.ErrCompression, "%v", err)
	}
	return nil
}
