package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSourceThenWriterSinkRoundtrips(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("abcdefgh"), 1000)
	src := ReaderSource(ctx, bytes.NewReader(payload), Config{}, 17)

	var out bytes.Buffer
	require.NoError(t, WriterSink(&out, src))
	assert.Equal(t, payload, out.Bytes())
}

func TestRunChainsStages(t *testing.T) {
	ctx := context.Background()
	payload := []byte("hello pipeline")
	src := ReaderSource(ctx, bytes.NewReader(payload), Config{}, 4)

	upper := WriterStage(func(data []byte) ([]byte, error) {
		out := make([]byte, len(data))
		for i, b := range data {
			if b >= 'a' && b <= 'z' {
				b -= 'a' - 'A'
			}
			out[i] = b
		}
		return out, nil
	})

	final := Run(ctx, Config{}, src, upper)

	var out bytes.Buffer
	require.NoError(t, WriterSink(&out, final))
	assert.Equal(t, "HELLO PIPELINE", out.String())
}

func TestWriterSinkPropagatesStageError(t *testing.T) {
	ctx := context.Background()
	payload := []byte("data")
	src := ReaderSource(ctx, bytes.NewReader(payload), Config{}, 4)

	boom := errors.New("boom")
	failing := WriterStage(func([]byte) ([]byte, error) {
		return nil, boom
	})

	final := Run(ctx, Config{}, src, failing)

	var out bytes.Buffer
	err := WriterSink(&out, final)
	assert.Error(t, err)
}

func TestReaderStageWrapsGzip(t *testing.T) {
	ctx := context.Background()
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write([]byte("compressed payload"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	src := ReaderSource(ctx, bytes.NewReader(compressed.Bytes()), Config{}, 8)
	gunzip := ReaderStage(func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	}, 8)

	final := Run(ctx, Config{}, src, gunzip)

	var out bytes.Buffer
	require.NoError(t, WriterSink(&out, final))
	assert.Equal(t, "compressed payload", out.String())
}

func TestChunkReaderSurfacesUpstreamError(t *testing.T) {
	in := make(chan Chunk, 1)
	in <- Chunk{Err: errors.New("upstream failed")}
	close(in)

	cr := NewChunkReader(in)
	_, err := io.ReadAll(cr)
	assert.Error(t, err)
}
