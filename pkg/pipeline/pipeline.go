// Package pipeline runs a chain of byte-stream transforms as goroutines
// connected by bounded channels, so adjacent stages can be in flight on
// the same stream at once. pkg/kdbx runs block deframing and
// decompression this way; its header parse and outer decrypt are not
// stages and work on the whole file body held in memory. Grounded on the goroutine/channel worker patterns used
// throughout this corpus's concurrent code, generalized here into an
// explicit staged Chunk pipeline per the spec's Concurrency & Resource
// Model.
package pipeline

import (
	"context"
	"io"

	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// DefaultBufferSize is the channel capacity between stages when a
// Config does not override it.
const DefaultBufferSize = 4

// Chunk is the unit of data flowing between pipeline stages. Exactly one
// of Data, Err, or EOF applies to any given Chunk: a data chunk carries a
// non-nil Data slice, an error chunk carries Err and is always the last
// chunk sent, and the EOF chunk signals clean completion with neither
// Data nor Err set.
type Chunk struct {
	Data []byte
	Err  error
	EOF  bool
}

// Config controls pipeline resource usage.
type Config struct {
	// BufferSize is the channel capacity between adjacent stages. Zero
	// means DefaultBufferSize.
	BufferSize int
}

func (c Config) bufferSize() int {
	if c.BufferSize > 0 {
		return c.BufferSize
	}
	return DefaultBufferSize
}

// Stage transforms one chunk stream into another. Implementations must
// forward a final error or EOF chunk exactly once and then stop sending.
type Stage func(ctx context.Context, in <-chan Chunk, out chan<- Chunk)

// Run wires stages in sequence, starting one goroutine per stage, and
// returns the final stage's output channel. Cancelling ctx unblocks any
// stage parked on a full output channel; that stage sends a
// kdbxerr.ErrCancelled chunk downstream only if the channel has room for
// it, and otherwise just stops and closes its output.
func Run(ctx context.Context, cfg Config, source <-chan Chunk, stages ...Stage) <-chan Chunk {
	cur := source
	for _, stage := range stages {
		out := make(chan Chunk, cfg.bufferSize())
		go runStage(ctx, stage, cur, out)
		cur = out
	}
	return cur
}

func runStage(ctx context.Context, stage Stage, in <-chan Chunk, out chan<- Chunk) {
	defer close(out)
	stage(ctx, in, out)
}

// send delivers c on out, or abandons it and returns false if ctx is
// cancelled first.
func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		select {
		case out <- Chunk{Err: kdbxerr.Wrap("pipeline", kdbxerr.ErrCancelled)}:
		default:
		}
		return false
	}
}

// ReaderSource turns an io.Reader into a source channel of fixed-size
// Chunks, terminated by an EOF chunk, or an error chunk on read failure.
// The returned channel is closed once the terminal chunk has been sent.
func ReaderSource(ctx context.Context, r io.Reader, cfg Config, chunkSize int) <-chan Chunk {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	out := make(chan Chunk, cfg.bufferSize())
	go func() {
		defer close(out)
		buf := make([]byte, chunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				if !send(ctx, out, Chunk{Data: data}) {
					return
				}
			}
			if err == io.EOF {
				send(ctx, out, Chunk{EOF: true})
				return
			}
			if err != nil {
				send(ctx, out, Chunk{Err: kdbxerr.Wrap("pipeline.ReaderSource", err)})
				return
			}
		}
	}()
	return out
}

// WriterSink drains a chunk stream into w, returning the first error
// observed (either a transport error or a propagated upstream Chunk.Err).
// It stops consuming as soon as EOF or Err is observed.
func WriterSink(w io.Writer, in <-chan Chunk) error {
	for c := range in {
		if c.Err != nil {
			return c.Err
		}
		if c.EOF {
			return nil
		}
		if len(c.Data) == 0 {
			continue
		}
		if _, err := w.Write(c.Data); err != nil {
			return kdbxerr.Wrap("pipeline.WriterSink", err)
		}
	}
	return nil
}

// ChunkReader adapts a chunk stream back into an io.Reader, so pipeline
// stages can be composed with ordinary Go code (gzip.NewReader, a block
// framer, and so on) that expects the stdlib io interfaces rather than
// chunk channels.
type ChunkReader struct {
	in      <-chan Chunk
	pending []byte
	err     error
	eof     bool
}

// NewChunkReader wraps a chunk channel as an io.Reader.
func NewChunkReader(in <-chan Chunk) *ChunkReader {
	return &ChunkReader{in: in}
}

func (cr *ChunkReader) Read(p []byte) (int, error) {
	for len(cr.pending) == 0 {
		if cr.err != nil {
			return 0, cr.err
		}
		if cr.eof {
			return 0, io.EOF
		}
		c, ok := <-cr.in
		if !ok {
			cr.err = kdbxerr.Wrap("pipeline.ChunkReader", io.ErrUnexpectedEOF)
			return 0, cr.err
		}
		if c.Err != nil {
			cr.err = c.Err
			return 0, cr.err
		}
		if c.EOF {
			cr.eof = true
			continue
		}
		cr.pending = c.Data
	}
	n := copy(p, cr.pending)
	cr.pending = cr.pending[n:]
	return n, nil
}

// WriterStage returns a Stage that passes every chunk through fn(data)
// before forwarding it, useful for stateless byte-for-byte transforms
// like a stream cipher's XORKeyStream.
func WriterStage(fn func([]byte) ([]byte, error)) Stage {
	return func(ctx context.Context, in <-chan Chunk, out chan<- Chunk) {
		for c := range in {
			if c.Err != nil {
				send(ctx, out, c)
				return
			}
			if c.EOF {
				send(ctx, out, c)
				return
			}
			transformed, err := fn(c.Data)
			if err != nil {
				send(ctx, out, Chunk{Err: kdbxerr.Wrap("pipeline.WriterStage", err)})
				return
			}
			if !send(ctx, out, Chunk{Data: transformed}) {
				return
			}
		}
	}
}

// ReaderStage turns a function that wraps one io.Reader into another
// (gzip.NewReader, a block.Reader, ...) into a Stage, by bridging the
// input chunk channel through a ChunkReader and re-chunking the wrapped
// reader's output.
func ReaderStage(wrap func(io.Reader) (io.Reader, error), chunkSize int) Stage {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return func(ctx context.Context, in <-chan Chunk, out chan<- Chunk) {
		cr := NewChunkReader(in)
		wrapped, err := wrap(cr)
		if err != nil {
			send(ctx, out, Chunk{Err: kdbxerr.Wrap("pipeline.ReaderStage", err)})
			return
		}
		buf := make([]byte, chunkSize)
		for {
			n, err := wrapped.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				if !send(ctx, out, Chunk{Data: data}) {
					return
				}
			}
			if err == io.EOF {
				send(ctx, out, Chunk{EOF: true})
				return
			}
			if err != nil {
				send(ctx, out, Chunk{Err: kdbxerr.Wrap("pipeline.ReaderStage", err)})
				return
			}
		}
	}
}
