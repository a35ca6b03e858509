package stream

import (
	"io"

	"github.com/jittakal/rowload/internal/block"
	"github.com/jittakal/rowload/internal/codec"
	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/batch"
	pkgcodec "github.com/jittakal/rowload/pkg/codec"
)

// Ensure implementation satisfies interface at compile time.
var _ io.ReadCloser = (*Reader)(nil)

// readState tracks which buffer the next read serves.
type readState int

const (
	// stateRefill: both buffers are drained; pull from the source next.
	stateRefill readState = iota
	// stateDelim: pending delimiter bytes precede the staged line.
	stateDelim
	// stateLine: serving the staged payload bytes.
	stateLine
	// stateExhausted: the source is drained; every read is io.EOF.
	stateExhausted
)

// Options carries encoding knobs resolved at construction.
type Options struct {
	// ColumnSeparator separates fields within one CSV line.
	ColumnSeparator []byte

	// Quote wraps every CSV field in double quotes.
	Quote bool

	// Compression names the block compression codec for columnar
	// formats. Empty selects the format's default.
	Compression string

	// OnBlock, if set, runs after each columnar block is finalized with
	// the record count and framed size of that block.
	OnBlock func(records, bytes int)
}

// Reader streams a batch source as bytes. See the package documentation
// for the byte contract and lifecycle rules.
type Reader struct {
	src  batch.Source
	opts Options

	// Encoding strategy, resolved lazily on the first refill so that an
	// unsupported format surfaces as a read error before any record is
	// consumed. Exactly one of rowEnc/blockw is set afterwards.
	rowEnc   pkgcodec.RowEncoder
	blockw   pkgcodec.BlockWriter
	resolved bool

	state    readState
	line     []byte
	lineOff  int
	delim    []byte
	delimOff int

	first    bool
	released bool
	closed   bool
}

// NewReader creates a reader over the given source. The source's format,
// delimiter and block size are fixed for the reader's lifetime.
func NewReader(src batch.Source, opts Options) *Reader {
	return &Reader{
		src:   src,
		opts:  opts,
		state: stateRefill,
		first: true,
	}
}

// Read serves up to len(p) bytes of the stream. It drains pending
// delimiter bytes first, then the staged line, and pulls from the source
// only when both are exhausted. Returns io.EOF exactly when no more
// bytes will ever be produced.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.ErrReaderClosed
	}
	if len(p) == 0 {
		if r.state == stateExhausted {
			return 0, io.EOF
		}
		return 0, nil
	}

	for {
		switch r.state {
		case stateExhausted:
			return 0, io.EOF

		case stateDelim:
			if r.delimOff < len(r.delim) {
				n := copy(p, r.delim[r.delimOff:])
				r.delimOff += n
				if r.delimOff == len(r.delim) {
					r.state = stateLine
				}
				return n, nil
			}
			r.state = stateLine

		case stateLine:
			if r.lineOff < len(r.line) {
				n := copy(p, r.line[r.lineOff:])
				r.lineOff += n
				if r.lineOff == len(r.line) {
					r.state = stateRefill
				}
				return n, nil
			}
			r.state = stateRefill

		case stateRefill:
			if err := r.refill(); err != nil {
				return 0, err
			}
		}
	}
}

// refill stages the next unit of work: one encoded record for row
// formats, one finalized block for columnar formats. On source
// exhaustion it transitions to stateExhausted and fires the release
// hook.
func (r *Reader) refill() error {
	if !r.resolved {
		if err := r.resolve(); err != nil {
			return err
		}
	}

	if !r.src.HasNext() {
		r.finish()
		return nil
	}

	if r.blockw != nil {
		return r.refillBlock()
	}
	return r.refillRow()
}

// refillRow pulls exactly one record and stages delimiter + payload.
// The delimiter is suppressed before the very first record, producing a
// stream with no leading and no trailing separator.
func (r *Reader) refillRow() error {
	rec, err := r.src.Next()
	if err != nil {
		return err
	}

	line, err := r.rowEnc.EncodeRow(rec)
	if err != nil {
		return err
	}

	r.line = line
	r.lineOff = 0
	if r.first {
		r.first = false
		r.delim = nil
		r.state = stateLine
		return nil
	}
	r.delim = r.src.Delimiter()
	r.delimOff = 0
	r.state = stateDelim
	return nil
}

// refillBlock accumulates records up to the source's block threshold or
// its exhaustion, then stages the finalized self-framed blob. Blocks are
// not delimiter separated.
func (r *Reader) refillBlock() error {
	threshold := r.src.BlockSize()
	if threshold <= 0 {
		threshold = batch.DefaultBlockSize
	}

	for r.src.HasNext() && r.blockw.Len() < threshold {
		rec, err := r.src.Next()
		if err != nil {
			return err
		}
		if err := r.blockw.Append(rec); err != nil {
			return err
		}
	}

	count := r.blockw.Len()
	blob, err := r.blockw.Finalize()
	if err != nil {
		return err
	}
	if r.opts.OnBlock != nil {
		r.opts.OnBlock(count, len(blob))
	}

	r.first = false
	r.delim = nil
	r.line = blob
	r.lineOff = 0
	r.state = stateLine
	return nil
}

// resolve selects the encoding strategy for the source's format.
func (r *Reader) resolve() error {
	format := r.src.Format()
	if format.IsColumnar() {
		w, err := block.NewBlockWriter(format, r.src.Schema(), r.opts.Compression)
		if err != nil {
			return err
		}
		r.blockw = w
	} else {
		enc, err := codec.NewRowEncoder(format, r.src.Schema(), codec.Options{
			ColumnSeparator: r.opts.ColumnSeparator,
			Quote:           r.opts.Quote,
		})
		if err != nil {
			return err
		}
		r.rowEnc = enc
	}
	r.resolved = true
	return nil
}

// finish records end-of-stream and releases the source exactly once.
func (r *Reader) finish() {
	r.state = stateExhausted
	r.line = nil
	r.delim = nil
	if r.blockw != nil {
		r.blockw.Close()
	}
	r.release()
}

// release fires the source's release hook at most once.
func (r *Reader) release() {
	if r.released {
		return
	}
	r.released = true
	r.src.Release()
}

// Close abandons the stream. Block writer resources are released and the
// source's release hook fires if it has not already. Reads after Close
// fail.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.blockw != nil {
		r.blockw.Close()
	}
	r.release()
	return nil
}
