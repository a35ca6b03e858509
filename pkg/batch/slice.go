package batch

import (
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ Source = (*SliceSource)(nil)

// SliceSource is a Source over an in-memory record slice. It backs both
// tests and the drain path of the row buffer, where a flushed batch is
// already materialized.
type SliceSource struct {
	records   []record.Record
	pos       int
	schema    *record.Schema
	format    record.Format
	delim     []byte
	blockSize int
	released  bool
	onRelease func()
}

// SliceSourceConfig configures a SliceSource.
type SliceSourceConfig struct {
	Schema    *record.Schema
	Format    record.Format
	Delimiter []byte
	BlockSize int

	// OnRelease, if set, runs when the source is released. Used to ack
	// upstream offsets once the batch has been drained.
	OnRelease func()
}

// NewSliceSource creates a source over the given records. The slice is
// not copied; the caller must not mutate it while the source is live.
func NewSliceSource(records []record.Record, cfg SliceSourceConfig) *SliceSource {
	delim := cfg.Delimiter
	if len(delim) == 0 {
		delim = []byte("\n")
	}
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &SliceSource{
		records:   records,
		schema:    cfg.Schema,
		format:    cfg.Format,
		delim:     delim,
		blockSize: blockSize,
		onRelease: cfg.OnRelease,
	}
}

// HasNext reports whether another record is available.
func (s *SliceSource) HasNext() bool {
	return s.pos < len(s.records)
}

// Next returns the next record.
func (s *SliceSource) Next() (record.Record, error) {
	if s.pos >= len(s.records) {
		panic("batch: Next called with no record available")
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// Schema returns the record schema.
func (s *SliceSource) Schema() *record.Schema {
	return s.schema
}

// Format returns the wire encoding of the batch.
func (s *SliceSource) Format() record.Format {
	return s.format
}

// Delimiter returns the record separator.
func (s *SliceSource) Delimiter() []byte {
	return s.delim
}

// BlockSize returns the columnar block threshold.
func (s *SliceSource) BlockSize() int {
	return s.blockSize
}

// Release frees the record slice and fires the release hook once.
func (s *SliceSource) Release() {
	if s.released {
		return
	}
	s.released = true
	s.records = nil
	if s.onRelease != nil {
		s.onRelease()
	}
}

// Released reports whether Release has been called.
func (s *SliceSource) Released() bool {
	return s.released
}
