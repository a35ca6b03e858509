// Package batch defines the row batch source consumed by the streaming reader.
//
// A Source hands out the records of one load attempt, one at a time,
// together with the wire format and framing parameters the batch should
// be streamed as. Sources are single-consumer: the reader draining a
// source owns it exclusively for the source's lifetime.
package batch

import (
	"github.com/jittakal/rowload/pkg/record"
)

// DefaultBlockSize is the record count threshold for columnar blocks when
// the source does not declare one.
const DefaultBlockSize = 1000

// Source supplies a lazy sequence of records for one load attempt.
type Source interface {
	// HasNext reports whether another record is available.
	HasNext() bool

	// Next returns the next record. Calling Next when HasNext is false
	// is a programming error and panics. Iterator failures are returned
	// as *errors.SourceError.
	Next() (record.Record, error)

	// Schema describes the positional layout of the records.
	Schema() *record.Schema

	// Format is the wire encoding the batch is streamed as.
	Format() record.Format

	// Delimiter returns the record separator for row formats.
	Delimiter() []byte

	// BlockSize returns the record count threshold for columnar blocks.
	BlockSize() int

	// Release signals that the batch has been fully drained or abandoned,
	// so the source can free whatever backs the iterator. The reader
	// calls it exactly once per source.
	Release()
}
