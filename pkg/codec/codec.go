// Package codec defines interfaces for encoding records to wire bytes.
package codec

import "github.com/jittakal/rowload/pkg/record"

// RowEncoder encodes a single record into one payload line for a row
// format (csv, json, passthrough). The returned bytes exclude the record
// delimiter; the streaming reader owns delimiter placement.
type RowEncoder interface {
	// EncodeRow serializes one record.
	EncodeRow(rec record.Record) ([]byte, error)

	// Format returns the row format this encoder produces.
	Format() record.Format
}

// BlockWriter accumulates records into a columnar block and finalizes it
// into one self-framed byte blob. Implementations are not safe for
// concurrent use; the streaming reader drives them single-threaded.
type BlockWriter interface {
	// Append adds one record to the in-progress block.
	Append(rec record.Record) error

	// Finalize frames the accumulated records into a self-describing
	// blob and resets the writer for the next block. Finalizing an
	// empty block is a programming error and panics.
	Finalize() ([]byte, error)

	// Len returns the number of records in the in-progress block.
	Len() int

	// Format returns the columnar format this writer produces.
	Format() record.Format

	// Close releases builder resources. Pending records are discarded.
	Close() error
}
