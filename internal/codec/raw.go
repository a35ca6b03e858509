package codec

import (
	"fmt"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/codec"
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ codec.RowEncoder = (*RawEncoder)(nil)

// RawEncoder passes a pre-encoded record through verbatim. The record
// must carry a single string value; its UTF-8 bytes are the payload.
type RawEncoder struct{}

// NewRawEncoder creates a pass-through row encoder.
func NewRawEncoder() *RawEncoder {
	return &RawEncoder{}
}

// EncodeRow returns the record's single string value as UTF-8 bytes.
func (e *RawEncoder) EncodeRow(rec record.Record) ([]byte, error) {
	if rec.Len() != 1 {
		return nil, &errors.EncodeError{
			Format: record.FormatPassThrough,
			Reason: fmt.Sprintf("pass-through record has %d values, want 1", rec.Len()),
		}
	}
	s, err := rec.StringAt(0)
	if err != nil {
		return nil, &errors.EncodeError{
			Format: record.FormatPassThrough,
			Reason: "pass-through record must carry one string value",
			Err:    err,
		}
	}
	return []byte(s), nil
}

// Format returns the row format.
func (e *RawEncoder) Format() record.Format {
	return record.FormatPassThrough
}
