package block

import (
	"fmt"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/codec"
	"github.com/jittakal/rowload/pkg/record"
)

// NewBlockWriter creates the block writer for a columnar format.
func NewBlockWriter(format record.Format, schema *record.Schema, compression string) (codec.BlockWriter, error) {
	switch format {
	case record.FormatAvro:
		return NewAvroWriter(schema, compression)
	case record.FormatParquet:
		return NewParquetWriter(schema, compression)
	default:
		return nil, &errors.ConfigError{
			Field:  "format",
			Reason: fmt.Sprintf("unsupported columnar format: %s", format),
		}
	}
}

// SupportedFormats returns the columnar formats this package writes.
func SupportedFormats() []record.Format {
	return []record.Format{
		record.FormatAvro,
		record.FormatParquet,
	}
}
