package codec

import (
	"fmt"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/codec"
	"github.com/jittakal/rowload/pkg/record"
)

// Options carries format-specific encoding knobs that are not part of
// the batch source contract.
type Options struct {
	// ColumnSeparator separates fields within one CSV line. Distinct
	// from the record delimiter between lines.
	ColumnSeparator []byte

	// Quote wraps every CSV field in double quotes.
	Quote bool
}

// NewRowEncoder creates the row encoder for a format.
// Columnar formats have no row encoder; asking for one is a config error.
func NewRowEncoder(format record.Format, schema *record.Schema, opts Options) (codec.RowEncoder, error) {
	switch format {
	case record.FormatCSV:
		return NewCSVEncoder(schema, opts.ColumnSeparator, opts.Quote), nil
	case record.FormatJSON:
		return NewJSONEncoder(schema), nil
	case record.FormatPassThrough:
		return NewRawEncoder(), nil
	default:
		return nil, &errors.ConfigError{
			Field:  "format",
			Reason: fmt.Sprintf("unsupported row format: %s", format),
		}
	}
}

// SupportedRowFormats returns the row formats this package encodes.
func SupportedRowFormats() []record.Format {
	return []record.Format{
		record.FormatCSV,
		record.FormatJSON,
		record.FormatPassThrough,
	}
}
