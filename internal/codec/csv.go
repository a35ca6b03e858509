// Package codec implements row encoders for the supported row formats.
package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/codec"
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ codec.RowEncoder = (*CSVEncoder)(nil)

// timestampLayout is the datetime literal layout OLAP load endpoints accept.
const timestampLayout = "2006-01-02 15:04:05.000000"

// CSVEncoder renders a record as one delimited line. Fields follow schema
// order, NULL becomes record.NullCSV, and fields are optionally wrapped
// in double quotes.
type CSVEncoder struct {
	schema    *record.Schema
	separator []byte
	quote     bool
}

// NewCSVEncoder creates a CSV row encoder.
func NewCSVEncoder(schema *record.Schema, separator []byte, quote bool) *CSVEncoder {
	if len(separator) == 0 {
		separator = []byte(",")
	}
	return &CSVEncoder{schema: schema, separator: separator, quote: quote}
}

// EncodeRow serializes one record as a delimited line.
func (e *CSVEncoder) EncodeRow(rec record.Record) ([]byte, error) {
	if e.schema != nil && rec.Len() != e.schema.Len() {
		return nil, &errors.EncodeError{
			Format: record.FormatCSV,
			Reason: fmt.Sprintf("record has %d values, schema has %d fields", rec.Len(), e.schema.Len()),
		}
	}

	var buf bytes.Buffer
	for i, v := range rec.Values {
		if i > 0 {
			buf.Write(e.separator)
		}
		field, err := formatValue(v)
		if err != nil {
			return nil, &errors.EncodeError{
				Format: record.FormatCSV,
				Reason: fmt.Sprintf("field %d", i),
				Err:    err,
			}
		}
		if e.quote {
			buf.WriteByte('"')
			buf.WriteString(field)
			buf.WriteByte('"')
		} else {
			buf.WriteString(field)
		}
	}
	return buf.Bytes(), nil
}

// Format returns the row format.
func (e *CSVEncoder) Format() record.Format {
	return record.FormatCSV
}

// formatValue renders one value as its delimited-text literal.
func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return record.NullCSV, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case time.Time:
		return val.UTC().Format(timestampLayout), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
