package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/codec"
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ codec.RowEncoder = (*JSONEncoder)(nil)

// JSONEncoder renders a record as one self-contained JSON document keyed
// by the schema's field names.
type JSONEncoder struct {
	schema *record.Schema
}

// NewJSONEncoder creates a JSON row encoder.
func NewJSONEncoder(schema *record.Schema) *JSONEncoder {
	return &JSONEncoder{schema: schema}
}

// EncodeRow serializes one record as a JSON object.
func (e *JSONEncoder) EncodeRow(rec record.Record) ([]byte, error) {
	if e.schema == nil {
		return nil, &errors.EncodeError{
			Format: record.FormatJSON,
			Reason: "json encoding requires a schema",
		}
	}
	if rec.Len() != e.schema.Len() {
		return nil, &errors.EncodeError{
			Format: record.FormatJSON,
			Reason: fmt.Sprintf("record has %d values, schema has %d fields", rec.Len(), e.schema.Len()),
		}
	}

	doc := make(map[string]any, e.schema.Len())
	for i, f := range e.schema.Fields {
		doc[f.Name] = jsonValue(rec.Values[i])
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, &errors.EncodeError{
			Format: record.FormatJSON,
			Reason: "marshal failed",
			Err:    err,
		}
	}
	return b, nil
}

// Format returns the row format.
func (e *JSONEncoder) Format() record.Format {
	return record.FormatJSON
}

// jsonValue converts a record value to its JSON representation.
// Timestamps become datetime literals and raw bytes become strings, so
// the document round-trips through the load endpoint's JSON parser.
func jsonValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(timestampLayout)
	case []byte:
		return string(val)
	default:
		return v
	}
}
