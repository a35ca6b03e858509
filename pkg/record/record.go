// Package record defines the row model shared by sources, encoders and
// the streaming reader.
//
// A Record is a positional tuple of Go values described by a Schema.
// The supported value types mirror what the wire formats can carry:
// bool, int32, int64, float64, string, []byte and time.Time, plus nil
// for NULL in nullable fields.
package record

import (
	"fmt"
	"time"
)

// NullCSV is the literal emitted for NULL values in delimited output.
const NullCSV = `\N`

// FieldType enumerates the supported column types.
type FieldType string

const (
	TypeBool      FieldType = "bool"
	TypeInt32     FieldType = "int32"
	TypeInt64     FieldType = "int64"
	TypeFloat64   FieldType = "float64"
	TypeString    FieldType = "string"
	TypeBytes     FieldType = "bytes"
	TypeTimestamp FieldType = "timestamp"
)

// Types returns all supported field types.
func Types() []FieldType {
	return []FieldType{
		TypeBool,
		TypeInt32,
		TypeInt64,
		TypeFloat64,
		TypeString,
		TypeBytes,
		TypeTimestamp,
	}
}

// Field describes one column of a schema.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Schema is an ordered list of fields. The order defines the positional
// layout of Record values.
type Schema struct {
	Fields []Field
}

// NewSchema creates a schema from the given fields.
func NewSchema(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.Fields)
}

// FieldIndex returns the index of the named field, or -1 if absent.
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Record is one row. Values are positional and must match the schema the
// record was built against.
type Record struct {
	Values []any
}

// New creates a record from the given values.
func New(values ...any) Record {
	return Record{Values: values}
}

// Len returns the number of values in the record.
func (r Record) Len() int {
	return len(r.Values)
}

// StringAt returns the value at index i as a string.
// It fails if the index is out of range or the value is not a string.
func (r Record) StringAt(i int) (string, error) {
	if i < 0 || i >= len(r.Values) {
		return "", fmt.Errorf("value index %d out of range (record has %d values)", i, len(r.Values))
	}
	s, ok := r.Values[i].(string)
	if !ok {
		return "", fmt.Errorf("value at index %d is %T, not string", i, r.Values[i])
	}
	return s, nil
}

// Format identifies the wire encoding a batch is streamed as.
type Format string

const (
	// Row formats: one encoded line per record, delimiter separated.
	FormatCSV         Format = "csv"
	FormatJSON        Format = "json"
	FormatPassThrough Format = "passthrough"

	// Columnar formats: records grouped into self-framed blocks.
	FormatAvro    Format = "avro"
	FormatParquet Format = "parquet"
)

// IsColumnar reports whether the format frames records into blocks
// instead of delimiter-separated lines.
func (f Format) IsColumnar() bool {
	return f == FormatAvro || f == FormatParquet
}

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatPassThrough, FormatAvro, FormatParquet:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format: %q", s)
	}
}

// ValidValue reports whether v is an acceptable Go value for the field.
func ValidValue(f Field, v any) bool {
	if v == nil {
		return f.Nullable
	}
	switch f.Type {
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeInt32:
		_, ok := v.(int32)
		return ok
	case TypeInt64:
		_, ok := v.(int64)
		return ok
	case TypeFloat64:
		_, ok := v.(float64)
		return ok
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBytes:
		_, ok := v.([]byte)
		return ok
	case TypeTimestamp:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}
