// Package block implements columnar block writers for the streaming reader.
//
// A block writer accumulates records and finalizes them into one
// self-describing byte blob: an Avro OCF container or a complete parquet
// file. Blocks carry their own framing, so the byte stream is just their
// concatenation.
package block

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/codec"
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ codec.BlockWriter = (*AvroWriter)(nil)

// AvroWriter finalizes record blocks as Avro OCF containers. Each blob
// is a full container: header with embedded schema, sync marker, body.
type AvroWriter struct {
	schema      *record.Schema
	codec       *goavro.Codec
	compression string
	rows        []any
	closed      bool
}

// NewAvroWriter creates an Avro block writer for the given schema.
// Supported compression: "null" (default), "deflate", "snappy".
func NewAvroWriter(schema *record.Schema, compression string) (*AvroWriter, error) {
	if schema == nil || schema.Len() == 0 {
		return nil, &errors.ConfigError{Field: "schema", Reason: "avro block writer requires a non-empty schema"}
	}

	avroJSON, err := avroSchemaJSON(schema)
	if err != nil {
		return nil, err
	}

	avroCodec, err := goavro.NewCodec(avroJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	switch compression {
	case "":
		compression = goavro.CompressionNullLabel
	case goavro.CompressionNullLabel, goavro.CompressionDeflateLabel, goavro.CompressionSnappyLabel:
	default:
		return nil, &errors.ConfigError{
			Field:  "avro.compression",
			Reason: fmt.Sprintf("unsupported codec: %s", compression),
		}
	}

	return &AvroWriter{
		schema:      schema,
		codec:       avroCodec,
		compression: compression,
	}, nil
}

// avroSchemaJSON builds the Avro record schema for a row schema.
func avroSchemaJSON(schema *record.Schema) (string, error) {
	fields := make([]map[string]any, 0, schema.Len())
	for _, f := range schema.Fields {
		avroType, err := avroType(f.Type)
		if err != nil {
			return "", &errors.ConfigError{Field: f.Name, Reason: err.Error()}
		}
		var typ any = avroType
		fieldDef := map[string]any{"name": f.Name, "type": typ}
		if f.Nullable {
			fieldDef["type"] = []any{"null", avroType}
			fieldDef["default"] = nil
		}
		fields = append(fields, fieldDef)
	}

	doc := map[string]any{
		"type":      "record",
		"name":      "Row",
		"namespace": "com.jittakal.rowload",
		"fields":    fields,
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal avro schema: %w", err)
	}
	return string(b), nil
}

// avroType maps a field type to its Avro schema type.
func avroType(t record.FieldType) (any, error) {
	switch t {
	case record.TypeBool:
		return "boolean", nil
	case record.TypeInt32:
		return "int", nil
	case record.TypeInt64:
		return "long", nil
	case record.TypeFloat64:
		return "double", nil
	case record.TypeString:
		return "string", nil
	case record.TypeBytes:
		return "bytes", nil
	case record.TypeTimestamp:
		return map[string]any{"type": "long", "logicalType": "timestamp-micros"}, nil
	default:
		return nil, fmt.Errorf("no avro mapping for field type %s", t)
	}
}

// Append converts one record to its Avro datum and buffers it.
func (w *AvroWriter) Append(rec record.Record) error {
	if w.closed {
		return errors.ErrReaderClosed
	}
	if rec.Len() != w.schema.Len() {
		return &errors.EncodeError{
			Format: record.FormatAvro,
			Reason: fmt.Sprintf("record has %d values, schema has %d fields", rec.Len(), w.schema.Len()),
		}
	}

	datum := make(map[string]any, w.schema.Len())
	for i, f := range w.schema.Fields {
		v, err := avroValue(f, rec.Values[i])
		if err != nil {
			return &errors.EncodeError{Format: record.FormatAvro, Reason: f.Name, Err: err}
		}
		datum[f.Name] = v
	}

	w.rows = append(w.rows, datum)
	return nil
}

// avroValue converts a record value for goavro, wrapping nullable
// non-nil values in their union branch.
func avroValue(f record.Field, v any) (any, error) {
	if v == nil {
		if !f.Nullable {
			return nil, fmt.Errorf("nil value for non-nullable field")
		}
		return nil, nil
	}
	if !record.ValidValue(f, v) {
		return nil, fmt.Errorf("value type %T does not match field type %s", v, f.Type)
	}

	var branch string
	var converted any = v
	switch f.Type {
	case record.TypeBool:
		branch = "boolean"
	case record.TypeInt32:
		branch = "int"
	case record.TypeInt64:
		branch = "long"
	case record.TypeFloat64:
		branch = "double"
	case record.TypeString:
		branch = "string"
	case record.TypeBytes:
		branch = "bytes"
	case record.TypeTimestamp:
		branch = "long.timestamp-micros"
		converted = v.(time.Time)
	}

	if f.Nullable {
		return map[string]any{branch: converted}, nil
	}
	return converted, nil
}

// Finalize frames the buffered records into one OCF container and resets
// the writer.
func (w *AvroWriter) Finalize() ([]byte, error) {
	if len(w.rows) == 0 {
		panic("block: Finalize called with no buffered records")
	}

	var buf bytes.Buffer
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               &buf,
		Codec:           w.codec,
		CompressionName: w.compression,
	})
	if err != nil {
		return nil, &errors.EncodeError{Format: record.FormatAvro, Reason: "failed to create OCF writer", Err: err}
	}

	if err := ocf.Append(w.rows); err != nil {
		return nil, &errors.EncodeError{Format: record.FormatAvro, Reason: "failed to append block rows", Err: err}
	}

	w.rows = w.rows[:0]
	return buf.Bytes(), nil
}

// Len returns the number of buffered records.
func (w *AvroWriter) Len() int {
	return len(w.rows)
}

// Format returns the columnar format.
func (w *AvroWriter) Format() record.Format {
	return record.FormatAvro
}

// Close discards buffered records.
func (w *AvroWriter) Close() error {
	w.rows = nil
	w.closed = true
	return nil
}
