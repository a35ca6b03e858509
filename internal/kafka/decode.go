package kafka

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/record"
)

// timestampLayouts are tried in order when decoding timestamp fields
// from JSON strings.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
}

// RowDecoder decodes Kafka message values into rows for a fixed schema.
//
// Messages are JSON objects keyed by field name. In passthrough mode the
// raw message value becomes the row's single string field without being
// parsed.
type RowDecoder struct {
	schema      *record.Schema
	passthrough bool
}

// NewRowDecoder creates a decoder for the given schema. Passthrough
// requires a single-string-field schema.
func NewRowDecoder(schema *record.Schema, format record.Format) (*RowDecoder, error) {
	if schema == nil || schema.Len() == 0 {
		return nil, &errors.ConfigError{Field: "schema", Reason: "schema is required"}
	}
	passthrough := format == record.FormatPassThrough
	if passthrough {
		if schema.Len() != 1 || schema.Fields[0].Type != record.TypeString {
			return nil, &errors.ConfigError{
				Field:  "schema",
				Reason: "passthrough requires a schema with exactly one string field",
			}
		}
	}
	return &RowDecoder{schema: schema, passthrough: passthrough}, nil
}

// Decode converts one Kafka message value into a row.
func (d *RowDecoder) Decode(value []byte) (record.Record, error) {
	if d.passthrough {
		return record.New(string(value)), nil
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return record.Record{}, &errors.ValidationError{Field: "message", Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	values := make([]any, d.schema.Len())
	for i, field := range d.schema.Fields {
		raw, ok := obj[field.Name]
		if !ok || raw == nil {
			if !field.Nullable {
				return record.Record{}, &errors.ValidationError{Field: field.Name, Reason: "missing value for non-nullable field"}
			}
			values[i] = nil
			continue
		}

		v, err := decodeValue(field, raw)
		if err != nil {
			return record.Record{}, err
		}
		values[i] = v
	}

	return record.Record{Values: values}, nil
}

// decodeValue converts one JSON value to the field's Go representation.
func decodeValue(field record.Field, raw any) (any, error) {
	switch field.Type {
	case record.TypeBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}

	case record.TypeInt32:
		if n, ok := raw.(json.Number); ok {
			i, err := n.Int64()
			if err == nil && i >= -1<<31 && i < 1<<31 {
				return int32(i), nil
			}
		}

	case record.TypeInt64:
		if n, ok := raw.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		}

	case record.TypeFloat64:
		if n, ok := raw.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		}

	case record.TypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}

	case record.TypeBytes:
		if s, ok := raw.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err == nil {
				return b, nil
			}
			return nil, &errors.ValidationError{Field: field.Name, Reason: "bytes value is not valid base64"}
		}

	case record.TypeTimestamp:
		switch v := raw.(type) {
		case string:
			for _, layout := range timestampLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t, nil
				}
			}
			return nil, &errors.ValidationError{Field: field.Name, Reason: fmt.Sprintf("unparseable timestamp %q", v)}
		case json.Number:
			// Numeric timestamps are epoch milliseconds.
			if ms, err := v.Int64(); err == nil {
				return time.UnixMilli(ms).UTC(), nil
			}
		}
	}

	return nil, &errors.ValidationError{
		Field:  field.Name,
		Reason: fmt.Sprintf("value %v is not a valid %s", raw, field.Type),
	}
}
