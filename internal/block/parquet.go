package block

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/codec"
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ codec.BlockWriter = (*ParquetWriter)(nil)

// ParquetWriter finalizes record blocks as complete parquet files. The
// schema is built dynamically from the row schema, so no generated
// struct types are involved.
type ParquetWriter struct {
	schema        *record.Schema
	parquetSchema *parquet.Schema
	compression   parquet.WriterOption
	rows          []map[string]any
	closed        bool
}

// NewParquetWriter creates a parquet block writer for the given schema.
// Supported compression: "snappy" (default), "gzip", "lz4", "zstd",
// "uncompressed".
func NewParquetWriter(schema *record.Schema, compression string) (*ParquetWriter, error) {
	if schema == nil || schema.Len() == 0 {
		return nil, &errors.ConfigError{Field: "schema", Reason: "parquet block writer requires a non-empty schema"}
	}

	group := parquet.Group{}
	for _, f := range schema.Fields {
		node, err := parquetNode(f.Type)
		if err != nil {
			return nil, &errors.ConfigError{Field: f.Name, Reason: err.Error()}
		}
		if f.Nullable {
			node = parquet.Optional(node)
		}
		group[f.Name] = node
	}

	codecOpt, err := compressionCodec(compression)
	if err != nil {
		return nil, err
	}

	return &ParquetWriter{
		schema:        schema,
		parquetSchema: parquet.NewSchema("block", group),
		compression:   codecOpt,
	}, nil
}

// parquetNode maps a field type to its parquet schema node.
func parquetNode(t record.FieldType) (parquet.Node, error) {
	switch t {
	case record.TypeBool:
		return parquet.Leaf(parquet.BooleanType), nil
	case record.TypeInt32:
		return parquet.Int(32), nil
	case record.TypeInt64:
		return parquet.Int(64), nil
	case record.TypeFloat64:
		return parquet.Leaf(parquet.DoubleType), nil
	case record.TypeString:
		return parquet.String(), nil
	case record.TypeBytes:
		return parquet.Leaf(parquet.ByteArrayType), nil
	case record.TypeTimestamp:
		return parquet.Timestamp(parquet.Microsecond), nil
	default:
		return nil, fmt.Errorf("no parquet mapping for field type %s", t)
	}
}

// compressionCodec converts a compression name to a parquet WriterOption.
func compressionCodec(compression string) (parquet.WriterOption, error) {
	switch compression {
	case "", "snappy", "SNAPPY":
		return parquet.Compression(&parquet.Snappy), nil
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip), nil
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw), nil
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd), nil
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, &errors.ConfigError{
			Field:  "parquet.compression",
			Reason: fmt.Sprintf("unsupported codec: %s", compression),
		}
	}
}

// Append converts one record to a parquet row map and buffers it.
func (w *ParquetWriter) Append(rec record.Record) error {
	if w.closed {
		return errors.ErrReaderClosed
	}
	if rec.Len() != w.schema.Len() {
		return &errors.EncodeError{
			Format: record.FormatParquet,
			Reason: fmt.Sprintf("record has %d values, schema has %d fields", rec.Len(), w.schema.Len()),
		}
	}

	row := make(map[string]any, w.schema.Len())
	for i, f := range w.schema.Fields {
		v := rec.Values[i]
		if v == nil {
			if !f.Nullable {
				return &errors.EncodeError{
					Format: record.FormatParquet,
					Reason: fmt.Sprintf("nil value for non-nullable field %s", f.Name),
				}
			}
			row[f.Name] = nil
			continue
		}
		if !record.ValidValue(f, v) {
			return &errors.EncodeError{
				Format: record.FormatParquet,
				Reason: fmt.Sprintf("field %s: value type %T does not match field type %s", f.Name, v, f.Type),
			}
		}
		if f.Type == record.TypeTimestamp {
			// Timestamp columns are INT64 micros on the wire.
			v = v.(time.Time).UnixMicro()
		}
		row[f.Name] = v
	}

	w.rows = append(w.rows, row)
	return nil
}

// Finalize writes the buffered records as one complete parquet file and
// resets the writer.
func (w *ParquetWriter) Finalize() ([]byte, error) {
	if len(w.rows) == 0 {
		panic("block: Finalize called with no buffered records")
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[map[string]any](&buf, w.parquetSchema, w.compression)

	if _, err := writer.Write(w.rows); err != nil {
		writer.Close()
		return nil, &errors.EncodeError{Format: record.FormatParquet, Reason: "failed to write block rows", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &errors.EncodeError{Format: record.FormatParquet, Reason: "failed to close writer", Err: err}
	}

	w.rows = w.rows[:0]
	return buf.Bytes(), nil
}

// Len returns the number of buffered records.
func (w *ParquetWriter) Len() int {
	return len(w.rows)
}

// Format returns the columnar format.
func (w *ParquetWriter) Format() record.Format {
	return record.FormatParquet
}

// Close discards buffered records.
func (w *ParquetWriter) Close() error {
	w.rows = nil
	w.closed = true
	return nil
}
