package block

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"

	apperrors "github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/record"
)

func metricSchema() *record.Schema {
	return record.NewSchema(
		record.Field{Name: "host", Type: record.TypeString},
		record.Field{Name: "value", Type: record.TypeFloat64},
		record.Field{Name: "at", Type: record.TypeTimestamp},
		record.Field{Name: "region", Type: record.TypeString, Nullable: true},
	)
}

func metricRecord(host string, value float64) record.Record {
	return record.New(host, value, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), nil)
}

func TestAvroWriter_RoundTrip(t *testing.T) {
	w, err := NewAvroWriter(metricSchema(), "")
	if err != nil {
		t.Fatalf("NewAvroWriter() error = %v", err)
	}

	rows := []record.Record{
		metricRecord("db-1", 0.5),
		record.New("db-2", 0.75, time.Date(2025, 3, 1, 9, 1, 0, 0, time.UTC), "eu-west"),
	}
	for _, rec := range rows {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if w.Len() != 2 {
		t.Errorf("Len() = %d, want 2", w.Len())
	}

	blob, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if w.Len() != 0 {
		t.Errorf("Len() after Finalize = %d, want 0", w.Len())
	}

	ocf, err := goavro.NewOCFReader(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("blob is not a valid OCF container: %v", err)
	}

	var decoded []map[string]any
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		decoded = append(decoded, datum.(map[string]any))
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d records, want 2", len(decoded))
	}
	if decoded[0]["host"] != "db-1" {
		t.Errorf("host = %v, want db-1", decoded[0]["host"])
	}
	if decoded[0]["region"] != nil {
		t.Errorf("region = %v, want null", decoded[0]["region"])
	}
	if region, ok := decoded[1]["region"].(map[string]any); !ok || region["string"] != "eu-west" {
		t.Errorf("region = %v, want union string eu-west", decoded[1]["region"])
	}
}

func TestAvroWriter_SelfFramedBlobs(t *testing.T) {
	w, err := NewAvroWriter(metricSchema(), "")
	if err != nil {
		t.Fatalf("NewAvroWriter() error = %v", err)
	}

	// Every finalized blob is a complete container with its own header.
	for i := 0; i < 2; i++ {
		if err := w.Append(metricRecord("host", float64(i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		blob, err := w.Finalize()
		if err != nil {
			t.Fatalf("Finalize() error = %v", err)
		}
		if !bytes.HasPrefix(blob, []byte("Obj\x01")) {
			t.Errorf("blob %d missing OCF magic", i)
		}
	}
}

func TestAvroWriter_Errors(t *testing.T) {
	w, err := NewAvroWriter(metricSchema(), "")
	if err != nil {
		t.Fatalf("NewAvroWriter() error = %v", err)
	}

	tests := []struct {
		name string
		rec  record.Record
	}{
		{"arity mismatch", record.New("host")},
		{"type mismatch", record.New("host", "not-a-float", time.Now(), nil)},
		{"nil for non-nullable", record.New(nil, 1.0, time.Now(), nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Append(tt.rec)
			var encodeErr *apperrors.EncodeError
			if !errors.As(err, &encodeErr) {
				t.Fatalf("Append() error = %v, want *EncodeError", err)
			}
		})
	}
}

func TestAvroWriter_UnsupportedCompression(t *testing.T) {
	_, err := NewAvroWriter(metricSchema(), "brotli")
	var cfgErr *apperrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("NewAvroWriter() error = %v, want *ConfigError", err)
	}
}

func TestParquetWriter_RoundTrip(t *testing.T) {
	w, err := NewParquetWriter(metricSchema(), "snappy")
	if err != nil {
		t.Fatalf("NewParquetWriter() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := w.Append(metricRecord("db-1", float64(i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	blob, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !bytes.HasPrefix(blob, []byte("PAR1")) || !bytes.HasSuffix(blob, []byte("PAR1")) {
		t.Fatal("blob is not framed by parquet magic")
	}

	file, err := parquet.OpenFile(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		t.Fatalf("blob is not a valid parquet file: %v", err)
	}
	if file.NumRows() != 3 {
		t.Errorf("NumRows() = %d, want 3", file.NumRows())
	}
}

func TestParquetWriter_ResetBetweenBlocks(t *testing.T) {
	w, err := NewParquetWriter(metricSchema(), "")
	if err != nil {
		t.Fatalf("NewParquetWriter() error = %v", err)
	}

	if err := w.Append(metricRecord("a", 1)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	first, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if err := w.Append(metricRecord("b", 2)); err != nil {
		t.Fatalf("Append() after Finalize error = %v", err)
	}
	second, err := w.Finalize()
	if err != nil {
		t.Fatalf("second Finalize() error = %v", err)
	}

	for i, blob := range [][]byte{first, second} {
		file, err := parquet.OpenFile(bytes.NewReader(blob), int64(len(blob)))
		if err != nil {
			t.Fatalf("blob %d invalid: %v", i, err)
		}
		if file.NumRows() != 1 {
			t.Errorf("blob %d rows = %d, want 1", i, file.NumRows())
		}
	}
}

func TestParquetWriter_Errors(t *testing.T) {
	w, err := NewParquetWriter(metricSchema(), "")
	if err != nil {
		t.Fatalf("NewParquetWriter() error = %v", err)
	}

	tests := []struct {
		name string
		rec  record.Record
	}{
		{"arity mismatch", record.New("host")},
		{"type mismatch", record.New("host", true, time.Now(), nil)},
		{"nil for non-nullable", record.New("host", nil, time.Now(), nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Append(tt.rec)
			var encodeErr *apperrors.EncodeError
			if !errors.As(err, &encodeErr) {
				t.Fatalf("Append() error = %v, want *EncodeError", err)
			}
		})
	}
}

func TestFinalizeEmptyBlockPanics(t *testing.T) {
	w, err := NewAvroWriter(metricSchema(), "")
	if err != nil {
		t.Fatalf("NewAvroWriter() error = %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Finalize() on empty block did not panic")
		}
	}()
	w.Finalize()
}

func TestNewBlockWriter(t *testing.T) {
	tests := []struct {
		name    string
		format  record.Format
		wantErr bool
	}{
		{"avro", record.FormatAvro, false},
		{"parquet", record.FormatParquet, false},
		{"row format rejected", record.FormatCSV, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewBlockWriter(tt.format, metricSchema(), "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBlockWriter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && w.Format() != tt.format {
				t.Errorf("Format() = %s, want %s", w.Format(), tt.format)
			}
		})
	}
}
