package validator

import (
	"errors"
	"testing"

	apperrors "github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/record"
)

func TestSchemaValidator_Validate(t *testing.T) {
	valid := record.NewSchema(
		record.Field{Name: "id", Type: record.TypeInt64},
		record.Field{Name: "name", Type: record.TypeString, Nullable: true},
	)

	tests := []struct {
		name    string
		schema  *record.Schema
		format  record.Format
		wantErr bool
	}{
		{"valid csv schema", valid, record.FormatCSV, false},
		{"valid columnar schema", valid, record.FormatParquet, false},
		{"nil schema", nil, record.FormatCSV, true},
		{"empty schema", record.NewSchema(), record.FormatCSV, true},
		{
			"missing field name",
			record.NewSchema(record.Field{Type: record.TypeString}),
			record.FormatCSV,
			true,
		},
		{
			"duplicate field name",
			record.NewSchema(
				record.Field{Name: "x", Type: record.TypeString},
				record.Field{Name: "x", Type: record.TypeInt64},
			),
			record.FormatCSV,
			true,
		},
		{
			"unknown type",
			record.NewSchema(record.Field{Name: "x", Type: record.FieldType("decimal")}),
			record.FormatCSV,
			true,
		},
		{
			"passthrough with one string field",
			record.NewSchema(record.Field{Name: "line", Type: record.TypeString}),
			record.FormatPassThrough,
			false,
		},
		{"passthrough with wide schema", valid, record.FormatPassThrough, true},
		{
			"passthrough with non-string field",
			record.NewSchema(record.Field{Name: "line", Type: record.TypeInt64}),
			record.FormatPassThrough,
			true,
		},
	}

	v := NewSchemaValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var valErr *apperrors.ValidationError
				if !errors.As(err, &valErr) {
					t.Errorf("error = %v, want *ValidationError", err)
				}
			}
		})
	}
}

func TestSchemaValidator_ValidateRow(t *testing.T) {
	schema := record.NewSchema(
		record.Field{Name: "id", Type: record.TypeInt64},
		record.Field{Name: "name", Type: record.TypeString, Nullable: true},
	)
	v := NewSchemaValidator()

	tests := []struct {
		name    string
		rec     record.Record
		wantErr bool
	}{
		{"valid row", record.New(int64(1), "a"), false},
		{"null in nullable field", record.New(int64(1), nil), false},
		{"arity mismatch", record.New(int64(1)), true},
		{"type mismatch", record.New("1", "a"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRow(schema, tt.rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRow() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
