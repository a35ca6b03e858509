// Package validator provides schema and row validation.
package validator

import (
	"fmt"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/record"
)

// SchemaValidator validates a configured row schema before any batch is
// accepted against it.
type SchemaValidator struct{}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// Validate checks the schema against the chosen format.
func (v *SchemaValidator) Validate(schema *record.Schema, format record.Format) error {
	if schema == nil || schema.Len() == 0 {
		return &errors.ValidationError{
			Field:  "schema",
			Reason: "schema must declare at least one field",
		}
	}

	seen := make(map[string]struct{}, schema.Len())
	for i, f := range schema.Fields {
		if f.Name == "" {
			return &errors.ValidationError{
				Field:  fmt.Sprintf("fields[%d]", i),
				Reason: "field name is required",
			}
		}
		if _, dup := seen[f.Name]; dup {
			return &errors.ValidationError{
				Field:  f.Name,
				Reason: "duplicate field name",
			}
		}
		seen[f.Name] = struct{}{}

		if !supportedType(f.Type) {
			return &errors.ValidationError{
				Field:  f.Name,
				Reason: fmt.Sprintf("unsupported field type: %s", f.Type),
			}
		}
	}

	if format == record.FormatPassThrough {
		if schema.Len() != 1 || schema.Fields[0].Type != record.TypeString {
			return &errors.ValidationError{
				Field:  "schema",
				Reason: "passthrough format requires exactly one string field",
			}
		}
	}

	return nil
}

// ValidateRow checks one row against the schema.
func (v *SchemaValidator) ValidateRow(schema *record.Schema, rec record.Record) error {
	if rec.Len() != schema.Len() {
		return &errors.ValidationError{
			Field:  "row",
			Reason: fmt.Sprintf("row has %d values, schema has %d fields", rec.Len(), schema.Len()),
		}
	}
	for i, f := range schema.Fields {
		if !record.ValidValue(f, rec.Values[i]) {
			return &errors.ValidationError{
				Field:  f.Name,
				Reason: fmt.Sprintf("value type %T does not match field type %s", rec.Values[i], f.Type),
			}
		}
	}
	return nil
}

func supportedType(t record.FieldType) bool {
	for _, valid := range record.Types() {
		if t == valid {
			return true
		}
	}
	return false
}
