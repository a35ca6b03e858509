package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jittakal/rowload/internal/config/dto"
	"github.com/jittakal/rowload/pkg/record"
)

const validConfig = `
application:
  name: test-loader

kafka:
  bootstrap_servers:
    - localhost:9092
  consumer:
    group_id: test-group
    topics:
      - orders

source:
  format: csv
  schema:
    - name: id
      type: int64
    - name: name
      type: string
      nullable: true

load:
  endpoints:
    - http://fe-1:8030
  database: analytics
  table: orders
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoader_Load(t *testing.T) {
	cfg, err := NewLoader().Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Application.Name != "test-loader" {
		t.Errorf("application name = %s, want test-loader", cfg.Application.Name)
	}
	if cfg.Load.Database != "analytics" || cfg.Load.Table != "orders" {
		t.Errorf("load target = %s.%s, want analytics.orders", cfg.Load.Database, cfg.Load.Table)
	}
	if len(cfg.Source.Schema) != 2 {
		t.Fatalf("schema has %d fields, want 2", len(cfg.Source.Schema))
	}
	if !cfg.Source.Schema[1].Nullable {
		t.Error("second field should be nullable")
	}
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Load.ColumnSeparator != "," {
		t.Errorf("column separator default = %q, want ,", cfg.Load.ColumnSeparator)
	}
	if cfg.Load.LineDelimiter != "\n" {
		t.Errorf("line delimiter default = %q, want newline", cfg.Load.LineDelimiter)
	}
	if cfg.Load.BlockSize != 1000 {
		t.Errorf("block size default = %d, want 1000", cfg.Load.BlockSize)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("retry max attempts default = %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Kafka.Consumer.AutoOffsetReset != "earliest" {
		t.Errorf("auto offset reset default = %s, want earliest", cfg.Kafka.Consumer.AutoOffsetReset)
	}
	if cfg.Observability.Metrics.Port != 9090 {
		t.Errorf("metrics port default = %d, want 9090", cfg.Observability.Metrics.Port)
	}
	if cfg.Archive.Enabled {
		t.Error("archive should be disabled by default")
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_LOAD_PASSWORD", "s3cret")

	content := validConfig + `
  password: ${TEST_LOAD_PASSWORD}
`
	cfg, err := NewLoader().Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Load.Password != "s3cret" {
		t.Errorf("password = %q, want expanded env value", cfg.Load.Password)
	}
}

func TestLoader_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s string) string
		wantErr string
	}{
		{
			name:    "missing bootstrap servers",
			mutate:  func(s string) string { return strings.Replace(s, "- localhost:9092", "[]", 1) },
			wantErr: "bootstrap_servers",
		},
		{
			name:    "missing group id",
			mutate:  func(s string) string { return strings.Replace(s, "group_id: test-group", "group_id: \"\"", 1) },
			wantErr: "group_id",
		},
		{
			name:    "unknown format",
			mutate:  func(s string) string { return strings.Replace(s, "format: csv", "format: xml", 1) },
			wantErr: "format",
		},
		{
			name:    "missing endpoints",
			mutate:  func(s string) string { return strings.Replace(s, "- http://fe-1:8030", "[]", 1) },
			wantErr: "endpoints",
		},
		{
			name:    "missing table",
			mutate:  func(s string) string { return strings.Replace(s, "table: orders", "table: \"\"", 1) },
			wantErr: "table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Load(writeConfig(t, tt.mutate(validConfig)))
			if err == nil {
				t.Fatal("Load() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ArchiveValidation(t *testing.T) {
	content := validConfig + `
archive:
  enabled: true
  backend: s3
`
	_, err := NewLoader().Load(writeConfig(t, content))
	if err == nil || !strings.Contains(err.Error(), "archive.s3.bucket") {
		t.Errorf("Load() error = %v, want archive.s3.bucket error", err)
	}
}

func TestSourceConfig_RecordSchema(t *testing.T) {
	src := dto.SourceConfig{
		Format: "csv",
		Schema: []dto.FieldConfig{
			{Name: "id", Type: "int64"},
			{Name: "note", Type: "string", Nullable: true},
		},
	}

	schema, err := src.RecordSchema()
	if err != nil {
		t.Fatalf("RecordSchema() error = %v", err)
	}
	if schema.Len() != 2 {
		t.Fatalf("schema.Len() = %d, want 2", schema.Len())
	}
	if schema.Fields[0].Type != record.TypeInt64 {
		t.Errorf("field type = %s, want int64", schema.Fields[0].Type)
	}
	if !schema.Fields[1].Nullable {
		t.Error("second field should be nullable")
	}

	empty := dto.SourceConfig{}
	if _, err := empty.RecordSchema(); err == nil {
		t.Error("RecordSchema() on empty schema should fail")
	}
}
