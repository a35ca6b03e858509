// Package dto defines the configuration structures unmarshalled from
// YAML and environment variables.
package dto

import (
	"fmt"
	"time"

	"github.com/jittakal/rowload/pkg/record"
)

// ApplicationConfig is the root configuration structure.
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Source        SourceConfig        `mapstructure:"source"`
	Load          LoadConfig          `mapstructure:"load"`
	Batching      BatchingConfig      `mapstructure:"batching"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata.
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig contains Kafka-related configuration.
type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	AWSRegion        string         `mapstructure:"aws_region"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
}

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// FieldConfig describes one schema column.
type FieldConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Nullable bool   `mapstructure:"nullable"`
}

// SourceConfig describes the row schema and wire format.
type SourceConfig struct {
	Format string        `mapstructure:"format"`
	Schema []FieldConfig `mapstructure:"schema"`
}

// RecordSchema converts the configured fields into a record schema.
func (c *SourceConfig) RecordSchema() (*record.Schema, error) {
	if len(c.Schema) == 0 {
		return nil, fmt.Errorf("source.schema is required")
	}
	fields := make([]record.Field, len(c.Schema))
	for i, f := range c.Schema {
		fields[i] = record.Field{
			Name:     f.Name,
			Type:     record.FieldType(f.Type),
			Nullable: f.Nullable,
		}
	}
	return record.NewSchema(fields...), nil
}

// LoadConfig contains stream-load endpoint configuration.
type LoadConfig struct {
	Endpoints       []string          `mapstructure:"endpoints"`
	Database        string            `mapstructure:"database"`
	Table           string            `mapstructure:"table"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	ColumnSeparator string            `mapstructure:"column_separator"`
	LineDelimiter   string            `mapstructure:"line_delimiter"`
	Quote           bool              `mapstructure:"quote"`
	BlockSize       int               `mapstructure:"block_size"`
	Compression     string            `mapstructure:"compression"`
	TimeoutSeconds  int               `mapstructure:"timeout_seconds"`
	Properties      map[string]string `mapstructure:"properties"`
}

// BatchingConfig controls when buffered rows are flushed into a load.
type BatchingConfig struct {
	MaxBatchSizeMB     int `mapstructure:"max_batch_size_mb"`
	MaxRowsPerBatch    int `mapstructure:"max_rows_per_batch"`
	MaxBatchAgeSeconds int `mapstructure:"max_batch_age_seconds"`
}

// RetryConfig contains load retry settings.
type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	Jitter            bool    `mapstructure:"jitter"`
}

// ArchiveConfig contains failed-batch archive configuration.
type ArchiveConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Backend  string         `mapstructure:"backend"`
	BasePath string         `mapstructure:"base_path"`
	S3       S3Config       `mapstructure:"s3"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Azure    AzureConfig    `mapstructure:"azure"`
	File     FileSinkConfig `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	Container   string `mapstructure:"container"`
}

// FileSinkConfig contains local filesystem configuration.
type FileSinkConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// ObservabilityConfig contains observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings.
type ShutdownConfig struct {
	GracePeriodSeconds time.Duration `mapstructure:"grace_period_seconds"`
}
