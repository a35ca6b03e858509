// Package config implements configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/rowload/internal/config/dto"
	"github.com/jittakal/rowload/pkg/record"
)

// Loader handles configuration loading and validation.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader. Environment variables
// with the ROWLOAD_ prefix override file values.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ROWLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand ${VAR} references so secrets can live in the environment.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "rowload")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)

	// Source defaults
	l.v.SetDefault("source.format", "csv")

	// Load defaults
	l.v.SetDefault("load.column_separator", ",")
	l.v.SetDefault("load.line_delimiter", "\n")
	l.v.SetDefault("load.block_size", 1000)
	l.v.SetDefault("load.timeout_seconds", 60)

	// Batching defaults
	l.v.SetDefault("batching.max_batch_size_mb", 64)
	l.v.SetDefault("batching.max_rows_per_batch", 100000)
	l.v.SetDefault("batching.max_batch_age_seconds", 60)

	// Retry defaults
	l.v.SetDefault("retry.max_attempts", 5)
	l.v.SetDefault("retry.initial_backoff_ms", 100)
	l.v.SetDefault("retry.max_backoff_ms", 30000)
	l.v.SetDefault("retry.backoff_multiplier", 2.0)
	l.v.SetDefault("retry.jitter", true)

	// Archive defaults
	l.v.SetDefault("archive.enabled", false)
	l.v.SetDefault("archive.backend", "file")
	l.v.SetDefault("archive.base_path", "failed-loads")
	l.v.SetDefault("archive.s3.use_path_style", false)
	l.v.SetDefault("archive.s3.sse_enabled", true)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration.
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Kafka validation
	if len(config.Kafka.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(config.Kafka.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if config.Kafka.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}

	// Source validation
	if _, err := record.ParseFormat(config.Source.Format); err != nil {
		return fmt.Errorf("source.format: %w", err)
	}
	if len(config.Source.Schema) == 0 {
		return errors.New("source.schema is required")
	}

	// Load validation
	if len(config.Load.Endpoints) == 0 {
		return errors.New("load.endpoints is required")
	}
	if config.Load.Database == "" {
		return errors.New("load.database is required")
	}
	if config.Load.Table == "" {
		return errors.New("load.table is required")
	}

	// Archive validation
	if config.Archive.Enabled {
		switch config.Archive.Backend {
		case "s3":
			if config.Archive.S3.Bucket == "" {
				return errors.New("archive.s3.bucket is required for S3 backend")
			}
			if config.Archive.S3.Region == "" {
				return errors.New("archive.s3.region is required for S3 backend")
			}
		case "gcs":
			if config.Archive.GCS.Bucket == "" {
				return errors.New("archive.gcs.bucket is required for GCS backend")
			}
		case "azure":
			if config.Archive.Azure.AccountName == "" {
				return errors.New("archive.azure.account_name is required for Azure backend")
			}
			if config.Archive.Azure.Container == "" {
				return errors.New("archive.azure.container is required for Azure backend")
			}
		case "file":
			if config.Archive.File.BasePath == "" {
				return errors.New("archive.file.base_path is required for file backend")
			}
		default:
			return fmt.Errorf("unsupported archive backend: %s", config.Archive.Backend)
		}
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
