package archive

import (
	"context"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/internal/observability"
	"github.com/jittakal/rowload/pkg/archive"
)

// Ensure implementation satisfies interface at compile time.
var _ archive.Archiver = (*GCSArchiver)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// GCSArchiver implements archive.Archiver for Google Cloud Storage.
// It supports service account file, JSON, and default credentials.
type GCSArchiver struct {
	client  *storage.Client
	bucket  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewGCSArchiver creates a new Google Cloud Storage archiver.
func NewGCSArchiver(cfg GCSConfig, logger *slog.Logger, metrics *observability.Metrics) (*GCSArchiver, error) {
	if cfg.Bucket == "" {
		return nil, &errors.ConfigError{Field: "archive.gcs.bucket", Reason: "bucket is required"}
	}

	ctx := context.Background()

	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, &errors.ArchiveError{Backend: "gcs", Operation: "config", Err: err}
	}

	logger.Info("GCS archiver created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
	)

	return &GCSArchiver{
		client:  client,
		bucket:  cfg.Bucket,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Archive streams the batch bytes to GCS under the given key.
func (a *GCSArchiver) Archive(ctx context.Context, key string, body io.Reader) (int64, error) {
	obj := a.client.Bucket(a.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType(key)

	written, err := io.Copy(w, body)
	if err != nil {
		w.Close()
		if a.metrics != nil {
			a.metrics.ArchiveErrors.WithLabelValues("gcs", "upload").Inc()
		}
		return 0, &errors.ArchiveError{Backend: "gcs", Operation: "upload", Key: key, Err: err}
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		if a.metrics != nil {
			a.metrics.ArchiveErrors.WithLabelValues("gcs", "upload").Inc()
		}
		return 0, &errors.ArchiveError{Backend: "gcs", Operation: "upload", Key: key, Err: err}
	}

	a.logger.Info("archived batch to GCS",
		"bucket", a.bucket,
		"object", key,
		"bytes", written,
	)

	if a.metrics != nil {
		a.metrics.BatchesArchived.WithLabelValues("gcs").Inc()
	}

	return written, nil
}

// Close closes the GCS archiver.
func (a *GCSArchiver) Close() error {
	a.logger.Info("closing GCS archiver")
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
