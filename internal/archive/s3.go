package archive

import (
	"context"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/internal/observability"
	"github.com/jittakal/rowload/pkg/archive"
)

// Ensure implementation satisfies interface at compile time.
var _ archive.Archiver = (*S3Archiver)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// S3Archiver implements archive.Archiver for AWS S3. The batch byte
// stream is handed straight to the multipart uploader; nothing is
// staged on disk.
type S3Archiver struct {
	uploader    *manager.Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewS3Archiver creates a new S3 archiver.
func NewS3Archiver(cfg S3Config, logger *slog.Logger, metrics *observability.Metrics) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, &errors.ConfigError{Field: "archive.s3.bucket", Reason: "bucket is required"}
	}

	ctx := context.Background()
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, &errors.ArchiveError{Backend: "s3", Operation: "config", Err: err}
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	logger.Info("S3 archiver created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Archiver{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// Archive streams the batch bytes to S3 under the given key.
func (a *S3Archiver) Archive(ctx context.Context, key string, body io.Reader) (int64, error) {
	counted := &countingReader{r: body}

	uploadInput := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        counted,
		ContentType: aws.String(contentType(key)),
	}

	if a.sseEnabled {
		if a.sseKMSKeyID != "" {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			uploadInput.SSEKMSKeyId = aws.String(a.sseKMSKeyID)
		} else {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	result, err := a.uploader.Upload(ctx, uploadInput)
	if err != nil {
		if a.metrics != nil {
			a.metrics.ArchiveErrors.WithLabelValues("s3", "upload").Inc()
		}
		return 0, &errors.ArchiveError{Backend: "s3", Operation: "upload", Key: key, Err: err}
	}

	a.logger.Info("archived batch to S3",
		"bucket", a.bucket,
		"key", key,
		"bytes", counted.n,
		"location", result.Location,
	)

	if a.metrics != nil {
		a.metrics.BatchesArchived.WithLabelValues("s3").Inc()
	}

	return counted.n, nil
}

// Close closes the S3 archiver.
func (a *S3Archiver) Close() error {
	a.logger.Info("closing S3 archiver")
	return nil
}

// countingReader counts bytes handed to the uploader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
