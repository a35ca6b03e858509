package archive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/internal/observability"
	"github.com/jittakal/rowload/pkg/archive"
)

// Ensure implementation satisfies interface at compile time.
var _ archive.Archiver = (*FileArchiver)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileArchiver implements archive.Archiver for the local filesystem.
type FileArchiver struct {
	basePath string
	logger   *slog.Logger
	metrics  *observability.Metrics
	mu       sync.Mutex
}

// NewFileArchiver creates a new filesystem archiver.
func NewFileArchiver(config FileConfig, logger *slog.Logger, metrics *observability.Metrics) (*FileArchiver, error) {
	if config.BasePath == "" {
		return nil, &errors.ConfigError{Field: "archive.file.base_path", Reason: "base path is required"}
	}
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, &errors.ArchiveError{Backend: "file", Operation: "create", Key: config.BasePath, Err: err}
	}

	logger.Info("filesystem archiver created", "base_path", config.BasePath)

	return &FileArchiver{
		basePath: config.BasePath,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Archive writes the batch bytes to a file under the base path.
func (a *FileArchiver) Archive(ctx context.Context, key string, body io.Reader) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	startTime := time.Now()

	fullPath := filepath.Join(a.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		a.incError("file", "create")
		return 0, &errors.ArchiveError{Backend: "file", Operation: "create", Key: key, Err: err}
	}

	f, err := os.Create(fullPath)
	if err != nil {
		a.incError("file", "create")
		return 0, &errors.ArchiveError{Backend: "file", Operation: "create", Key: key, Err: err}
	}

	written, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		os.Remove(fullPath)
		a.incError("file", "write")
		return 0, &errors.ArchiveError{Backend: "file", Operation: "write", Key: key, Err: err}
	}
	if err := f.Close(); err != nil {
		a.incError("file", "write")
		return 0, &errors.ArchiveError{Backend: "file", Operation: "write", Key: key, Err: err}
	}

	a.logger.Info("archived batch to file",
		"path", fullPath,
		"bytes", written,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	if a.metrics != nil {
		a.metrics.BatchesArchived.WithLabelValues("file").Inc()
	}

	return written, nil
}

// Close closes the archiver.
func (a *FileArchiver) Close() error {
	a.logger.Info("closing filesystem archiver")
	return nil
}

func (a *FileArchiver) incError(backend, operation string) {
	if a.metrics != nil {
		a.metrics.ArchiveErrors.WithLabelValues(backend, operation).Inc()
	}
}
