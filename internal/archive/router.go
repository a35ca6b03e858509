// Package archive implements archive storage backends for rejected
// batches.
package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/jittakal/rowload/pkg/archive"
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interface.
var _ archive.Router = (*DefaultRouter)(nil)

// DefaultRouter implements Hive-style partitioning for archive keys.
type DefaultRouter struct {
	basePath string
}

// NewRouter creates a new archive key router.
func NewRouter(basePath string) *DefaultRouter {
	return &DefaultRouter{basePath: strings.Trim(basePath, "/")}
}

// Route returns the archive key for a rejected batch.
// Format: basePath/database/table/dt=YYYY-MM-DD/label.{ext}
// Uses rejection time for partitioning so replays land next to the
// failure, not next to the original event time.
func (r *DefaultRouter) Route(database, table, label string, rejectedAt time.Time, format record.Format) string {
	date := rejectedAt.UTC().Format("2006-01-02")
	key := fmt.Sprintf("%s/%s/dt=%s/%s%s", database, table, date, label, Extension(format))
	if r.basePath != "" {
		key = r.basePath + "/" + key
	}
	return key
}

// Extension returns the archive filename extension for a batch format.
func Extension(format record.Format) string {
	switch format {
	case record.FormatCSV:
		return ".csv"
	case record.FormatJSON, record.FormatPassThrough:
		return ".jsonl"
	case record.FormatAvro:
		return ".avro"
	case record.FormatParquet:
		return ".parquet"
	default:
		return ".bin"
	}
}

// contentType maps an archive key's extension to the MIME type reported
// to object stores.
func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".jsonl"):
		return "application/x-ndjson"
	case strings.HasSuffix(key, ".avro"):
		return "application/avro"
	default:
		return "application/octet-stream"
	}
}
