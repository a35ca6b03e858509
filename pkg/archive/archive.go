// Package archive defines interfaces for archiving rejected batches.
//
// When a batch is permanently rejected by the load endpoint, its encoded
// byte stream is written to an archive backend (S3, GCS, Azure Blob,
// local filesystem) so it can be inspected and replayed later.
package archive

import (
	"context"
	"io"
	"time"

	"github.com/jittakal/rowload/pkg/record"
)

// Archiver writes an encoded batch to archive storage.
type Archiver interface {
	// Archive streams body to storage under the given key and returns
	// the number of bytes written.
	Archive(ctx context.Context, key string, body io.Reader) (int64, error)

	// Close closes the archiver and releases resources.
	Close() error
}

// Router determines archive keys for rejected batches.
type Router interface {
	// Route returns the object key for a batch rejected at the given
	// time. The key includes a filename with an extension matching the
	// batch format.
	Route(database, table, label string, rejectedAt time.Time, format record.Format) string
}
