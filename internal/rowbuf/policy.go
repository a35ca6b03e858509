package rowbuf

import (
	"time"
)

// FlushPolicy decides when a buffer should be drained into a load.
type FlushPolicy interface {
	// ShouldFlush returns true if the buffer should be handed to the
	// loader based on its stats.
	ShouldFlush(stats Stats) bool
}

// PolicyConfig configures flush behavior. A zero value disables the
// corresponding criterion.
type PolicyConfig struct {
	MaxBatchSizeMB     int64
	MaxRowsPerBatch    int
	MaxBatchAgeSeconds int
}

// CompositePolicy flushes when any criterion is met.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRows      int
	maxAge       time.Duration
}

// Ensure implementation satisfies interface at compile time.
var _ FlushPolicy = (*CompositePolicy)(nil)

// NewPolicy creates a composite flush policy.
func NewPolicy(config PolicyConfig) *CompositePolicy {
	return &CompositePolicy{
		maxSizeBytes: config.MaxBatchSizeMB * 1024 * 1024,
		maxRows:      config.MaxRowsPerBatch,
		maxAge:       time.Duration(config.MaxBatchAgeSeconds) * time.Second,
	}
}

// ShouldFlush returns true if any flush condition is met.
func (p *CompositePolicy) ShouldFlush(stats Stats) bool {
	if stats.RecordCount == 0 {
		return false
	}

	if p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes {
		return true
	}

	if p.maxRows > 0 && stats.RecordCount >= p.maxRows {
		return true
	}

	if p.maxAge > 0 && !stats.FirstWriteTime.IsZero() {
		if time.Since(stats.FirstWriteTime) >= p.maxAge {
			return true
		}
	}

	return false
}
