// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/rowload/pkg/record"
)

// Sentinel errors for common conditions.
var (
	ErrConsumerClosed = errors.New("consumer is closed")
	ErrReaderClosed   = errors.New("stream reader is closed")
	ErrBufferFull     = errors.New("row buffer is full")
	ErrConnectionLost = errors.New("connection lost")
)

// ConfigError represents an invalid or unsupported configuration value.
// It is fatal and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field=%s: %s", e.Field, e.Reason)
}

// EncodeError represents a record that failed to serialize. It is fatal
// for the current load attempt; bad records are never skipped silently.
type EncodeError struct {
	Format record.Format
	Reason string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode error: format=%s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("encode error: format=%s: %s", e.Format, e.Reason)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// SourceError represents a failure surfaced by the row source itself,
// e.g. underlying data access. The cause is preserved for diagnostics.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source error: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// LoadError represents a failed stream-load request.
type LoadError struct {
	Database   string
	Table      string
	Label      string
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load error: db=%s table=%s label=%s http=%d status=%s: %s",
		e.Database, e.Table, e.Label, e.StatusCode, e.Status, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ValidationError represents a schema or row validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field=%s: %s", e.Field, e.Reason)
}

// ArchiveError represents an archive storage operation failure.
type ArchiveError struct {
	Backend   string
	Operation string
	Key       string
	Err       error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive error: backend=%s operation=%s key=%s: %v",
		e.Backend, e.Operation, e.Key, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a LoadError is retryable. Server-side failures
// and transport errors are retried; rejected data and deterministic
// encode or configuration failures are not.
func (e *LoadError) IsRetryable() bool {
	var encodeErr *EncodeError
	var configErr *ConfigError
	if errors.As(e.Err, &encodeErr) || errors.As(e.Err, &configErr) {
		// A batch that cannot be encoded fails the same way every
		// attempt; retrying only re-streams it.
		return false
	}
	if e.Err != nil && e.StatusCode == 0 {
		// Transport-level failure, no response received.
		return true
	}
	return e.StatusCode >= 500
}

// IsRetryable determines if an ArchiveError is retryable based on the operation type.
func (e *ArchiveError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}
