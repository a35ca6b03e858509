// Package consumer defines interfaces for Kafka row consumption.
//
// This package provides abstractions for consuming messages from Kafka,
// decoding them into rows, and managing consumer lifecycle.
package consumer

import (
	"context"
	"time"

	"github.com/jittakal/rowload/pkg/record"
)

// Metadata carries the Kafka position of a consumed row.
type Metadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
}

// ConsumedRow is a decoded row together with its Kafka position and a
// commit callback. CommitFunc marks the row's offset; the commit is
// flushed by the consumer group session.
type ConsumedRow struct {
	Row        record.Record
	Metadata   Metadata
	CommitFunc func() error
}

// Consumer reads rows from Kafka topics.
type Consumer interface {
	// Subscribe subscribes to one or more topics.
	Subscribe(ctx context.Context, topics []string) error

	// Consume starts consuming messages from subscribed topics.
	// Returns channels for decoded rows and errors.
	Consume(ctx context.Context) (<-chan *ConsumedRow, <-chan error, error)

	// Close closes the consumer and releases resources.
	Close() error
}
