package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed *prometheus.CounterVec
	RowsDecoded      *prometheus.CounterVec
	DecodeFailures   *prometheus.CounterVec
	OffsetCommits    *prometheus.CounterVec
	BufferedRows     *prometheus.GaugeVec
	BufferedBytes    *prometheus.GaugeVec

	// Streaming metrics
	RowsStreamed    *prometheus.CounterVec
	BytesStreamed   *prometheus.CounterVec
	BlocksFinalized *prometheus.CounterVec

	// Load metrics
	LoadsTotal   *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec
	LoadBytes    *prometheus.HistogramVec
	LoadRetries  *prometheus.CounterVec

	// Archive metrics
	BatchesArchived *prometheus.CounterVec
	ArchiveErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		RowsDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_rows_decoded_total",
				Help: "Total number of messages decoded into rows",
			},
			[]string{"topic", "partition"},
		),
		DecodeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_decode_failures_total",
				Help: "Total number of messages that failed row decoding",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		BufferedRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rowload_buffered_rows",
				Help: "Rows currently buffered ahead of a load",
			},
			[]string{"database", "table"},
		),
		BufferedBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rowload_buffered_bytes",
				Help: "Estimated bytes currently buffered ahead of a load",
			},
			[]string{"database", "table"},
		),
		RowsStreamed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_rows_streamed_total",
				Help: "Total number of rows serialized into load streams",
			},
			[]string{"database", "table", "format"},
		),
		BytesStreamed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_bytes_streamed_total",
				Help: "Total bytes produced by the streaming reader",
			},
			[]string{"database", "table", "format"},
		),
		BlocksFinalized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_blocks_finalized_total",
				Help: "Total number of columnar blocks finalized",
			},
			[]string{"database", "table", "format"},
		),
		LoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_loads_total",
				Help: "Total number of stream-load attempts by outcome",
			},
			[]string{"database", "table", "status"},
		),
		LoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowload_load_duration_seconds",
				Help:    "Duration of stream-load requests",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"database", "table"},
		),
		LoadBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowload_load_bytes",
				Help:    "Body size of stream-load requests",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"database", "table"},
		),
		LoadRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_load_retries_total",
				Help: "Total number of retried stream-load attempts",
			},
			[]string{"database", "table"},
		),
		BatchesArchived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_batches_archived_total",
				Help: "Total number of failed batches written to the archive",
			},
			[]string{"backend"},
		),
		ArchiveErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowload_archive_errors_total",
				Help: "Total number of archive operation failures",
			},
			[]string{"backend", "operation"},
		),
	}
}

// IncMessagesConsumed records one consumed Kafka message.
func (m *Metrics) IncMessagesConsumed(topic string, partition string) {
	m.MessagesConsumed.WithLabelValues(topic, partition).Inc()
}

// IncLoads records a finished stream-load attempt.
func (m *Metrics) IncLoads(database, table, status string) {
	m.LoadsTotal.WithLabelValues(database, table, status).Inc()
}

// ObserveLoad records the duration and size of a stream-load attempt.
func (m *Metrics) ObserveLoad(database, table string, seconds float64, bytes float64) {
	m.LoadDuration.WithLabelValues(database, table).Observe(seconds)
	m.LoadBytes.WithLabelValues(database, table).Observe(bytes)
}
