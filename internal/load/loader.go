// Package load implements the HTTP stream-load client.
//
// A load attempt streams one batch as a chunked request body built by
// the streaming reader; nothing is buffered beyond the record or block
// currently staged. Retry policy lives here, above the reader, which is
// one-shot by design: every attempt gets a fresh source and a fresh
// reader.
package load

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/internal/observability"
	"github.com/jittakal/rowload/internal/stream"
	"github.com/jittakal/rowload/pkg/batch"
	"github.com/jittakal/rowload/pkg/record"
)

// StatusSuccess is the load result status reported on commit.
const StatusSuccess = "Success"

// Config contains stream-load client configuration.
type Config struct {
	// Endpoints are the base URLs of the load frontends, e.g.
	// "http://fe-1:8030". Attempts rotate through them.
	Endpoints []string
	Database  string
	Table     string
	Username  string
	Password  string

	// ColumnSeparator separates CSV fields; LineDelimiter separates
	// records in row formats.
	ColumnSeparator string
	LineDelimiter   string
	Quote           bool

	// Compression names the block codec for columnar formats.
	Compression string

	// Properties are passed through as extra load headers.
	Properties map[string]string

	Timeout time.Duration
}

// Result is the load endpoint's JSON response.
type Result struct {
	TxnID        int64  `json:"TxnId"`
	Label        string `json:"Label"`
	Status       string `json:"Status"`
	Message      string `json:"Message"`
	LoadedRows   int64  `json:"NumberLoadedRows"`
	FilteredRows int64  `json:"NumberFilteredRows"`
	LoadBytes    int64  `json:"LoadBytes"`
	LoadTimeMs   int64  `json:"LoadTimeMs"`
	ErrorURL     string `json:"ErrorURL"`
}

// SourceFactory produces a fresh batch source per load attempt. The
// streaming reader consumes its source, so retries cannot share one.
type SourceFactory func() batch.Source

// Loader streams batches into the load endpoint.
type Loader struct {
	config  Config
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
	metrics *observability.Metrics

	endpointIdx atomic.Uint64
}

// NewLoader creates a stream-load client.
func NewLoader(config Config, retry RetryPolicy, logger *slog.Logger, metrics *observability.Metrics) (*Loader, error) {
	if len(config.Endpoints) == 0 {
		return nil, &errors.ConfigError{Field: "load.endpoints", Reason: "at least one endpoint is required"}
	}
	if config.Database == "" || config.Table == "" {
		return nil, &errors.ConfigError{Field: "load.database", Reason: "database and table are required"}
	}
	if retry == nil {
		retry = NopRetry{}
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Loader{
		config:  config,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Load streams one batch, retrying per policy. Each attempt streams a
// fresh source from the factory under a new label.
func (l *Loader) Load(ctx context.Context, newSource SourceFactory) (*Result, error) {
	var result *Result
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		res, err := l.attempt(ctx, newSource())
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// attempt performs a single stream-load request.
func (l *Loader) attempt(ctx context.Context, src batch.Source) (*Result, error) {
	label := l.newLabel()
	format := src.Format()
	endpoint := l.nextEndpoint()
	url := fmt.Sprintf("%s/api/%s/%s/_stream_load", endpoint, l.config.Database, l.config.Table)

	reader := stream.NewReader(src, stream.Options{
		ColumnSeparator: []byte(l.config.ColumnSeparator),
		Quote:           l.config.Quote,
		Compression:     l.config.Compression,
		OnBlock: func(records, bytes int) {
			if l.metrics != nil {
				l.metrics.BlocksFinalized.
					WithLabelValues(l.config.Database, l.config.Table, string(format)).Inc()
			}
		},
	})
	defer reader.Close()

	body := &countingReader{r: reader}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, &errors.LoadError{
			Database: l.config.Database, Table: l.config.Table, Label: label,
			Message: "failed to build request", Err: err,
		}
	}

	// Body length is unknown up front; stream it chunked.
	req.ContentLength = -1
	req.SetBasicAuth(l.config.Username, l.config.Password)
	req.Header.Set("Expect", "100-continue")
	req.Header.Set("label", label)
	req.Header.Set("format", string(format))
	if !format.IsColumnar() {
		req.Header.Set("line_delimiter", string(src.Delimiter()))
	}
	if format == record.FormatCSV {
		sep := l.config.ColumnSeparator
		if sep == "" {
			sep = ","
		}
		req.Header.Set("column_separator", sep)
	}
	for k, v := range l.config.Properties {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		if body.err != nil {
			// The request died because the body could not be produced.
			// Surface the encode failure, not the broken connection.
			err = fmt.Errorf("%v: %w", err, body.err)
		}
		l.observe("transport_error", started, body.n, format)
		return nil, &errors.LoadError{
			Database: l.config.Database, Table: l.config.Table, Label: label,
			Message: "request failed", Err: err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		l.observe("transport_error", started, body.n, format)
		return nil, &errors.LoadError{
			Database: l.config.Database, Table: l.config.Table, Label: label,
			StatusCode: resp.StatusCode, Message: "failed to read response", Err: err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		l.observe("http_error", started, body.n, format)
		return nil, &errors.LoadError{
			Database: l.config.Database, Table: l.config.Table, Label: label,
			StatusCode: resp.StatusCode, Message: string(respBody),
		}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		l.observe("bad_response", started, body.n, format)
		return nil, &errors.LoadError{
			Database: l.config.Database, Table: l.config.Table, Label: label,
			StatusCode: resp.StatusCode, Message: "unparseable load result", Err: err,
		}
	}

	if result.Status != StatusSuccess {
		l.observe("rejected", started, body.n, format)
		return nil, &errors.LoadError{
			Database: l.config.Database, Table: l.config.Table, Label: label,
			StatusCode: resp.StatusCode, Status: result.Status, Message: result.Message,
		}
	}

	l.observe("success", started, body.n, format)
	l.logger.Info("stream load committed",
		"label", label,
		"database", l.config.Database,
		"table", l.config.Table,
		"format", format,
		"loaded_rows", result.LoadedRows,
		"load_bytes", body.n,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &result, nil
}

// observe records per-attempt metrics.
func (l *Loader) observe(status string, started time.Time, bytes int64, format record.Format) {
	if l.metrics == nil {
		return
	}
	l.metrics.IncLoads(l.config.Database, l.config.Table, status)
	l.metrics.ObserveLoad(l.config.Database, l.config.Table, time.Since(started).Seconds(), float64(bytes))
	l.metrics.BytesStreamed.WithLabelValues(l.config.Database, l.config.Table, string(format)).Add(float64(bytes))
}

// nextEndpoint rotates through the configured frontends.
func (l *Loader) nextEndpoint() string {
	idx := l.endpointIdx.Add(1)
	return l.config.Endpoints[int(idx-1)%len(l.config.Endpoints)]
}

// newLabel generates a unique load label so the endpoint can deduplicate
// replayed batches.
func (l *Loader) newLabel() string {
	var buf [8]byte
	rand.Read(buf[:])
	return fmt.Sprintf("rowload_%s_%s_%d_%s",
		l.config.Database, l.config.Table, time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

// countingReader counts bytes handed to the transport and keeps the
// first body error. The transport reports a body failure as a broken
// connection, which loses the cause; the kept error restores it.
type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF && c.err == nil {
		c.err = err
	}
	return n, err
}
