package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/rowload/internal/archive"
	"github.com/jittakal/rowload/internal/config"
	"github.com/jittakal/rowload/internal/config/dto"
	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/internal/kafka"
	"github.com/jittakal/rowload/internal/load"
	"github.com/jittakal/rowload/internal/observability"
	"github.com/jittakal/rowload/internal/rowbuf"
	"github.com/jittakal/rowload/internal/server"
	"github.com/jittakal/rowload/internal/stream"
	"github.com/jittakal/rowload/internal/validator"
	pkgarchive "github.com/jittakal/rowload/pkg/archive"
	"github.com/jittakal/rowload/pkg/batch"
	"github.com/jittakal/rowload/pkg/consumer"
	"github.com/jittakal/rowload/pkg/record"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting rowload",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, fn)
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	// Schema and format
	format, err := record.ParseFormat(cfg.Source.Format)
	if err != nil {
		return err
	}
	schema, err := cfg.Source.RecordSchema()
	if err != nil {
		return err
	}
	if err := validator.NewSchemaValidator().Validate(schema, format); err != nil {
		return fmt.Errorf("invalid source schema: %w", err)
	}

	// Kafka consumer
	consumerConfig := kafka.ConsumerConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		SecurityProtocol:    cfg.Kafka.SecurityProtocol,
		SASLMechanism:       cfg.Kafka.SASLMechanism,
		SASLUsername:        cfg.Kafka.SASLUsername,
		SASLPassword:        cfg.Kafka.SASLPassword,
		AWSRegion:           cfg.Kafka.AWSRegion,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
	}
	kafkaConsumer, err := kafka.NewSaramaConsumer(consumerConfig, schema, format, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	addCleanup("kafka-consumer", kafkaConsumer.Close)

	// Stream-load client
	retry := load.Backoff{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
		Multiplier:     cfg.Retry.BackoffMultiplier,
		Jitter:         cfg.Retry.Jitter,
		OnRetry: func(attempt int, err error) {
			metrics.LoadRetries.WithLabelValues(cfg.Load.Database, cfg.Load.Table).Inc()
			logger.Warn("retrying stream load", "attempt", attempt, "error", err)
		},
	}
	streamLoader, err := load.NewLoader(load.Config{
		Endpoints:       cfg.Load.Endpoints,
		Database:        cfg.Load.Database,
		Table:           cfg.Load.Table,
		Username:        cfg.Load.Username,
		Password:        cfg.Load.Password,
		ColumnSeparator: cfg.Load.ColumnSeparator,
		LineDelimiter:   cfg.Load.LineDelimiter,
		Quote:           cfg.Load.Quote,
		Compression:     cfg.Load.Compression,
		Properties:      cfg.Load.Properties,
		Timeout:         time.Duration(cfg.Load.TimeoutSeconds) * time.Second,
	}, retry, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create loader: %w", err)
	}

	// Failed-batch archive
	var archiver pkgarchive.Archiver
	var archiveRouter pkgarchive.Router
	if cfg.Archive.Enabled {
		archiver, err = newArchiver(cfg, logger, metrics)
		if err != nil {
			return fmt.Errorf("failed to create archiver: %w", err)
		}
		archiveRouter = archive.NewRouter(cfg.Archive.BasePath)
		addCleanup("archiver", archiver.Close)
	}

	// Row buffer and flush policy
	buffer := rowbuf.New(0, 0)
	policy := rowbuf.NewPolicy(rowbuf.PolicyConfig{
		MaxBatchSizeMB:     int64(cfg.Batching.MaxBatchSizeMB),
		MaxRowsPerBatch:    cfg.Batching.MaxRowsPerBatch,
		MaxBatchAgeSeconds: cfg.Batching.MaxBatchAgeSeconds,
	})

	// HTTP surface
	health := server.NewPipelineHealth()
	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		health,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	logger.Info("application started successfully")

	if err := kafkaConsumer.Subscribe(context.Background(), cfg.Kafka.Consumer.Topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rowChan, errorChan, err := kafkaConsumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	health.SetConsumerReady(true)

	pipeline := &pipeline{
		cfg:           cfg,
		schema:        schema,
		format:        format,
		buffer:        buffer,
		policy:        policy,
		loader:        streamLoader,
		archiver:      archiver,
		archiveRouter: archiveRouter,
		health:        health,
		logger:        logger,
		metrics:       metrics,
	}

	pipelineErrChan := make(chan error, 1)
	go func() {
		pipelineErrChan <- pipeline.run(ctx, rowChan, errorChan)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received termination signal")
	case err := <-pipelineErrChan:
		if err != nil {
			logger.Error("pipeline error", "error", err)
			return err
		}
	}

	logger.Info("initiating graceful shutdown")
	health.SetConsumerReady(false)
	cancel()

	// Let the in-flight load and offset commits finish.
	select {
	case <-pipelineErrChan:
	case <-time.After(cfg.Shutdown.GracePeriodSeconds * time.Second):
		logger.Warn("grace period expired before pipeline stopped")
	}

	logger.Info("application stopped successfully")
	return nil
}

// newArchiver creates the configured archive backend.
func newArchiver(cfg *dto.ApplicationConfig, logger *slog.Logger, metrics *observability.Metrics) (pkgarchive.Archiver, error) {
	switch cfg.Archive.Backend {
	case "file":
		return archive.NewFileArchiver(archive.FileConfig{
			BasePath: cfg.Archive.File.BasePath,
		}, logger, metrics)
	case "s3":
		return archive.NewS3Archiver(archive.S3Config{
			Bucket:       cfg.Archive.S3.Bucket,
			Region:       cfg.Archive.S3.Region,
			Endpoint:     cfg.Archive.S3.Endpoint,
			UsePathStyle: cfg.Archive.S3.UsePathStyle,
			SSEEnabled:   cfg.Archive.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.Archive.S3.SSEKMSKeyID,
		}, logger, metrics)
	case "gcs":
		return archive.NewGCSArchiver(archive.GCSConfig{
			Bucket:               cfg.Archive.GCS.Bucket,
			ProjectID:            cfg.Archive.GCS.ProjectID,
			CredentialsFile:      cfg.Archive.GCS.CredentialsFile,
			CredentialsJSON:      cfg.Archive.GCS.CredentialsJSON,
			UseDefaultCredential: cfg.Archive.GCS.UseDefaultCredential,
		}, logger, metrics)
	case "azure":
		return archive.NewAzureArchiver(archive.AzureConfig{
			AccountName:   cfg.Archive.Azure.AccountName,
			AccountKey:    os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
			ContainerName: cfg.Archive.Azure.Container,
		}, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s (supported: file, s3, gcs, azure)", cfg.Archive.Backend)
	}
}

// pipeline buffers consumed rows and flushes them to the load endpoint
// when the policy trips.
type pipeline struct {
	cfg           *dto.ApplicationConfig
	schema        *record.Schema
	format        record.Format
	buffer        *rowbuf.Buffer
	policy        rowbuf.FlushPolicy
	loader        *load.Loader
	archiver      pkgarchive.Archiver
	archiveRouter pkgarchive.Router
	health        *server.PipelineHealth
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// run consumes rows until the context ends. Offsets are committed only
// after their batch is loaded or archived, so nothing acknowledged is
// ever lost.
func (p *pipeline) run(
	ctx context.Context,
	rowChan <-chan *consumer.ConsumedRow,
	errorChan <-chan error,
) error {
	var pendingCommits []func() error

	// The age criterion must fire even when no rows arrive.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	flush := func() {
		if p.buffer.IsEmpty() {
			return
		}
		rows := p.buffer.Drain()
		p.updateBufferGauges()

		if err := p.loadBatch(ctx, rows); err != nil {
			p.logger.Error("batch lost after failed load and archive",
				"rows", len(rows),
				"error", err,
			)
			// Offsets stay uncommitted; the rows replay after restart.
			pendingCommits = nil
			return
		}

		for _, commit := range pendingCommits {
			if err := commit(); err != nil {
				p.logger.Error("failed to commit offset", "error", err)
			}
		}
		pendingCommits = nil
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, flushing remaining rows")
			flush()
			return nil

		case err := <-errorChan:
			if err != nil {
				p.logger.Error("consumer error", "error", err)
			}

		case <-ticker.C:
			if p.policy.ShouldFlush(p.buffer.Stats()) {
				flush()
			}

		case consumed, ok := <-rowChan:
			if !ok {
				p.logger.Info("row channel closed, flushing remaining rows")
				flush()
				return nil
			}

			if err := p.buffer.Add(consumed.Row); err != nil {
				if stderrors.Is(err, errors.ErrBufferFull) {
					flush()
					if err := p.buffer.Add(consumed.Row); err != nil {
						return fmt.Errorf("row does not fit an empty buffer: %w", err)
					}
				} else {
					return err
				}
			}
			if consumed.CommitFunc != nil {
				pendingCommits = append(pendingCommits, consumed.CommitFunc)
			}
			p.updateBufferGauges()

			if p.policy.ShouldFlush(p.buffer.Stats()) {
				flush()
			}
		}
	}
}

// loadBatch streams one drained batch to the load endpoint. Permanently
// rejected batches are archived for replay when an archive is
// configured.
func (p *pipeline) loadBatch(ctx context.Context, rows []record.Record) error {
	newSource := func() batch.Source {
		return batch.NewSliceSource(rows, batch.SliceSourceConfig{
			Schema:    p.schema,
			Format:    p.format,
			Delimiter: []byte(p.cfg.Load.LineDelimiter),
			BlockSize: p.cfg.Load.BlockSize,
		})
	}

	result, err := p.loader.Load(ctx, newSource)
	if err == nil {
		p.health.RecordLoadSuccess()
		p.metrics.RowsStreamed.WithLabelValues(p.cfg.Load.Database, p.cfg.Load.Table, string(p.format)).
			Add(float64(len(rows)))
		p.logger.Info("batch loaded",
			"rows", len(rows),
			"label", result.Label,
			"loaded_rows", result.LoadedRows,
		)
		return nil
	}

	p.health.RecordLoadFailure(err)

	if errors.IsRetryable(err) || p.archiver == nil {
		// Retries are exhausted or there is nowhere to park the batch.
		return err
	}

	// Permanent rejection: archive the encoded bytes for replay.
	key := p.archiveRouter.Route(
		p.cfg.Load.Database,
		p.cfg.Load.Table,
		fmt.Sprintf("batch_%d", time.Now().UnixMilli()),
		time.Now(),
		p.format,
	)
	reader := stream.NewReader(newSource(), stream.Options{
		ColumnSeparator: []byte(p.cfg.Load.ColumnSeparator),
		Quote:           p.cfg.Load.Quote,
		Compression:     p.cfg.Load.Compression,
	})
	defer reader.Close()

	written, archiveErr := p.archiver.Archive(ctx, key, reader)
	if archiveErr != nil {
		return fmt.Errorf("load rejected and archive failed: %w", stderrors.Join(err, archiveErr))
	}

	p.logger.Warn("rejected batch archived for replay",
		"rows", len(rows),
		"key", key,
		"bytes", written,
		"load_error", err,
	)
	return nil
}

// updateBufferGauges publishes the current buffer stats.
func (p *pipeline) updateBufferGauges() {
	stats := p.buffer.Stats()
	p.metrics.BufferedRows.WithLabelValues(p.cfg.Load.Database, p.cfg.Load.Table).
		Set(float64(stats.RecordCount))
	p.metrics.BufferedBytes.WithLabelValues(p.cfg.Load.Database, p.cfg.Load.Table).
		Set(float64(stats.SizeBytes))
}
