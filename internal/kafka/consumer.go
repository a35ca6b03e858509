// Package kafka implements the Kafka row source.
//
// Messages are consumed through a Sarama consumer group, decoded into
// rows against the configured schema, and handed to the pipeline with a
// per-row commit callback. Offsets are only marked after the row's
// batch has been loaded, so a crash replays uncommitted rows.
package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"

	"github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/internal/observability"
	"github.com/jittakal/rowload/pkg/consumer"
	"github.com/jittakal/rowload/pkg/record"
)

// Ensure implementation satisfies interfaces at compile time.
var _ consumer.Consumer = (*SaramaConsumer)(nil)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	GroupID             string
	SecurityProtocol    string
	SASLMechanism       string
	SASLUsername        string
	SASLPassword        string
	AWSRegion           string
	AutoOffsetReset     string
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
}

// SaramaConsumer implements consumer.Consumer using the Sarama library.
// It supports consumer groups, manual offset management, and the usual
// security protocols including AWS MSK IAM.
type SaramaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	decoder       *RowDecoder
	logger        *slog.Logger
	metrics       *observability.Metrics
	topics        []string
	ready         chan bool
	mu            sync.RWMutex
	closed        bool
}

// NewSaramaConsumer creates a new Kafka consumer. Rows are decoded
// against schema in the given format.
func NewSaramaConsumer(
	config ConsumerConfig,
	schema *record.Schema,
	format record.Format,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*SaramaConsumer, error) {
	if len(config.BootstrapServers) == 0 {
		return nil, &errors.ConfigError{Field: "kafka.bootstrap_servers", Reason: "at least one broker is required"}
	}
	if config.GroupID == "" {
		return nil, &errors.ConfigError{Field: "kafka.group_id", Reason: "group id is required"}
	}

	decoder, err := NewRowDecoder(schema, format)
	if err != nil {
		return nil, err
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)

	// Offsets are committed manually after a successful load; auto
	// commit would acknowledge rows that were never loaded.
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = false

	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond

	// max_poll_interval_ms prevents rebalancing while a load is in
	// flight.
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	saramaConfig.Consumer.Return.Errors = true

	if err := configureSecurity(saramaConfig, config); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"format", format,
		"session_timeout_ms", config.SessionTimeoutMS,
		"max_poll_interval_ms", config.MaxPollIntervalMS,
	)

	return &SaramaConsumer{
		consumerGroup: consumerGroup,
		config:        config,
		decoder:       decoder,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan bool),
	}, nil
}

// Subscribe subscribes to the specified topics.
func (c *SaramaConsumer) Subscribe(ctx context.Context, topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrConsumerClosed
	}
	if len(topics) == 0 {
		return &errors.ConfigError{Field: "kafka.topics", Reason: "at least one topic is required"}
	}

	c.topics = topics
	c.logger.Info("subscribed to topics", "topics", topics)
	return nil
}

// Consume starts consuming messages and returns channels for decoded
// rows and errors.
func (c *SaramaConsumer) Consume(ctx context.Context) (<-chan *consumer.ConsumedRow, <-chan error, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, errors.ErrConsumerClosed
	}
	topics := c.topics
	c.mu.RUnlock()

	if len(topics) == 0 {
		return nil, nil, &errors.ConfigError{Field: "kafka.topics", Reason: "subscribe before consuming"}
	}

	rowChan := make(chan *consumer.ConsumedRow, 100)
	errorChan := make(chan error, 10)

	handler := &consumerGroupHandler{
		consumer:  c,
		rowChan:   rowChan,
		errorChan: errorChan,
		ready:     c.ready,
	}

	go func() {
		defer close(rowChan)
		defer close(errorChan)

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("consumer context cancelled")
				return
			default:
				if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
					c.logger.Error("consumer group error", "error", err)
					errorChan <- err
					return
				}
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()

	<-c.ready

	c.logger.Info("kafka consumer started and ready")
	return rowChan, errorChan, nil
}

// Close closes the consumer and releases resources.
func (c *SaramaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Info("closing kafka consumer")

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer  *SaramaConsumer
	rowChan   chan<- *consumer.ConsumedRow
	errorChan chan<- error
	ready     chan bool
	readyOnce sync.Once
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim
// goroutines have exited.
func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from a partition.
func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	topic := claim.Topic()
	partition := claim.Partition()
	partitionLabel := strconv.FormatInt(int64(partition), 10)

	h.consumer.logger.Info("started consuming partition",
		"topic", topic,
		"partition", partition,
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if h.consumer.metrics != nil {
				h.consumer.metrics.IncMessagesConsumed(message.Topic, partitionLabel)
			}

			row, err := h.consumer.decoder.Decode(message.Value)
			if err != nil {
				h.consumer.logger.Error("failed to decode row",
					"error", err,
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
				)
				if h.consumer.metrics != nil {
					h.consumer.metrics.DecodeFailures.WithLabelValues(message.Topic, partitionLabel).Inc()
				}
				// Undecodable messages are acknowledged so one poison
				// message cannot wedge the partition.
				session.MarkMessage(message, "")
				continue
			}

			if h.consumer.metrics != nil {
				h.consumer.metrics.RowsDecoded.WithLabelValues(message.Topic, partitionLabel).Inc()
			}

			consumed := &consumer.ConsumedRow{
				Row: row,
				Metadata: consumer.Metadata{
					Topic:     message.Topic,
					Partition: message.Partition,
					Offset:    message.Offset,
					Timestamp: message.Timestamp,
					Headers:   extractHeaders(message.Headers),
				},
				CommitFunc: func() error {
					session.MarkMessage(message, "")
					if h.consumer.metrics != nil {
						h.consumer.metrics.OffsetCommits.WithLabelValues(message.Topic, partitionLabel, "success").Inc()
					}
					return nil
				},
			}

			select {
			case h.rowChan <- consumed:
			case <-session.Context().Done():
				return nil
			}

		case <-session.Context().Done():
			h.consumer.logger.Info("session context done, stopping partition consumption",
				"topic", topic,
				"partition", partition,
			)
			return nil
		}
	}
}

// extractHeaders extracts headers from a Kafka message.
func extractHeaders(headers []*sarama.RecordHeader) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	result := make(map[string]string, len(headers))
	for _, header := range headers {
		result[string(header.Key)] = string(header.Value)
	}
	return result
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS
// MSK IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": fmt.Sprintf("%d", expiryMs),
		},
	}, nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset
// constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	case "latest":
		return sarama.OffsetNewest
	default:
		return sarama.OffsetNewest
	}
}

func configureSecurity(config *sarama.Config, kafkaConfig ConsumerConfig) error {
	switch kafkaConfig.SecurityProtocol {
	case "", "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true

		switch kafkaConfig.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword

		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
			}

		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
			}

		case "AWS_MSK_IAM":
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
			config.Net.SASL.Enable = true

			// OAuth does not use username/password, but Sarama
			// requires them to pass validation.
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"

			region := kafkaConfig.AWSRegion
			if region == "" {
				region = "us-east-1"
			}
			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{region: region}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", kafkaConfig.SASLMechanism)
		}

		if kafkaConfig.SecurityProtocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
			config.Net.TLS.Config = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

	case "SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

	default:
		return fmt.Errorf("unsupported security protocol: %s", kafkaConfig.SecurityProtocol)
	}

	return nil
}
