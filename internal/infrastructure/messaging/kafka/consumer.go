package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
)

// Handler processes one decoded event. Returning an error leaves the offset
// uncommitted so the message is redelivered.
type Handler func(ctx context.Context, env *EventEnvelope) error

// readerInterface abstracts kafka.Reader for testing.
type readerInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic within a consumer group and dispatches to a
// handler with bounded retries.
type Consumer struct {
	reader         readerInterface
	logger         logging.Logger
	metrics        *metrics.Metrics
	topic          string
	maxRetries     int
	retryBackoff   time.Duration
	handlerTimeout time.Duration
}

// ConsumerOptions tune retry behavior; zero values take worker defaults.
// Metrics may be nil.
type ConsumerOptions struct {
	MaxRetries     int
	RetryBackoff   time.Duration
	HandlerTimeout time.Duration
	Metrics        *metrics.Metrics
}

// NewConsumer builds a group consumer for one topic.
func NewConsumer(cfg config.KafkaConfig, topic string, opts ConsumerOptions, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if topic == "" {
		return nil, errors.New(errors.ErrCodeValidation, "topic required")
	}

	startOffset := kafka.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
	return newConsumer(reader, topic, opts, log), nil
}

// NewConsumerWithReader wraps an existing reader (for testing).
func NewConsumerWithReader(r readerInterface, topic string, opts ConsumerOptions, log logging.Logger) *Consumer {
	return newConsumer(r, topic, opts, log)
}

func newConsumer(r readerInterface, topic string, opts ConsumerOptions, log logging.Logger) *Consumer {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.HandlerTimeout == 0 {
		opts.HandlerTimeout = 30 * time.Second
	}
	return &Consumer{
		reader:         r,
		logger:         log.With(logging.String("topic", topic)),
		metrics:        opts.Metrics,
		topic:          topic,
		maxRetries:     opts.MaxRetries,
		retryBackoff:   opts.RetryBackoff,
		handlerTimeout: opts.HandlerTimeout,
	}
}

// Run fetches, decodes, and handles messages until ctx is cancelled.
// Messages that exhaust retries are committed and dropped with an error log
// so one poison message cannot wedge the partition.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch message")
		}

		if err := c.handleWithRetry(ctx, msg, handler); err != nil {
			c.logger.Error("dropping message after retries",
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
			c.observe("dropped")
		} else {
			c.observe("ok")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to commit offset")
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, handler Handler) error {
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// Undecodable messages never become decodable; don't retry.
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}

		handlerCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
		lastErr = handler(handlerCtx, &env)
		cancel()
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("event handler failed",
			logging.String("event_id", env.EventID),
			logging.Int("attempt", attempt+1),
			logging.Err(lastErr),
		)
	}
	return lastErr
}

func (c *Consumer) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.MessagesProcessedTotal.WithLabelValues(c.topic, outcome).Inc()
	}
}

// Close shuts the reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
