package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/utafrali/storefront/pkg/logger"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MinBytes   int
	MaxBytes   int
	MaxRetries int
	RetryDelay time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group and feeds a Handler.
// Messages are committed after handling; a message whose handler keeps
// failing is dead-lettered (when configured) and committed so the partition
// keeps moving.
type Consumer struct {
	reader     messageReader
	topic      string
	group      string
	handler    Handler
	dlq        DeadLetterer
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
	closeOnce  sync.Once
}

// NewConsumer creates a consumer for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq DeadLetterer, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, dlq, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, dlq DeadLetterer, logger *slog.Logger) *Consumer {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Consumer{
		reader:     r,
		topic:      cfg.Topic,
		group:      cfg.GroupID,
		handler:    handler,
		dlq:        dlq,
		maxRetries: retries,
		retryDelay: delay,
		logger:     logger,
	}
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.String("topic", c.topic), slog.String("group", c.group))
	defer c.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("topic", c.topic), slog.String("error", err.Error()))
			continue
		}

		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process handles msg with retries. It returns false only when ctx ended
// mid-retry, in which case the message must not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("dropping undecodable message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.deadLetter(ctx, msg, err)
		return true
	}

	ctx = extractTrace(ctx, &msg)
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			break
		}
		c.logger.WarnContext(ctx, "handler failed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.maxRetries),
			slog.String("error", lastErr.Error()),
		)
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	consumerDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		consumerFailed.WithLabelValues(msg.Topic, c.group).Inc()
		c.logger.ErrorContext(ctx, "handler failed after all retries, skipping message",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
			slog.String("error", lastErr.Error()),
		)
		c.deadLetter(ctx, msg, lastErr)
		return true
	}

	consumerProcessed.WithLabelValues(msg.Topic, c.group).Inc()
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.DeadLetter(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "failed to dead-letter message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
