package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix prefixes dead-letter topics.
const DLQTopicPrefix = "ecommerce.dlq"

// DLQTopic returns the dead-letter topic for originalTopic.
func DLQTopic(originalTopic string) string {
	return DLQTopicPrefix + "." + originalTopic
}

// DeadLetterer receives messages a consumer gave up on.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg kafka.Message, cause error, group string) error
}

// DLQProducer copies failed messages onto their dead-letter topic.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewDLQProducer creates a dead-letter producer for brokers.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              1,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &DLQProducer{writer: w, logger: logger}
}

// DeadLetter publishes msg with headers describing where it came from.
func (d *DLQProducer) DeadLetter(ctx context.Context, msg kafka.Message, cause error, group string) error {
	topic := DLQTopic(msg.Topic)

	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(group)},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())})
	}

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	d.logger.WarnContext(ctx, "message sent to dead-letter topic",
		slog.String("dlq_topic", topic),
		slog.String("original_topic", msg.Topic),
		slog.Int64("offset", msg.Offset),
	)
	return nil
}

// Close closes the underlying writer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
