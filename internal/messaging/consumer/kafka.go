package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"svckit/config"
	"svckit/internal/sink"
)

// KafkaConsumer reads back the entries the Kafka log transport wrote, one
// JSON-encoded sink.Entry per message.
type KafkaConsumer struct {
	reader *kafka.Reader
	topic  string
	logger *log.Logger
}

// NewKafkaConsumer joins cfg.GroupID on cfg.Topic. Offsets are committed only
// on ack(true).
func NewKafkaConsumer(cfg config.KafkaConsumerConfig, logger *log.Logger) (*KafkaConsumer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          1,
		MaxBytes:          4 << 20,
		MaxWait:           500 * time.Millisecond,
		SessionTimeout:    durationOr(cfg.SessionTimeout, 30*time.Second, "session_timeout", logger),
		HeartbeatInterval: durationOr(cfg.HeartbeatInterval, 3*time.Second, "heartbeat_interval", logger),
		StartOffset:       startOffset(cfg.AutoOffsetReset, logger),
	})
	logger.Printf("Tailing log topic %s on %v as group %s", cfg.Topic, cfg.Brokers, cfg.GroupID)
	return &KafkaConsumer{reader: r, topic: cfg.Topic, logger: logger}, nil
}

func durationOr(raw string, fallback time.Duration, name string, logger *log.Logger) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Printf("Warning: kafka_consumer.%s %q is not a positive duration, using %s", name, raw, fallback)
		return fallback
	}
	return d
}

// startOffset maps auto_offset_reset to where a new group begins reading
func startOffset(reset string, logger *log.Logger) int64 {
	switch reset {
	case "", "latest":
		return kafka.LastOffset
	case "earliest":
		return kafka.FirstOffset
	}
	logger.Printf("Warning: kafka_consumer.auto_offset_reset %q unknown, tailing from latest", reset)
	return kafka.LastOffset
}

// Consume implements Consumer. Messages that do not decode as entries are
// committed and skipped, so one bad producer cannot stall the tail.
func (k *KafkaConsumer) Consume(ctx context.Context) (*sink.Entry, func(success bool), error) {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil, ErrClosed
			}
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, nil, fmt.Errorf("fetch from %s failed: %w", k.topic, err)
		}

		entry, err := DecodeEntry(msg.Value)
		if err != nil {
			k.logger.Printf("Warning: skipping undecodable message at %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
			if cerr := k.reader.CommitMessages(ctx, msg); cerr != nil {
				k.logger.Printf("Warning: commit of skipped offset %d failed: %v", msg.Offset, cerr)
			}
			continue
		}
		if entry.TraceID() == "" && len(msg.Key) > 0 {
			entry.Contents[sink.KeyTraceID] = string(msg.Key)
		}

		return entry, k.acker(msg), nil
	}
}

func (k *KafkaConsumer) acker(msg kafka.Message) func(success bool) {
	return func(success bool) {
		if !success {
			// Left uncommitted; the group redelivers it after a rebalance or restart
			return
		}
		if err := k.reader.CommitMessages(context.Background(), msg); err != nil {
			k.logger.Printf("Warning: commit of offset %d failed: %v", msg.Offset, err)
		}
	}
}

// DecodeEntry parses one message value written by the Kafka transport
func DecodeEntry(value []byte) (*sink.Entry, error) {
	var entry sink.Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil, fmt.Errorf("entry deserialization failed: %w", err)
	}
	if entry.Contents == nil {
		return nil, errors.New("entry has no contents")
	}
	return &entry, nil
}

// Close leaves the consumer group
func (k *KafkaConsumer) Close() error {
	return k.reader.Close()
}

var _ Consumer = (*KafkaConsumer)(nil)
