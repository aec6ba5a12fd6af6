package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/segmentio/kafka-go"

	"svckit/config"
)

// KafkaTransport writes every entry as one Kafka message on the batch topic.
// Entries sharing a trace id land on the same partition.
type KafkaTransport struct {
	writer  *kafka.Writer
	logger  *log.Logger
	brokers []string
}

// ParseKafkaBrokers extracts the broker list from kafka://host1:9092,host2:9092
func ParseKafkaBrokers(endpoint string) ([]string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka endpoint %q: %w", endpoint, err)
	}
	var brokers []string
	for _, b := range strings.Split(u.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka endpoint names no brokers")
	}
	return brokers, nil
}

// NewKafkaTransport creates a synchronous writer; the shipper owns retries so
// the writer must report every failure back.
func NewKafkaTransport(sink config.SinkConfig, cfg config.KafkaSinkConfig, logger *log.Logger) (*KafkaTransport, error) {
	brokers, err := ParseKafkaBrokers(sink.Endpoint)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	var requiredAcks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "all":
		requiredAcks = kafka.RequireAll
	default:
		requiredAcks = kafka.RequireOne // Default to wait for leader
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},

		BatchBytes:   int64(cfg.BatchBytes),
		RequiredAcks: requiredAcks,
		Async:        false,

		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		// Topic creation is left to the cluster operator
		AllowAutoTopicCreation: false,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			if logger != nil {
				logger.Printf("Kafka Writer Error: "+msg, args...)
			}
		}),
	}

	if logger != nil {
		logger.Printf("Kafka log transport created, brokers: %v", brokers)
	}
	return &KafkaTransport{writer: w, logger: logger, brokers: brokers}, nil
}

// PutLogs implements Transport
func (k *KafkaTransport) PutLogs(ctx context.Context, topic string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(entries))
	for i, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to serialize log entry: %w", err)
		}
		msgs[i] = kafka.Message{
			Topic: topic,
			Key:   []byte(e.TraceID()),
			Value: value,
		}
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d log entries to kafka topic %s: %w", len(msgs), topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *KafkaTransport) Close() error {
	if k.logger != nil {
		k.logger.Println("Closing Kafka log transport...")
	}
	return k.writer.Close()
}

var _ Transport = (*KafkaTransport)(nil) // Compile-time interface check
