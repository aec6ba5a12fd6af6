package config

import (
	"fmt"
	"time"
)

// KafkaSinkConfig defines how shipped batches are written to Kafka.
// Brokers come from the sink endpoint (kafka://host1:9092,host2:9092).
type KafkaSinkConfig struct {
	BatchBytes   int           `yaml:"batch_bytes"`
	RequiredAcks string        `yaml:"required_acks"` // none, one, all
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// SetDefaults sets reasonable default values for the Kafka transport
func (c *KafkaSinkConfig) SetDefaults() {
	if c.BatchBytes == 0 {
		c.BatchBytes = 5 * 1024 * 1024
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "one"
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
}

// KafkaConsumerConfig defines configuration for the logtail consumer
type KafkaConsumerConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	GroupID           string   `yaml:"group_id"`
	SessionTimeout    string   `yaml:"session_timeout"`
	HeartbeatInterval string   `yaml:"heartbeat_interval"`
	AutoOffsetReset   string   `yaml:"auto_offset_reset"` // earliest/latest
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if c.GroupID == "" {
		c.GroupID = "svckit-logtail"
		fmt.Printf("Warning: kafka_consumer.group_id not set, defaulting to %s\n", c.GroupID)
	}
	if c.SessionTimeout == "" {
		c.SessionTimeout = "30s"
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = "3s"
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "latest"
	}
}

// Validate checks the consumer has somewhere to read from
func (c *KafkaConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 || c.Topic == "" {
		return fmt.Errorf("kafka consumer configuration incomplete: brokers and topic are required")
	}
	return nil
}
