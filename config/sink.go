package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultRegion is assumed when neither direct nor registry config names one
const DefaultRegion = "cn-beijing"

// SinkConfig describes the remote log-ingestion endpoint. It is read-only once
// the shipper is built; changing it means calling Manager.Reconfigure.
type SinkConfig struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`                   // scheme selects the transport: https://, kafka://, postgres://, grpc://, mock://
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`         // Credential id sent with every request
	AccessKeySecret string `yaml:"access_key_secret" json:"access_key_secret"` // Used to sign request bodies, never sent
	Token           string `yaml:"token" json:"token"`                         // Optional temporary security token
	Region          string `yaml:"region" json:"region"`
	TopicID         string `yaml:"topic_id" json:"topic_id"`         // Destination topic/stream
	ServiceName     string `yaml:"service_name" json:"service_name"` // Label stamped on every shipped record
}

// Complete reports whether the sink has the fields required to ship anything.
// An incomplete sink leaves the shipper disabled rather than failing startup.
func (c SinkConfig) Complete() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.TopicID) != ""
}

// Merge fills empty fields of c from other and returns the result
func (c SinkConfig) Merge(other SinkConfig) SinkConfig {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return SinkConfig{
		Endpoint:        pick(c.Endpoint, other.Endpoint),
		AccessKeyID:     pick(c.AccessKeyID, other.AccessKeyID),
		AccessKeySecret: pick(c.AccessKeySecret, other.AccessKeySecret),
		Token:           pick(c.Token, other.Token),
		Region:          pick(c.Region, other.Region),
		TopicID:         pick(c.TopicID, other.TopicID),
		ServiceName:     pick(c.ServiceName, other.ServiceName),
	}
}

// String renders the sink without secrets
func (c SinkConfig) String() string {
	return fmt.Sprintf("endpoint=%s region=%s topic=%s service=%s credentials=%t",
		c.Endpoint, c.Region, c.TopicID, c.ServiceName, c.AccessKeyID != "")
}

// ParseSinkConfigJSON decodes a sink document fetched from the config
// registry. Both the VOLCENGINE_* key style and plain snake_case keys are
// accepted; a document with neither endpoint key yields an empty config.
func ParseSinkConfigJSON(raw string) (SinkConfig, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return SinkConfig{}, fmt.Errorf("failed to parse sink config document: %w", err)
	}

	str := func(key string) string {
		v, ok := doc[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}

	var cfg SinkConfig
	switch {
	case str("VOLCENGINE_ENDPOINT") != "":
		cfg = SinkConfig{
			Endpoint:        str("VOLCENGINE_ENDPOINT"),
			AccessKeyID:     str("VOLCENGINE_ACCESS_KEY_ID"),
			AccessKeySecret: str("VOLCENGINE_ACCESS_KEY_SECRET"),
			Region:          str("VOLCENGINE_REGION"),
			Token:           str("VOLCENGINE_TOKEN"),
			TopicID:         str("VOLCENGINE_TOPIC_ID"),
		}
	case str("endpoint") != "":
		cfg = SinkConfig{
			Endpoint:        str("endpoint"),
			AccessKeyID:     str("access_key_id"),
			AccessKeySecret: str("access_key_secret"),
			Region:          str("region"),
			Token:           str("token"),
			TopicID:         str("topic_id"),
		}
	default:
		return SinkConfig{}, nil
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// HTTPSinkConfig tunes the HTTP transport
type HTTPSinkConfig struct {
	Compression string        `yaml:"compression"` // zstd, gzip or none
	Timeout     time.Duration `yaml:"timeout"`     // Per-request timeout
	Path        string        `yaml:"path"`        // Ingest path appended to the endpoint
}

// SetDefaults sets reasonable default values for the HTTP transport
func (c *HTTPSinkConfig) SetDefaults() {
	if c.Compression == "" {
		c.Compression = "zstd"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Path == "" {
		c.Path = "/api/v1/logs"
	}
}

// GRPCSinkConfig tunes the gRPC transport
type GRPCSinkConfig struct {
	Method  string        `yaml:"method"`  // Full method name of the unary ingest call
	Timeout time.Duration `yaml:"timeout"` // Per-call timeout
	UseTLS  bool          `yaml:"use_tls"`
}

// SetDefaults sets reasonable default values for the gRPC transport
func (c *GRPCSinkConfig) SetDefaults() {
	if c.Method == "" {
		c.Method = "/svckit.logship.v1.LogIngestion/PutLogs"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}
