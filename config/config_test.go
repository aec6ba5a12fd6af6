package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadLoggerConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "logger.yml", `
service_name: billing
remote:
  enabled: true
  batch_size: 3
  batch_timeout_seconds: 0.5
  sink:
    endpoint: mock://local
    topic_id: topic-1
  http:
    timeout: 2s
registry:
  address: "10.0.0.1:8848, 10.0.0.2:8848"
`)

	cfg, err := LoadLoggerConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Console.Enabled, "console stays on when the file does not mention it")
	assert.Equal(t, "INFO", cfg.Console.Level)
	assert.Equal(t, 3, cfg.Remote.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Remote.BatchTimeout())
	assert.Equal(t, 10000, cfg.Remote.QueueCapacity)
	assert.Equal(t, 2, cfg.Remote.WorkerCount)
	assert.Equal(t, 3, cfg.Remote.RetryTimes)
	assert.Equal(t, time.Second, cfg.Remote.RetryDelay())
	assert.Equal(t, 2*time.Second, cfg.Remote.ShutdownTimeout())
	assert.Equal(t, "billing", cfg.Remote.Sink.ServiceName)
	assert.Equal(t, 2*time.Second, cfg.Remote.HTTP.Timeout)
	assert.Equal(t, "zstd", cfg.Remote.HTTP.Compression)
	assert.Equal(t, "10.0.0.1:8848", cfg.Registry.Address)
	assert.Equal(t, []string{"tls.log.config", "volcengine.json"}, cfg.Registry.ConfigKeys)
}

func TestLoadLoggerConfigRejectsBadLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "logger.yml", "level: loud\n")

	_, err := LoadLoggerConfig(path)
	assert.Error(t, err)
}

func TestLoadLoggerConfigRejectsBatchLargerThanQueue(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "logger.yml", "remote:\n  batch_size: 50\n  queue_capacity: 10\n")

	_, err := LoadLoggerConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "logtail.defaults.yml", `
kafka_consumer:
  brokers: ["kafka:9092"]
  topic: logs
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Logger)
	assert.False(t, cfg.Logger.Remote.Enabled)
	require.NotNil(t, cfg.KafkaConsumer)
	assert.Equal(t, "svckit-logtail", cfg.KafkaConsumer.GroupID)
	assert.Equal(t, "latest", cfg.KafkaConsumer.AutoOffsetReset)
}

func TestBundledDefaultsLoad(t *testing.T) {
	cfg, err := LoadConfig(".")
	require.NoError(t, err)
	assert.Equal(t, "order-service", cfg.Logger.ServiceName)
	assert.True(t, cfg.Logger.Remote.Enabled)
	require.NotNil(t, cfg.KafkaConsumer)
	assert.Equal(t, "service-logs", cfg.KafkaConsumer.Topic)
}

func TestRegistryApplyEnv(t *testing.T) {
	t.Setenv("NACOS_ADDRESS", "nacos:8848")
	t.Setenv("NACOS_NAMESPACE", "prod")
	t.Setenv("NACOS_USERNAME", "svc")
	t.Setenv("NACOS_PASSWORD", "secret")

	var reg RegistryConfig
	reg.ApplyEnv()
	reg.SetDefaults()

	assert.Equal(t, "nacos:8848", reg.Address)
	assert.Equal(t, "prod", reg.Namespace)
	assert.Equal(t, "svc", reg.Username)
	assert.Equal(t, "DEFAULT_GROUP", reg.Group)
	assert.True(t, reg.Enabled())
}

func TestParseSinkConfigJSON(t *testing.T) {
	t.Run("volcengine keys", func(t *testing.T) {
		cfg, err := ParseSinkConfigJSON(`{
			"VOLCENGINE_ENDPOINT": "https://tls-cn-shanghai.example.com",
			"VOLCENGINE_ACCESS_KEY_ID": "ak",
			"VOLCENGINE_ACCESS_KEY_SECRET": "sk",
			"VOLCENGINE_REGION": "cn-shanghai",
			"VOLCENGINE_TOKEN": "tok"
		}`)
		require.NoError(t, err)
		assert.Equal(t, "https://tls-cn-shanghai.example.com", cfg.Endpoint)
		assert.Equal(t, "ak", cfg.AccessKeyID)
		assert.Equal(t, "sk", cfg.AccessKeySecret)
		assert.Equal(t, "cn-shanghai", cfg.Region)
		assert.Equal(t, "tok", cfg.Token)
	})

	t.Run("plain keys default region", func(t *testing.T) {
		cfg, err := ParseSinkConfigJSON(`{"endpoint": "mock://x", "topic_id": "t"}`)
		require.NoError(t, err)
		assert.Equal(t, "mock://x", cfg.Endpoint)
		assert.Equal(t, DefaultRegion, cfg.Region)
		assert.True(t, cfg.Complete())
	})

	t.Run("no endpoint", func(t *testing.T) {
		cfg, err := ParseSinkConfigJSON(`{"region": "x"}`)
		require.NoError(t, err)
		assert.False(t, cfg.Complete())
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseSinkConfigJSON(`{not json`)
		assert.Error(t, err)
	})
}

func TestSinkConfigMergeAndString(t *testing.T) {
	direct := SinkConfig{TopicID: "topic", ServiceName: "svc"}
	fetched := SinkConfig{Endpoint: "https://x", AccessKeyID: "ak", AccessKeySecret: "sk", TopicID: "other"}

	merged := direct.Merge(fetched)
	assert.Equal(t, "https://x", merged.Endpoint)
	assert.Equal(t, "topic", merged.TopicID)
	assert.Equal(t, "svc", merged.ServiceName)
	assert.NotContains(t, merged.String(), "sk")
}
