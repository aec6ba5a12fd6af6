package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"svckit/internal/models"
)

// ConsoleConfig controls local console output
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// FileConfig controls local rotating file output
type FileConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RemoteConfig controls the asynchronous shipper and its pipeline sizing
type RemoteConfig struct {
	Enabled                bool    `yaml:"enabled"` // Master switch for the remote sink
	Level                  string  `yaml:"level"`
	BatchSize              int     `yaml:"batch_size"`               // Records per flush trigger
	BatchTimeoutSeconds    float64 `yaml:"batch_timeout_seconds"`    // Max age of a non-empty batch
	QueueCapacity          int     `yaml:"queue_capacity"`           // Bounded queue size
	WorkerCount            int     `yaml:"worker_count"`             // Concurrent shipping workers
	RetryTimes             int     `yaml:"retry_times"`              // Max send attempts per batch
	RetryDelaySeconds      float64 `yaml:"retry_delay_seconds"`      // Base backoff, doubled per retry
	ShutdownTimeoutSeconds float64 `yaml:"shutdown_timeout_seconds"` // Bounded wait for workers on Close

	Sink     SinkConfig      `yaml:"sink"`
	HTTP     HTTPSinkConfig  `yaml:"http"`
	GRPC     GRPCSinkConfig  `yaml:"grpc"`
	Kafka    KafkaSinkConfig `yaml:"kafka"`
	Postgres DatabaseConfig  `yaml:"postgres"`
}

// SetDefaults sets reasonable default values for the remote pipeline
func (c *RemoteConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "INFO"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
		fmt.Printf("Warning: remote.batch_size not set or invalid, defaulting to %d\n", c.BatchSize)
	}
	if c.BatchTimeoutSeconds <= 0 {
		c.BatchTimeoutSeconds = 5.0
		fmt.Printf("Warning: remote.batch_timeout_seconds not set or invalid, defaulting to %.1f\n", c.BatchTimeoutSeconds)
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 10000
		fmt.Printf("Warning: remote.queue_capacity not set or invalid, defaulting to %d\n", c.QueueCapacity)
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
		fmt.Printf("Warning: remote.worker_count not set or invalid, defaulting to %d\n", c.WorkerCount)
	}
	if c.RetryTimes <= 0 {
		c.RetryTimes = 3
		fmt.Printf("Warning: remote.retry_times not set or invalid, defaulting to %d\n", c.RetryTimes)
	}
	if c.RetryDelaySeconds <= 0 {
		c.RetryDelaySeconds = 1.0
		fmt.Printf("Warning: remote.retry_delay_seconds not set or invalid, defaulting to %.1f\n", c.RetryDelaySeconds)
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		c.ShutdownTimeoutSeconds = 2.0
	}
	c.HTTP.SetDefaults()
	c.GRPC.SetDefaults()
	c.Kafka.SetDefaults()
	c.Postgres.SetDefaults()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// BatchTimeout returns batch_timeout_seconds as a duration
func (c *RemoteConfig) BatchTimeout() time.Duration { return seconds(c.BatchTimeoutSeconds) }

// RetryDelay returns retry_delay_seconds as a duration
func (c *RemoteConfig) RetryDelay() time.Duration { return seconds(c.RetryDelaySeconds) }

// ShutdownTimeout returns shutdown_timeout_seconds as a duration
func (c *RemoteConfig) ShutdownTimeout() time.Duration { return seconds(c.ShutdownTimeoutSeconds) }

// LoggerConfig is the complete configuration of the logging subsystem
type LoggerConfig struct {
	ServiceName string         `yaml:"service_name"`
	Level       string         `yaml:"level"`
	Console     ConsoleConfig  `yaml:"console"`
	File        FileConfig     `yaml:"file"`
	Remote      RemoteConfig   `yaml:"remote"`
	Registry    RegistryConfig `yaml:"registry"`
}

// DefaultLoggerConfig returns the configuration used when nothing is supplied:
// console on at INFO, file and remote shipping off.
func DefaultLoggerConfig() *LoggerConfig {
	cfg := &LoggerConfig{
		Level:   "INFO",
		Console: ConsoleConfig{Enabled: true, Level: "INFO"},
		Remote: RemoteConfig{
			BatchSize:              100,
			BatchTimeoutSeconds:    5.0,
			QueueCapacity:          10000,
			WorkerCount:            2,
			RetryTimes:             3,
			RetryDelaySeconds:      1.0,
			ShutdownTimeoutSeconds: 2.0,
		},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets reasonable default values for all logger sections
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "INFO"
	}
	if c.Console.Level == "" {
		c.Console.Level = c.Level
	}
	if c.File.Level == "" {
		c.File.Level = c.Level
	}
	if c.File.Enabled {
		if c.File.Filename == "" {
			c.File.Filename = "app.log"
			fmt.Printf("Warning: file.filename not set, defaulting to %s\n", c.File.Filename)
		}
		if c.File.MaxSizeMB <= 0 {
			c.File.MaxSizeMB = 10
		}
		if c.File.MaxBackups <= 0 {
			c.File.MaxBackups = 5
		}
	}
	if c.Remote.Sink.ServiceName == "" {
		c.Remote.Sink.ServiceName = c.ServiceName
	}
	c.Remote.SetDefaults()
	c.Registry.SetDefaults()
}

// Validate checks level names and pipeline sizing
func (c *LoggerConfig) Validate() error {
	for name, lvl := range map[string]string{
		"level":         c.Level,
		"console.level": c.Console.Level,
		"file.level":    c.File.Level,
		"remote.level":  c.Remote.Level,
	} {
		if _, err := models.ParseLevel(lvl); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Remote.BatchSize > c.Remote.QueueCapacity {
		return fmt.Errorf("remote.batch_size (%d) cannot be greater than remote.queue_capacity (%d)",
			c.Remote.BatchSize, c.Remote.QueueCapacity)
	}
	if c.Remote.Enabled {
		if err := c.Remote.Postgres.Validate(); err != nil {
			return fmt.Errorf("remote.postgres: %w", err)
		}
	}
	return nil
}

// LoadLoggerConfig loads logger configuration from the specified YAML file path
func LoadLoggerConfig(path string) (*LoggerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logger config file '%s': %w", path, err)
	}

	// Decode over the defaults so a file only has to name what it changes
	cfg := DefaultLoggerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse logger YAML config file: %w", err)
	}

	cfg.Registry.ApplyEnv()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("logger configuration error: %w", err)
	}
	return cfg, nil
}
