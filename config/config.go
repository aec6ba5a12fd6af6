package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Logger        *LoggerConfig
	KafkaConsumer *KafkaConsumerConfig
}

// LoadConfig loads all configuration files from a directory. Missing files
// leave their section nil, except the logger which falls back to defaults.
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	config := &Config{}

	// Load logger config
	loggerPath := filepath.Join(absDir, "logger.defaults.yml")
	if _, err := os.Stat(loggerPath); err == nil {
		loggerCfg, err := LoadLoggerConfig(loggerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load logger config: %w", err)
		}
		config.Logger = loggerCfg
	} else {
		config.Logger = DefaultLoggerConfig()
	}

	// Load Kafka consumer config
	consumerPath := filepath.Join(absDir, "logtail.defaults.yml")
	if _, err := os.Stat(consumerPath); err == nil {
		consumerCfg, err := LoadKafkaConsumerConfig(consumerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load logtail config: %w", err)
		}
		config.KafkaConsumer = consumerCfg
	}

	return config, nil
}

// LoadKafkaConsumerConfig loads the logtail consumer configuration from a YAML file
func LoadKafkaConsumerConfig(path string) (*KafkaConsumerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var wrapper struct {
		KafkaConsumer KafkaConsumerConfig `yaml:"kafka_consumer"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	cfg := wrapper.KafkaConsumer
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
