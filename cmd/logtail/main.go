package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"svckit/config"
	"svckit/internal/messaging/consumer"
	"svckit/internal/models"
)

func main() {
	diag := log.New(os.Stderr, "[LOGTAIL] ", log.LstdFlags|log.Lshortfile)

	var configDir, levelName, brokers, topic string
	flags := pflag.NewFlagSet("logtail", pflag.ExitOnError)
	flags.StringVar(&configDir, "config", "./config", "directory holding logtail.defaults.yml")
	flags.StringVar(&levelName, "level", "DEBUG", "minimum level to print")
	flags.StringVar(&brokers, "brokers", "", "comma separated broker list, overrides the config file")
	flags.StringVar(&topic, "topic", "", "topic to tail, overrides the config file")
	_ = flags.Parse(os.Args[1:])

	minLevel, err := models.ParseLevel(levelName)
	if err != nil {
		diag.Fatalf("Invalid --level: %v", err)
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		diag.Fatalf("Failed to load configuration: %v", err)
	}
	consumerCfg := config.KafkaConsumerConfig{}
	if cfg.KafkaConsumer != nil {
		consumerCfg = *cfg.KafkaConsumer
	}
	if brokers != "" {
		consumerCfg.Brokers = strings.Split(brokers, ",")
	}
	if topic != "" {
		consumerCfg.Topic = topic
	}
	consumerCfg.SetDefaults()

	var c consumer.Consumer
	if len(consumerCfg.Brokers) > 0 && consumerCfg.Brokers[0] != "mock://local" {
		if err := consumerCfg.Validate(); err != nil {
			diag.Fatalf("Invalid consumer configuration: %v", err)
		}
		kc, err := consumer.NewKafkaConsumer(consumerCfg, diag)
		if err != nil {
			diag.Fatalf("Failed to initialize Kafka consumer: %v", err)
		}
		c = kc
	} else {
		diag.Println("No brokers configured, tailing a mock consumer...")
		c = consumer.NewMockConsumer(diag)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.NewTailer(c, os.Stdout, minLevel, diag).Run(ctx); err != nil {
		diag.Fatalf("Tailer stopped: %v", err)
	}
}
