package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/content-import-service/internal/events"
)

const (
	PublisherKafka = "kafka"
	PublisherLog   = "log"
)

// EventConfig selects where import lifecycle events (started, progress,
// paused, completed, rolled back) are sent. With events disabled or the log
// publisher, they only reach the application log.
type EventConfig struct {
	Enabled      bool   `env:"IMPORT_EVENTS_ENABLED" env-default:"true"`
	Publisher    string `env:"IMPORT_EVENTS_PUBLISHER" env-default:"kafka"`
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	ImportTopic  string `env:"IMPORT_EVENTS_TOPIC" env-default:"content-import.jobs"`
}

// Brokers splits KAFKA_BROKERS, ignoring blanks left by trailing commas
func (c *EventConfig) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// CreateEventPublisher builds the job event publisher. An unknown publisher
// name is a configuration error, so a typo cannot silently drop events.
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Import events disabled, job events go to the log only")
		return events.NewMockEventPublisher(logger), nil
	}

	switch c.Publisher {
	case PublisherKafka:
		brokers := c.Brokers()
		if len(brokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS is empty while %s publisher is selected", PublisherKafka)
		}
		logger.Info("Publishing import events to Kafka", "brokers", brokers, "topic", c.ImportTopic)
		return events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: brokers,
			TopicName:    c.ImportTopic,
			Logger:       logger,
		})
	case PublisherLog:
		logger.Info("Import events go to the log only")
		return events.NewMockEventPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unknown import event publisher %q (expected %s or %s)",
			c.Publisher, PublisherKafka, PublisherLog)
	}
}
