package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/content-import-service/internal/events"
)

func TestEventConfig_Brokers(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		want    []string
	}{
		{name: "single", brokers: "kafka:9092", want: []string{"kafka:9092"}},
		{name: "spaces and trailing comma", brokers: " k1:9092, k2:9092 ,", want: []string{"k1:9092", "k2:9092"}},
		{name: "empty", brokers: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := EventConfig{KafkaBrokers: tt.brokers}
			assert.Equal(t, tt.want, cfg.Brokers())
		})
	}
}

func TestEventConfig_CreateEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		cfg     EventConfig
		wantErr string
	}{
		{name: "disabled", cfg: EventConfig{Enabled: false, Publisher: "anything"}},
		{name: "log publisher", cfg: EventConfig{Enabled: true, Publisher: PublisherLog}},
		{name: "unknown publisher", cfg: EventConfig{Enabled: true, Publisher: "rabbit"}, wantErr: "unknown import event publisher"},
		{name: "kafka without brokers", cfg: EventConfig{Enabled: true, Publisher: PublisherKafka, KafkaBrokers: " , "}, wantErr: "KAFKA_BROKERS is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher, err := tt.cfg.CreateEventPublisher(logger)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, &events.MockEventPublisher{}, publisher)
		})
	}
}
