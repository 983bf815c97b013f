package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 5*time.Second, cfg.PublisherPollInterval)
	require.Equal(t, 10, cfg.PublisherBatchSize)
	require.Equal(t, 4, cfg.PublisherConcurrency)
	require.False(t, cfg.PublisherInProcess)
	require.Equal(t, 30*time.Second, cfg.SubscriberTimeout)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, "convention:events", cfg.BroadcastStream)
	require.Equal(t, "ops:notifications", cfg.NotificationStream)
	require.Empty(t, cfg.KafkaBrokers)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PUBLISHER_POLL_INTERVAL", "250ms")
	t.Setenv("PUBLISHER_IN_PROCESS", "true")
	t.Setenv("SUBSCRIBER_TIMEOUT", "2s")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 250*time.Millisecond, cfg.PublisherPollInterval)
	require.True(t, cfg.PublisherInProcess)
	require.Equal(t, 2*time.Second, cfg.SubscriberTimeout)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	t.Setenv("PUBLISHER_BATCH_SIZE", "0")
	t.Setenv("SUBSCRIBER_TIMEOUT", "-1s")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "PUBLISHER_BATCH_SIZE")
	require.ErrorContains(t, err, "SUBSCRIBER_TIMEOUT")
	require.ErrorContains(t, err, "LOG_FORMAT")
}

func TestLoadConfig_ParseError(t *testing.T) {
	t.Setenv("PUBLISHER_BATCH_SIZE", "ten")

	_, err := LoadConfig()
	require.Error(t, err)
}
