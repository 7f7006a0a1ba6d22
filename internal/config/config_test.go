package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "DATABASE_URL", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD",
		"POSTGRES_DB", "POSTGRES_SSLMODE", "DB_MAX_OPEN_CONNS", "JWT_SECRET", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"OUTBOX_POLL_INTERVAL", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=checkout sslmode=disable", cfg.DB.DSN())
	assert.Equal(t, "orders", cfg.Kafka.Topic)
	assert.Equal(t, time.Second, cfg.Kafka.PollInterval)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x?sslmode=disable")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/x?sslmode=disable", cfg.DB.DSN())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.PollInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET is required"},
		{"bad port", map[string]string{"JWT_SECRET": "s", "POSTGRES_PORT": "abc"}, "POSTGRES_PORT must be number"},
		{"bad interval", map[string]string{"JWT_SECRET": "s", "OUTBOX_POLL_INTERVAL": "soon"}, "OUTBOX_POLL_INTERVAL must be duration"},
		{"bad level", map[string]string{"JWT_SECRET": "s", "LOG_LEVEL": "loud"}, "LOG_LEVEL must be one of"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
