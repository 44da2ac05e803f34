package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sagaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := load("", env(nil))
		require.NoError(t, err)

		assert.Equal(t, DriverMemory, cfg.Queue.Driver)
		assert.Equal(t, 3, cfg.Queue.MaxRetries)
		assert.Equal(t, 3, cfg.Saga.PaymentRetries)
		assert.Equal(t, 10*time.Second, cfg.Saga.PaymentDelay)
		assert.Empty(t, cfg.Database.Path)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
queue:
  driver: redis
  redis_addr: cache:6379
  max_retries: 5
database:
  path: /tmp/sagaflow.db
saga:
  payment_delay: 2s
  subscribe: true
worker:
  concurrency: 4
`)
		cfg, err := load(path, env(nil))
		require.NoError(t, err)

		assert.Equal(t, DriverRedis, cfg.Queue.Driver)
		assert.Equal(t, "cache:6379", cfg.Queue.RedisAddr)
		assert.Equal(t, 5, cfg.Queue.MaxRetries)
		assert.Equal(t, "/tmp/sagaflow.db", cfg.Database.Path)
		assert.Equal(t, 2*time.Second, cfg.Saga.PaymentDelay)
		assert.Equal(t, 3, cfg.Saga.PaymentRetries)
		assert.True(t, cfg.Saga.Subscribe)
		assert.Equal(t, 4, cfg.Worker.Concurrency)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "queue:\n  driver: redis\n")
		cfg, err := load(path, env(map[string]string{
			"SAGAFLOW_QUEUE_DRIVER":      "rabbitmq",
			"SAGAFLOW_AMQP_URL":          "amqp://broker:5672/",
			"SAGAFLOW_MAX_RETRIES":       "7",
			"SAGAFLOW_DATABASE_PATH":     "/data/sagaflow.db",
			"SAGAFLOW_SERVICES_BASE_URL": "http://services:8080",
		}))
		require.NoError(t, err)

		assert.Equal(t, DriverRabbitMQ, cfg.Queue.Driver)
		assert.Equal(t, "amqp://broker:5672/", cfg.Queue.AMQPURL)
		assert.Equal(t, 7, cfg.Queue.MaxRetries)
		assert.Equal(t, "/data/sagaflow.db", cfg.Database.Path)
		assert.Equal(t, "http://services:8080", cfg.Services.BaseURL)
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		cfg, err := load(writeConfig(t, ""), env(nil))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := load(writeConfig(t, "queue:\n  drvier: redis\n"), env(nil))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
		assert.Error(t, err)
	})

	t.Run("bad integer", func(t *testing.T) {
		_, err := load("", env(map[string]string{"SAGAFLOW_MAX_RETRIES": "many"}))
		assert.ErrorContains(t, err, "SAGAFLOW_MAX_RETRIES")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Queue.Driver = "kafka" }},
		{"rabbitmq without url", func(c *Config) { c.Queue.Driver = DriverRabbitMQ; c.Queue.AMQPURL = "" }},
		{"redis without addr", func(c *Config) { c.Queue.Driver = DriverRedis; c.Queue.RedisAddr = "" }},
		{"negative retries", func(c *Config) { c.Queue.MaxRetries = -1 }},
		{"missing services", func(c *Config) { c.Services.BaseURL = "" }},
		{"negative payment delay", func(c *Config) { c.Saga.PaymentDelay = -time.Second }},
		{"no workers", func(c *Config) { c.Worker.Concurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})
}
