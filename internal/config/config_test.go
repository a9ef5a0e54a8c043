package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, EventsPubSub, cfg.Events.Backend)
	assert.Equal(t, 1024, cfg.Events.QueueSize)
	assert.Equal(t, "db/migrations", cfg.Postgres.MigrationsDir)
	assert.Equal(t, "users", cfg.Mongo.Collection)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("EVENTS_BACKEND", "redis")
	t.Setenv("EVENTS_WORKERS", "8")
	t.Setenv("EVENTS_SEND_TIMEOUT", "250ms")
	t.Setenv("REDIS_STREAM", "audit")
	t.Setenv("REDIS_MAX_LEN", "1000")
	t.Setenv("MONGODB_DATABASE", "users_db")
	t.Setenv("PUBSUB_PROJECT_ID", "my-project")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, cfg.Store.Backend)
	assert.Equal(t, EventsRedis, cfg.Events.Backend)
	assert.Equal(t, 8, cfg.Events.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.SendTimeout)
	assert.Equal(t, "audit", cfg.Redis.Stream)
	assert.Equal(t, int64(1000), cfg.Redis.MaxLen)
	assert.Equal(t, "users_db", cfg.Mongo.Database)
	assert.Equal(t, "my-project", cfg.PubSub.ProjectID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown store", key: "STORE_BACKEND", value: "sqlite"},
		{name: "unknown events backend", key: "EVENTS_BACKEND", value: "kafka"},
		{name: "unknown log format", key: "LOG_FORMAT", value: "xml"},
		{name: "unknown log level", key: "LOG_LEVEL", value: "loud"},
		{name: "zero workers", key: "EVENTS_WORKERS", value: "0"},
		{name: "negative rate limit", key: "HTTP_RATE_LIMIT", value: "-1"},
		{name: "unparsable duration", key: "HTTP_SHUTDOWN_TIMEOUT", value: "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfigureLogging(t *testing.T) {
	original := log.GetLevel()
	t.Cleanup(func() {
		log.SetLevel(original)
		log.SetFormatter(&log.JSONFormatter{})
	})

	cfg := &Config{Log: Log{Level: "warn", Format: "text"}}
	require.NoError(t, cfg.ConfigureLogging())
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)

	cfg.Log.Format = "json"
	require.NoError(t, cfg.ConfigureLogging())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	cfg.Log.Level = "nope"
	assert.Error(t, cfg.ConfigureLogging())
}
