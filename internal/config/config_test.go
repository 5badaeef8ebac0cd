package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app:
  env: development
  port: 9090
store:
  driver: sqlite
  query_timeout_ms: 1500
sqlite:
  path: /tmp/chat.db
redis:
  addr: localhost:6379
  summary_ttl_seconds: 30
kafka:
  brokers: ["localhost:9092"]
jwt:
  alg: HS256
  hs_secret: secret
client:
  services:
    chatlist-service: http://localhost:9090
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.App.Development())
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1500*time.Millisecond, cfg.QueryTimeout)
	assert.Equal(t, 30*time.Second, cfg.SummaryTTL)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://localhost:9090", cfg.Client.Services["chatlist-service"])
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHATLIST_APP_PORT", "7070")
	t.Setenv("CHATLIST_STORE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "3:04:05 PM", cfg.Client.TimeLayout)
}

func TestValidateServer(t *testing.T) {
	base := func() *Config {
		return &Config{
			App:   AppConf{Port: 8085},
			Store: StoreConf{Driver: "memory"},
			JWT:   JWTConf{Alg: "HS256", HSSecret: "s"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"no port", func(c *Config) { c.App.Port = 0 }, "app.port"},
		{"bad driver", func(c *Config) { c.Store.Driver = "pg" }, "store.driver"},
		{"mongo without uri", func(c *Config) { c.Store.Driver = "mongo" }, "mongodb.uri"},
		{"rs256 without key", func(c *Config) { c.JWT.Alg = "RS256" }, "public_key_path"},
		{"bad alg", func(c *Config) { c.JWT.Alg = "none" }, "jwt.alg"},
		{"bucket without region", func(c *Config) { c.AWS.Bucket = "avatars" }, "aws.region"},
		{"brokers without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }, "kafka.topic"},
		{"redis without kafka", func(c *Config) { c.Redis.Addr = "localhost:6379" }, "kafka.brokers"},
		{"redis with kafka", func(c *Config) {
			c.Redis.Addr = "localhost:6379"
			c.Kafka = KafkaConf{Brokers: []string{"k:9092"}, Topic: "message.created"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.ValidateServer()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
