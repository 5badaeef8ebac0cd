package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CHATLIST"

type AppConf struct {
	Name            string `mapstructure:"name"`
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
}

func (a AppConf) Development() bool { return a.Env == "development" }

type StoreConf struct {
	Driver         string `mapstructure:"driver"`
	QueryTimeoutMs int    `mapstructure:"query_timeout_ms"`
}

type MongoConf struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	MessagesCollection string `mapstructure:"messages_collection"`
	UsersCollection    string `mapstructure:"users_collection"`
}

type SQLiteConf struct {
	Path string `mapstructure:"path"`
}

type RedisConf struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"summary_ttl_seconds"`
}

type KafkaConf struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type AWSConf struct {
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
}

type S3Conf struct {
	PresignTTLSeconds int `mapstructure:"presign_ttl_seconds"`
}

type JWTConf struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type BreakerConf struct {
	MaxFailures int `mapstructure:"max_failures"`
	IntervalSec int `mapstructure:"interval_sec"`
	TimeoutSec  int `mapstructure:"timeout_sec"`
}

// ClientConf configures the chat list client used by the list command.
type ClientConf struct {
	Service        string            `mapstructure:"service"`
	ConsulAddr     string            `mapstructure:"consul_addr"`
	Services       map[string]string `mapstructure:"services"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	TimeLayout     string            `mapstructure:"time_layout"`
}

type Config struct {
	App     AppConf     `mapstructure:"app"`
	Store   StoreConf   `mapstructure:"store"`
	Mongo   MongoConf   `mapstructure:"mongodb"`
	SQLite  SQLiteConf  `mapstructure:"sqlite"`
	Redis   RedisConf   `mapstructure:"redis"`
	Kafka   KafkaConf   `mapstructure:"kafka"`
	AWS     AWSConf     `mapstructure:"aws"`
	S3      S3Conf      `mapstructure:"s3"`
	JWT     JWTConf     `mapstructure:"jwt"`
	Breaker BreakerConf `mapstructure:"breaker"`
	Client  ClientConf  `mapstructure:"client"`

	// derived
	ShutdownTimeout time.Duration `mapstructure:"-"`
	QueryTimeout    time.Duration `mapstructure:"-"`
	SummaryTTL      time.Duration `mapstructure:"-"`
	PresignTTL      time.Duration `mapstructure:"-"`
	ClientTimeout   time.Duration `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chatlist-service")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 8085)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.rate_limit_per_min", 120)

	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.query_timeout_ms", 3000)

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "chat")
	v.SetDefault("mongodb.messages_collection", "messages")
	v.SetDefault("mongodb.users_collection", "users")

	v.SetDefault("sqlite.path", "chatlist.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.summary_ttl_seconds", 60)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "message.created")
	v.SetDefault("kafka.group_id", "chatlist-service")

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.bucket", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("s3.presign_ttl_seconds", 600)

	v.SetDefault("jwt.alg", "RS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_sec", 60)
	v.SetDefault("breaker.timeout_sec", 30)

	v.SetDefault("client.service", "chatlist-service")
	v.SetDefault("client.consul_addr", "")
	v.SetDefault("client.services", map[string]string{})
	v.SetDefault("client.timeout_seconds", 10)
	v.SetDefault("client.time_layout", "3:04:05 PM")
}

// Load reads .env, then the optional yaml file at path, then CHATLIST_* env overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.derive()
	return &cfg, nil
}

func (c *Config) derive() {
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSeconds) * time.Second
	c.QueryTimeout = time.Duration(c.Store.QueryTimeoutMs) * time.Millisecond
	c.SummaryTTL = time.Duration(c.Redis.TTLSeconds) * time.Second
	c.PresignTTL = time.Duration(c.S3.PresignTTLSeconds) * time.Second
	c.ClientTimeout = time.Duration(c.Client.TimeoutSeconds) * time.Second
}

// ValidateServer checks what the serve command needs.
func (c *Config) ValidateServer() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" {
			return errors.New("mongodb.uri missing")
		}
		if c.Mongo.Database == "" {
			return errors.New("mongodb.database missing")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path missing")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store.driver %q (use mongo, sqlite or memory)", c.Store.Driver)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic missing")
	}
	if c.Redis.Addr != "" && len(c.Kafka.Brokers) == 0 {
		return errors.New("redis.addr requires kafka.brokers: cached lists are only invalidated by message.created events")
	}
	if c.AWS.Bucket != "" && c.AWS.Region == "" {
		return errors.New("aws.region required when aws.bucket is set")
	}
	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}
	return nil
}
