// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Redis backs the role-set cache (when AUTHZ_CACHE=redis) and the delivery job queue.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only cmd/seed signs tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used to validate bearer tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// AuthzCache selects the role-set cache backend: "memory" (default), "redis" or "none".
	AuthzCache string `mapstructure:"AUTHZ_CACHE"`
	// AuthzCacheTTL bounds how long a cached role set is trusted (e.g. "5m").
	AuthzCacheTTL string `mapstructure:"AUTHZ_CACHE_TTL"`

	// EventWorkers is the number of goroutines running best-effort listeners.
	EventWorkers int `mapstructure:"EVENT_WORKERS"`
	// EventQueueSize bounds pending best-effort listener jobs; further jobs are dropped.
	EventQueueSize int `mapstructure:"EVENT_QUEUE_SIZE"`
	// ListenerTimeout bounds one best-effort listener invocation (e.g. "10s").
	ListenerTimeout string `mapstructure:"LISTENER_TIMEOUT"`
	// BlockingListenerTimeout bounds one blocking listener invocation (e.g. "2s").
	BlockingListenerTimeout string `mapstructure:"BLOCKING_LISTENER_TIMEOUT"`

	// AuditDedupWindow is the timestamp bucket used in audit dedup keys (e.g. "1m").
	AuditDedupWindow string `mapstructure:"AUDIT_DEDUP_WINDOW"`
	// NotificationOptInChannels is a comma-separated list of channels that default to disabled.
	NotificationOptInChannels string `mapstructure:"NOTIFICATION_OPT_IN_CHANNELS"`

	// Outbound delivery service for email and push.
	DeliveryBaseURL    string  `mapstructure:"DELIVERY_BASE_URL"`
	DeliveryAPIKey     string  `mapstructure:"DELIVERY_API_KEY"`
	DeliveryRatePerSec float64 `mapstructure:"DELIVERY_RATE_PER_SEC"`

	// EventsKafkaBrokers is a comma-separated list of Kafka brokers. When set, the server mirrors domain events to Kafka.
	EventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for mirrored domain events.
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker's event stream consumer.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes the mirrored event stream (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTelEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "saas-auth")
	v.SetDefault("JWT_AUDIENCE", "saas-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("AUTHZ_CACHE", "memory")
	v.SetDefault("AUTHZ_CACHE_TTL", "5m")
	v.SetDefault("EVENT_WORKERS", 4)
	v.SetDefault("EVENT_QUEUE_SIZE", 1024)
	v.SetDefault("LISTENER_TIMEOUT", "10s")
	v.SetDefault("BLOCKING_LISTENER_TIMEOUT", "2s")
	v.SetDefault("AUDIT_DEDUP_WINDOW", "1m")
	v.SetDefault("NOTIFICATION_OPT_IN_CHANNELS", "push")
	v.SetDefault("DELIVERY_BASE_URL", "")
	v.SetDefault("DELIVERY_API_KEY", "")
	v.SetDefault("DELIVERY_RATE_PER_SEC", 20)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "saas-domain-events")
	v.SetDefault("KAFKA_GROUP_ID", "saas-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	switch cfg.AuthzCache {
	case "memory", "redis", "none":
	default:
		return nil, errors.New("config: AUTHZ_CACHE must be memory, redis or none")
	}
	if cfg.EventWorkers < 1 {
		return nil, errors.New("config: EVENT_WORKERS must be at least 1")
	}
	if cfg.EventQueueSize < 1 {
		return nil, errors.New("config: EVENT_QUEUE_SIZE must be at least 1")
	}
	if cfg.DeliveryRatePerSec <= 0 {
		cfg.DeliveryRatePerSec = 20
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// CacheTTL parses AuthzCacheTTL. Returns 5m if unset or invalid.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.AuthzCacheTTL, 5*time.Minute)
}

// ListenerTimeoutDuration parses ListenerTimeout. Returns 10s if unset or invalid.
func (c *Config) ListenerTimeoutDuration() time.Duration {
	return parseDuration(c.ListenerTimeout, 10*time.Second)
}

// BlockingListenerTimeoutDuration parses BlockingListenerTimeout. Returns 2s if unset or invalid.
func (c *Config) BlockingListenerTimeoutDuration() time.Duration {
	return parseDuration(c.BlockingListenerTimeout, 2*time.Second)
}

// AuditDedupWindowDuration parses AuditDedupWindow. Returns 1m if unset or invalid.
func (c *Config) AuditDedupWindowDuration() time.Duration {
	return parseDuration(c.AuditDedupWindow, time.Minute)
}

// EventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka event mirror.
func (c *Config) EventsKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.EventsKafkaBrokers)
}

// OptInChannels returns the channels that are disabled unless a user enables them.
func (c *Config) OptInChannels() []string {
	if c == nil {
		return nil
	}
	return splitList(c.NotificationOptInChannels)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
