package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/eventd/internal/store"
)

// Config holds all configuration for eventd
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Events    EventsConfig    `mapstructure:"events"`
	Logtail   LogtailConfig   `mapstructure:"logtail"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Transport TransportConfig `mapstructure:"transport"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EventsConfig holds the EventService defaults. Persisted settings win over
// these once a client has changed them.
type EventsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	MaxSubscriptions int           `mapstructure:"max_subscriptions"`
	MaxStreams       int           `mapstructure:"max_streams"`
	StreamBuffer     int           `mapstructure:"stream_buffer"`
	LoopQueue        int           `mapstructure:"loop_queue"`
}

// LogtailConfig locates the event log file
type LogtailConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// RegistryConfig points at extra message registry documents
type RegistryConfig struct {
	Dir string `mapstructure:"dir"`
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Token         string        `mapstructure:"token"`
}

// StoreConfig selects the subscription store backend
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// RedisConfig holds Redis settings for the redis store backend
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig holds PostgreSQL settings for the postgres store backend
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Migrate  bool           `mapstructure:"migrate"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// TransportConfig tunes outbound push delivery
type TransportConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	QueueDepth    int           `mapstructure:"queue_depth"`
	SigningSecret string        `mapstructure:"signing_secret"`
	Issuer        string        `mapstructure:"issuer"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("events.enabled", true)
	v.SetDefault("events.retry_attempts", 3)
	v.SetDefault("events.retry_interval", "30s")
	v.SetDefault("events.max_subscriptions", 20)
	v.SetDefault("events.max_streams", 10)
	v.SetDefault("events.stream_buffer", 64)
	v.SetDefault("events.loop_queue", 1024)

	v.SetDefault("logtail.path", "/var/log/redfish")
	v.SetDefault("logtail.enabled", true)

	v.SetDefault("registry.dir", "")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")

	v.SetDefault("store.backend", store.BackendMemory)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "eventd")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "eventd")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "eventd")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.migrate", true)

	v.SetDefault("transport.timeout", "10s")
	v.SetDefault("transport.queue_depth", 256)
	v.SetDefault("transport.signing_secret", "")
	v.SetDefault("transport.issuer", "eventd")

	v.SetDefault("metrics.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("EVENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendRedis, store.BackendPostgres:
	default:
		return fmt.Errorf("invalid store.backend %q", c.Store.Backend)
	}
	if c.Events.RetryAttempts < 0 {
		return fmt.Errorf("events.retry_attempts must not be negative")
	}
	if c.Events.RetryInterval < time.Second {
		return fmt.Errorf("events.retry_interval must be at least 1s")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// ConnectionString builds a PostgreSQL URL from the settings.
func (p PostgresConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// StoreOptions maps the config onto the store package.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Store.Backend,
		RedisURL:    c.Redis.URL,
		KeyPrefix:   c.Redis.KeyPrefix,
		DatabaseURL: c.Database.Postgres.ConnectionString(),
		Migrate:     c.Database.Migrate,
	}
}
