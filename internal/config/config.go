package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	App     AppConfig
	Queue   QueueConfig
	QueueDB QueueDBConfig
	Remote  RemoteConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"aiops-sync-queue"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS" default:""`
}

// QueueConfig holds queue admission and dispatch settings.
type QueueConfig struct {
	DefaultMaxAttempts int           `envconfig:"QUEUE_DEFAULT_MAX_ATTEMPTS" default:"3"`
	DefaultBatchLimit  int           `envconfig:"QUEUE_DEFAULT_BATCH_LIMIT" default:"10"`
	DispatchEnabled    bool          `envconfig:"QUEUE_DISPATCH_ENABLED" default:"false"`
	DispatchInterval   time.Duration `envconfig:"QUEUE_DISPATCH_INTERVAL" default:"30s"`
	DispatchTenants    []string      `envconfig:"QUEUE_DISPATCH_TENANTS" default:""`
}

// QueueDBConfig holds item store settings.
type QueueDBConfig struct {
	Type string `envconfig:"QUEUE_DB_TYPE" default:"sqlite"` // sqlite, postgres, mysql, redis, or memory
	Path string `envconfig:"QUEUE_DB_PATH" default:"./data/syncqueue.db"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"QUEUE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"QUEUE_DB_PORT" default:"5432"`
	Name     string `envconfig:"QUEUE_DB_NAME" default:"syncqueue"`
	User     string `envconfig:"QUEUE_DB_USER" default:"postgres"`
	Password string `envconfig:"QUEUE_DB_PASS" default:""`
	SSLMode  string `envconfig:"QUEUE_DB_SSLMODE" default:"disable"`
	// Redis settings
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// RemoteConfig holds settings for the HTTP remote the dispatcher calls.
type RemoteConfig struct {
	BaseURL string        `envconfig:"REMOTE_BASE_URL" default:""` // empty disables dispatch
	Timeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"30s"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (q *QueueDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		q.User, q.Password, q.Host, q.Port, q.Name, q.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (q *QueueDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		q.User, q.Password, q.Host, q.Port, q.Name)
}

// RedisAddress returns the Redis address in host:port format.
func (q *QueueDBConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", q.RedisHost, q.RedisPort)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
