package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/utafrali/storefront/internal/lock"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/tracing"
)

const (
	defaultAccessSecret  = "change-this-access-secret"
	defaultRefreshSecret = "change-this-refresh-secret"
	minSecretLength      = 32
)

// Storage drivers.
const (
	StorageMemory     = "memory"
	StorageCloudinary = "cloudinary"
	StorageGCS        = "gcs"
)

// Search engines.
const (
	SearchMemory        = "memory"
	SearchElasticsearch = "elasticsearch"
)

// Config holds all configuration for the storefront server.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PostgreSQL
	PostgresHost     string `env:"DB_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"DB_PORT" envDefault:"5432"`
	PostgresUser     string `env:"DB_USER" envDefault:"storefront"`
	PostgresPass     string `env:"DB_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB       string `env:"DB_NAME" envDefault:"storefront"`
	PostgresSSL      string `env:"DB_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	SlowQueryMS      int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	EventsEnabled      bool     `env:"EVENTS_ENABLED" envDefault:"false"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"storefront"`

	// Cart
	CartTTL           int  `env:"CART_TTL_HOURS" envDefault:"168"`
	CartOptimisticCAS bool `env:"CART_OPTIMISTIC_LOCKING" envDefault:"false"`

	// Locking
	LockMode  string `env:"LOCK_MODE" envDefault:"local"`
	LockTTLMS int    `env:"LOCK_TTL_MS" envDefault:"5000"`

	// Object storage
	StorageDriver       string `env:"STORAGE_DRIVER" envDefault:"memory"`
	StorageBaseURL      string `env:"STORAGE_BASE_URL" envDefault:"http://localhost:8080"`
	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`
	GCSBucket           string `env:"GCS_BUCKET"`
	GCSCDNDomain        string `env:"GCS_CDN_DOMAIN"`
	GCSCredentialsFile  string `env:"GCS_CREDENTIALS_FILE"`
	GCSCredentialsJSON  string `env:"GCS_CREDENTIALS_JSON"`

	// Search
	SearchEngine       string `env:"SEARCH_ENGINE" envDefault:"memory"`
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"products"`

	// JWT
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"change-this-access-secret"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"change-this-refresh-secret"`
	JWTAccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	// Login throttling
	LoginRateLimit float64 `env:"LOGIN_RATE_LIMIT_RPS" envDefault:"1"`
	LoginRateBurst int     `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"5"`

	Tracing tracing.Config
}

// Load reads configuration from the environment, after merging any .env
// files that are present.
func Load(dotenvFiles ...string) (*Config, error) {
	if err := pkgconfig.LoadDotEnv(dotenvFiles...); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the server runs in local development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("invalid DB port: %d", c.PostgresPort)
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	if _, err := lock.ParseMode(c.LockMode); err != nil {
		return err
	}
	if c.LockTTLMS < 1 {
		return fmt.Errorf("LOCK_TTL_MS must be positive, got %d", c.LockTTLMS)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New("TRACING_SAMPLE_RATE must be between 0.0 and 1.0")
	}
	if c.LoginRateLimit <= 0 || c.LoginRateBurst < 1 {
		return errors.New("LOGIN_RATE_LIMIT_RPS and LOGIN_RATE_LIMIT_BURST must be positive")
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when EVENTS_ENABLED is set")
	}

	switch c.StorageDriver {
	case StorageMemory:
	case StorageCloudinary:
		if c.CloudinaryCloudName == "" || c.CloudinaryAPIKey == "" || c.CloudinaryAPISecret == "" {
			return errors.New("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required for the cloudinary driver")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required for the gcs driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.SearchEngine {
	case SearchMemory, SearchElasticsearch:
	default:
		return fmt.Errorf("unknown SEARCH_ENGINE %q", c.SearchEngine)
	}

	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if !c.IsDevelopment() {
		if c.JWTAccessSecret == defaultAccessSecret || c.JWTRefreshSecret == defaultRefreshSecret {
			return fmt.Errorf("JWT secrets must be explicitly set via environment variables in %q mode", c.Environment)
		}
		if len(c.JWTAccessSecret) < minSecretLength || len(c.JWTRefreshSecret) < minSecretLength {
			return fmt.Errorf("JWT secrets must be at least %d characters long", minSecretLength)
		}
		if c.StorageDriver == StorageMemory {
			return fmt.Errorf("STORAGE_DRIVER=memory is only allowed in development, not %q", c.Environment)
		}
	}
	return nil
}

// Postgres returns the connection settings for the pgx pool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the connection settings for the Redis client.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPass,
		DB:       c.RedisDB,
	}
}

// CartTTLDuration is the idle lifetime of a stored cart.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// LockTTL bounds how long a distributed lock may be held.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMS) * time.Millisecond
}

// SlowQueryThreshold is the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMS) * time.Millisecond
}
