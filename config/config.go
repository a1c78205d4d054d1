package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig
	Auth          AuthConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AMQP          AMQPConfig
	Worker        WorkerConfig
	Engine        EngineConfig
	Observability ObservabilityConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Env         string
	Port        string
	Storage     string // "postgres" or "memory"
	CORSOrigins string
}

// AuthConfig holds caller authentication settings
type AuthConfig struct {
	Disabled  bool
	JWTSecret string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	PoolMax         int
	PoolMinConns    int
	PoolMaxConnLife time.Duration
	PoolMaxConnIdle time.Duration
	HealthCheck     time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds definition cache configuration. An empty Addr selects the
// in-process cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AMQPConfig holds RabbitMQ configuration. An empty URL disables job
// announcements; workers then rely on polling.
type AMQPConfig struct {
	URL         string
	TopicPrefix string
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Count        int
	BatchSize    int
	PollInterval time.Duration
	MaxBatchRows int
}

// EngineConfig holds evaluation limits
type EngineConfig struct {
	EvalTimeout         time.Duration
	MaxExpressionLength int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel    string
	OTelEnabled bool
	ServiceName string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		App: AppConfig{
			Env:         getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Storage:     getEnv("STORAGE", "postgres"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		},
		Auth: AuthConfig{
			Disabled:  getEnvBool("AUTH_DISABLED", false),
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "calculators"),
			PoolMax:         getEnvInt("DB_POOL_MAX", 50),
			PoolMinConns:    getEnvInt("DB_POOL_MIN", 10),
			PoolMaxConnLife: time.Duration(getEnvInt("DB_POOL_MAX_CONN_LIFE_MINUTES", 30)) * time.Minute,
			PoolMaxConnIdle: getEnvDuration("DB_POOL_MAX_CONN_IDLE", 15*time.Minute),
			HealthCheck:     getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		AMQP: AMQPConfig{
			URL:         getEnv("AMQP_URL", ""),
			TopicPrefix: getEnv("AMQP_TOPIC_PREFIX", "calculator"),
		},
		Worker: WorkerConfig{
			Count:        getEnvInt("WORKER_COUNT", 16),
			BatchSize:    getEnvInt("BATCH_SIZE", 500),
			PollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 30*time.Second),
			MaxBatchRows: getEnvInt("MAX_BATCH_ROWS", 10000),
		},
		Engine: EngineConfig{
			EvalTimeout:         getEnvDuration("EVAL_TIMEOUT", 5*time.Second),
			MaxExpressionLength: getEnvInt("MAX_EXPRESSION_LENGTH", 2000),
		},
		Observability: ObservabilityConfig{
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			OTelEnabled: getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "calculator-api"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if port, err := strconv.Atoi(c.App.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a port number, got %q", c.App.Port))
	}
	if c.App.Storage != "postgres" && c.App.Storage != "memory" {
		errs = append(errs, fmt.Errorf("STORAGE must be postgres or memory, got %q", c.App.Storage))
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required unless AUTH_DISABLED=true"))
	}
	if c.Database.PoolMax <= 0 || c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMax {
		errs = append(errs, errors.New("DB_POOL_MIN must be between 0 and DB_POOL_MAX, and DB_POOL_MAX must be positive"))
	}
	if c.Database.HealthCheck <= 0 {
		errs = append(errs, errors.New("DB_HEALTH_CHECK_PERIOD must be positive"))
	}
	if c.Worker.Count <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, errors.New("BATCH_SIZE must be positive"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("WORKER_POLL_INTERVAL must be positive"))
	}
	if c.Worker.MaxBatchRows <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_ROWS must be positive"))
	}
	if c.Engine.EvalTimeout <= 0 {
		errs = append(errs, errors.New("EVAL_TIMEOUT must be positive"))
	}
	if c.Engine.MaxExpressionLength <= 0 {
		errs = append(errs, errors.New("MAX_EXPRESSION_LENGTH must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Origins splits CORS_ORIGINS on commas
func (c *AppConfig) Origins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=disable"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
