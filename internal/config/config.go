package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/callsched/core/pkg/errors"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Lock       LockConfig
	Redis      RedisConfig
	Scheduler  SchedulerConfig
	HTTPClient HTTPClientConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
	LogLevel    string
}

type StoreConfig struct {
	Backend      string
	SearchWindow time.Duration
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LockConfig struct {
	Backend string
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SchedulerConfig struct {
	Workers         int
	Timezone        string
	ShutdownTimeout time.Duration
}

type HTTPClientConfig struct {
	Timeout            time.Duration
	BreakerEnabled     bool
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// AuthConfig holds the credentials the auth strategies attach to outbound calls
type AuthConfig struct {
	BearerToken   string
	BasicUsername string
	BasicPassword string
	APIKeyHeader  string
	APIKey        string
	JWTSecret     string
	JWTIssuer     string
	JWTTTL        time.Duration
}

// Load reads configuration from .env (when present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("TASK_SEARCH_WINDOW", "168h")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "callsched")
	v.SetDefault("DB_NAME", "callsched")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("LOCK_BACKEND", BackendMemory)
	v.SetDefault("LOCK_TTL", "30m")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SCHEDULER_WORKERS", 10)
	v.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("HTTP_CLIENT_TIMEOUT", "0s")
	v.SetDefault("BREAKER_ENABLED", false)
	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_OPEN_TIMEOUT", "60s")
	v.SetDefault("AUTH_API_KEY_HEADER", "X-API-Key")
	v.SetDefault("AUTH_JWT_TTL", "5m")

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("PORT"),
			Host:        v.GetString("HOST"),
			Environment: v.GetString("ENVIRONMENT"),
			LogLevel:    v.GetString("LOG_LEVEL"),
		},
		Store: StoreConfig{
			Backend:      v.GetString("STORE_BACKEND"),
			SearchWindow: v.GetDuration("TASK_SEARCH_WINDOW"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Lock: LockConfig{
			Backend: v.GetString("LOCK_BACKEND"),
			TTL:     v.GetDuration("LOCK_TTL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Scheduler: SchedulerConfig{
			Workers:         v.GetInt("SCHEDULER_WORKERS"),
			Timezone:        v.GetString("SCHEDULER_TIMEZONE"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		HTTPClient: HTTPClientConfig{
			Timeout:            v.GetDuration("HTTP_CLIENT_TIMEOUT"),
			BreakerEnabled:     v.GetBool("BREAKER_ENABLED"),
			BreakerMaxFailures: v.GetUint32("BREAKER_MAX_FAILURES"),
			BreakerOpenTimeout: v.GetDuration("BREAKER_OPEN_TIMEOUT"),
		},
		Auth: AuthConfig{
			BearerToken:   v.GetString("AUTH_BEARER_TOKEN"),
			BasicUsername: v.GetString("AUTH_BASIC_USERNAME"),
			BasicPassword: v.GetString("AUTH_BASIC_PASSWORD"),
			APIKeyHeader:  v.GetString("AUTH_API_KEY_HEADER"),
			APIKey:        v.GetString("AUTH_API_KEY"),
			JWTSecret:     v.GetString("AUTH_JWT_SECRET"),
			JWTIssuer:     v.GetString("AUTH_JWT_ISSUER"),
			JWTTTL:        v.GetDuration("AUTH_JWT_TTL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return errors.Newf("STORE_BACKEND must be %s or %s, got %q", BackendMemory, BackendPostgres, c.Store.Backend)
	}
	switch c.Lock.Backend {
	case BackendMemory, BackendRedis:
	default:
		return errors.Newf("LOCK_BACKEND must be %s or %s, got %q", BackendMemory, BackendRedis, c.Lock.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Scheduler.Workers < 1 {
		return errors.Newf("SCHEDULER_WORKERS must be positive, got %d", c.Scheduler.Workers)
	}
	return nil
}

// Location resolves SCHEDULER_TIMEZONE
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "SCHEDULER_TIMEZONE %q", c.Scheduler.Timezone)
	}
	return loc, nil
}

// Addr is the listen address of the ops server
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port,
		c.Database.DBName, c.Database.SSLMode)
}
