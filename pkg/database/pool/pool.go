package pool

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
)

// Config holds connection pool settings for the job and task store
type Config struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	// PingRetries is how many times New pings before giving up
	PingRetries int
	// RetryDelay is the wait between failed pings
	RetryDelay time.Duration
}

// DefaultConfig returns pool settings sized for the scheduler: one short
// transaction per task save, a handful of worker goroutines.
func DefaultConfig() *Config {
	return &Config{
		MaxConns:          20,
		MinConns:          2,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		PingRetries:       3,
		RetryDelay:        2 * time.Second,
	}
}

// New creates a connection pool and verifies it answers a ping
func New(ctx context.Context, databaseURL string, cfg *Config, log *logger.Logger) (*pgxpool.Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database URL")
	}

	config.MaxConns = cfg.MaxConns
	config.MinConns = cfg.MinConns
	config.MaxConnLifetime = cfg.MaxConnLifetime
	config.MaxConnIdleTime = cfg.MaxConnIdleTime
	config.HealthCheckPeriod = cfg.HealthCheckPeriod
	config.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	config.ConnConfig.RuntimeParams = map[string]string{
		"application_name":                    "callsched",
		"statement_timeout":                   "30000",
		"idle_in_transaction_session_timeout": "60000",
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	if err := ping(ctx, pool, cfg, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("action", "db_connected").
		Int32("max_conns", cfg.MaxConns).
		Msg("Database connection pool established")

	return pool, nil
}

func ping(ctx context.Context, pool *pgxpool.Pool, cfg *Config, log *logger.Logger) error {
	retries := cfg.PingRetries
	if retries < 1 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pool.Ping(pingCtx)
		cancel()

		if err == nil {
			return nil
		}
		if i == retries-1 {
			return errors.Wrapf(err, "ping database after %d retries", retries)
		}

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Str("action", "db_ping_retry").
			Msg("Retrying database connection")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	return nil
}

// Stats returns current pool statistics for monitoring
type Stats struct {
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	TotalConns    int32 `json:"total_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// GetStats returns current pool statistics
func GetStats(pool *pgxpool.Pool) Stats {
	stats := pool.Stat()
	return Stats{
		AcquiredConns: stats.AcquiredConns(),
		IdleConns:     stats.IdleConns(),
		TotalConns:    stats.TotalConns(),
		MaxConns:      stats.MaxConns(),
	}
}
