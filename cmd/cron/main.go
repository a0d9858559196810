package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/callsched/core/internal/config"
	"github.com/callsched/core/pkg/actions"
	"github.com/callsched/core/pkg/auth"
	"github.com/callsched/core/pkg/database/pool"
	"github.com/callsched/core/pkg/execution"
	"github.com/callsched/core/pkg/handlers/health"
	"github.com/callsched/core/pkg/httpexec"
	"github.com/callsched/core/pkg/jobs"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/server"
	"github.com/callsched/core/pkg/services"
	"github.com/callsched/core/pkg/store"
	"github.com/callsched/core/pkg/validation"
)

const onceTimeout = 10 * time.Minute

func main() {
	// Parse command line flags
	var (
		jobKey = flag.String("job", "", "Key of the job to run with -once")
		once   = flag.Bool("once", false, "Run the job given by -job once and exit")
	)
	flag.Parse()

	logger.SetupLogger()
	log := logger.New("callsched-cron")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	ctx := context.Background()

	if err := actions.ValidateConditions(); err != nil {
		log.Fatalf("Invalid action conditions: %v", err)
	}
	authRegistry := auth.NewDefaultRegistry(auth.Config{
		BearerToken:   cfg.Auth.BearerToken,
		BasicUsername: cfg.Auth.BasicUsername,
		BasicPassword: cfg.Auth.BasicPassword,
		APIKeyHeader:  cfg.Auth.APIKeyHeader,
		APIKey:        cfg.Auth.APIKey,
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTIssuer:     cfg.Auth.JWTIssuer,
		JWTTTL:        cfg.Auth.JWTTTL,
	})
	if err := authRegistry.Validate(); err != nil {
		log.Fatalf("Invalid authentication providers: %v", err)
	}

	jobStore, taskStore, dbPool := openStore(ctx, cfg, log)
	if dbPool != nil {
		defer dbPool.Close()
	}
	locks, redisClient := openLocks(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	location, _ := cfg.Location()
	engine := validation.NewDefaultEngine()
	runJob := actions.NewRunJobRunner(log)
	actionRegistry := actions.NewRegistry(log, runJob)

	taskService := services.NewTaskService(taskStore, jobStore, actionRegistry, cfg.Store.SearchWindow, log)
	client := httpexec.New(httpexec.Config{
		Timeout:            cfg.HTTPClient.Timeout,
		BreakerEnabled:     cfg.HTTPClient.BreakerEnabled,
		BreakerMaxFailures: cfg.HTTPClient.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.HTTPClient.BreakerOpenTimeout,
	}, log)
	unit := execution.NewUnit(jobStore, taskService, client, authRegistry, engine, log)

	scheduler := jobs.NewScheduler(jobs.Config{
		Workers:  cfg.Scheduler.Workers,
		Location: location,
	}, unit, locks, log)
	runJob.Bind(scheduler)

	jobService := services.NewJobService(jobStore, scheduler, engine, actionRegistry, log)

	// Handle single job execution
	if *once {
		runOnce(ctx, *jobKey, scheduler, cfg, log)
		return
	}

	if _, err := jobService.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to load stored jobs: %v", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	healthHandler := health.NewHandler(scheduler, log).WithCheck("locks", locks)
	if dbPool != nil {
		healthHandler.
			WithCheck("database", dbPool).
			WithDatabase(func() pool.Stats { return pool.GetStats(dbPool) })
	}
	ops := server.New(cfg.Addr(), healthHandler, log)
	go func() {
		if err := ops.Start(); err != nil {
			log.Error().Err(err).Str("action", "server_failed").Msg("Ops server stopped unexpectedly")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Str("action", "shutdown").Msg("Shutting down scheduler service")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	if err := ops.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("action", "shutdown").Msg("Ops server did not stop cleanly")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Str("action", "shutdown").Msg("Scheduler did not drain before timeout")
	}
	log.Info().Str("action", "shutdown_complete").Msg("Scheduler service stopped")
}

func runOnce(ctx context.Context, key string, scheduler *jobs.Scheduler, cfg *config.Config, log *logger.Logger) {
	if key == "" {
		log.Fatalf("-once requires -job KEY")
	}

	runCtx, cancel := context.WithTimeout(ctx, onceTimeout)
	defer cancel()

	task, err := scheduler.RunNow(runCtx, key)

	// follow-up executions triggered by post actions finish before exit
	stopCtx, stopCancel := context.WithTimeout(ctx, cfg.Scheduler.ShutdownTimeout)
	defer stopCancel()
	if stopErr := scheduler.Stop(stopCtx); stopErr != nil {
		log.Error().Err(stopErr).Str("action", "shutdown").Msg("Follow-up executions did not finish")
	}

	if err != nil {
		log.Fatalf("Failed to execute job %s: %v", key, err)
	}
	log.Info().
		Str("action", "run_once").
		Str("job_key", key).
		Int64("task_id", task.ID).
		Str("status", string(task.Status)).
		Msg("Job executed")
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.JobStore, store.TaskStore, *pgxpool.Pool) {
	if cfg.Store.Backend != config.BackendPostgres {
		mem := store.NewMemory()
		log.Warn().Str("action", "store_memory").Msg("Using in-memory store, jobs and tasks are lost on restart")
		return mem, mem.Tasks(), nil
	}

	db, err := pool.New(ctx, cfg.DatabaseURL(), pool.DefaultConfig(), log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	pg := store.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		log.Fatalf("Failed to prepare database schema: %v", err)
	}
	return pg, pg.Tasks(), db
}

func openLocks(cfg *config.Config, log *logger.Logger) (jobs.JobLockManager, *redis.Client) {
	if cfg.Lock.Backend != config.BackendRedis {
		return jobs.NewMemoryLockManager(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return jobs.NewRedisLockManager(client, cfg.Lock.TTL, log), client
}
