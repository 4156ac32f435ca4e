// Package main is the entry point for the background worker.
//
// The worker owns the scheduled jobs:
//   - Daily pickup reconciliation: scan the day's custody ledger after the
//     cutoff and notify guardians of children never picked up.
//   - Year-end cleanup: drop ledger events past the retention horizon.
//
// It shares the database schema with the API process and runs migrations on
// startup so either process can be deployed first.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brightsprouts/daycare-hub/config"
	"github.com/brightsprouts/daycare-hub/internal/domain/notification"
	"github.com/brightsprouts/daycare-hub/internal/infrastructure/notifier"
	"github.com/brightsprouts/daycare-hub/internal/infrastructure/persistence/postgres"
	"github.com/brightsprouts/daycare-hub/internal/infrastructure/persistence/redis"
	"github.com/brightsprouts/daycare-hub/internal/infrastructure/scheduler"
	"github.com/brightsprouts/daycare-hub/internal/infrastructure/scheduler/jobs"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Logging
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting daycare hub worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"facility", cfg.App.FacilityName,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Database
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if cfg.Database.RunMigrations {
		log.Info("checking database migrations")
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	eventRepo := postgres.NewEventRepository(dbConn)
	cursorRepo := postgres.NewCursorRepository(dbConn)
	studentRepo := postgres.NewStudentRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var lock jobs.JobLock = noopLock{}

	if !cfg.Redis.Disabled {
		log.Info("connecting to redis")
		cache, err := connectRedis(cfg)
		if err != nil {
			// The durable cursor still prevents duplicate passes; losing
			// the lease only costs extra work when two workers race.
			log.Warn("redis unavailable, running without the job lease", "error", err)
		} else {
			defer cache.Close()
			lock = redis.NewJobLock(cache)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Notifier
	// ─────────────────────────────────────────────────────────────────────────
	var notify notification.Notifier
	if cfg.Email.Disabled {
		log.Warn("SES disabled, notifications will only be logged")
		notify = logNotifier{logger: log}
	} else {
		emailCfg := notifier.DefaultConfig()
		emailCfg.Region = cfg.Email.Region
		emailCfg.Sender = cfg.Email.Sender
		emailCfg.SendTimeout = cfg.Email.SendTimeout

		notify, err = notifier.NewEmailNotifier(ctx, emailCfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize SES notifier: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Scheduler and jobs
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	if cfg.Reconciliation.Enabled {
		pickupJob := jobs.NewPickupReconciliationJob(
			eventRepo, cursorRepo, studentRepo, notify, lock,
			log, jobs.PickupReconciliationConfig{
				BusinessDayStartHour: cfg.Reconciliation.BusinessDayStartHour,
				CutoffHour:           cfg.Reconciliation.CutoffHour,
				FacilityName:         cfg.App.FacilityName,
				Timezone:             cfg.App.Location,
				NotifyTimeout:        cfg.Reconciliation.NotifyTimeout,
			},
		)
		pickupSchedule := scheduler.NewDailySchedule(
			cfg.Reconciliation.RunHour, cfg.Reconciliation.RunMinute, cfg.App.Location,
		)
		if err := sched.Register(pickupJob, pickupSchedule); err != nil {
			return fmt.Errorf("failed to register pickup reconciliation: %w", err)
		}
	}

	if cfg.Cleanup.Enabled {
		cleanupJob := jobs.NewYearEndCleanupJob(
			eventRepo, cursorRepo, log, jobs.YearEndCleanupConfig{
				RetentionYears: cfg.Cleanup.RetentionYears,
				Timezone:       cfg.App.Location,
			},
		)
		cleanupSchedule := scheduler.NewIntervalSchedule(cfg.Cleanup.CheckInterval)
		if err := sched.Register(cleanupJob, cleanupSchedule); err != nil {
			return fmt.Errorf("failed to register year-end cleanup: %w", err)
		}
	}

	activity := newJobActivity()
	sched.OnJobStart(activity.jobStarted)
	sched.OnJobComplete(activity.jobCompleted)
	sched.OnJobError(activity.jobFailed)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Status endpoint
	// ─────────────────────────────────────────────────────────────────────────
	var status *statusServer
	if cfg.Observability.WorkerStatusPort > 0 {
		status = newStatusServer(cfg.Observability.WorkerStatusPort, sched, activity, log)
		status.Start()
	}

	log.Info("daycare hub worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	if status != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		if err := status.Shutdown(shutdownCtx); err != nil {
			log.Error("status endpoint shutdown failed", "error", err)
		}
		shutdownCancel()
	}

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", "error", err)
	}

	log.Info("shutdown completed")
	return nil
}

// connectRedis builds the cache client from URL or host/port settings.
func connectRedis(cfg *config.Config) (*redis.Cache, error) {
	if cfg.Redis.URL != "" {
		return redis.NewCacheFromURL(cfg.Redis.URL)
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	return redis.NewCache(redisCfg)
}

// noopLock is the lease used when redis is unavailable. Always acquires.
type noopLock struct{}

func (noopLock) Acquire(context.Context, string) error { return nil }
func (noopLock) Release(context.Context, string) error { return nil }

// logNotifier records deliveries in the log instead of sending them.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Send(_ context.Context, msg notification.Notification) notification.DeliveryResult {
	n.logger.Info("notification (delivery disabled)",
		"recipients", msg.Recipients,
		"subject", msg.Subject,
	)
	return notification.DeliveryResult{Success: true, MessageID: "logged", DeliveredAt: time.Now()}
}

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Observability.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.App.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
