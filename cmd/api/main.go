// Package main is the entry point for the REST API server.
//
// The API serves the custody event ledger (record, query, delete) and the
// student directory. The daily reconciliation pass runs in the separate
// worker process; both share the same database schema.
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
	"github.com/brightsprouts/daycare-hub/internal/application/command"
	"github.com/brightsprouts/daycare-hub/internal/application/query"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
	"github.com/brightsprouts/daycare-hub/internal/infrastructure/persistence/postgres"
	"github.com/brightsprouts/daycare-hub/internal/infrastructure/persistence/redis"
	httpapi "github.com/brightsprouts/daycare-hub/internal/interface/http"
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
	log.Info("starting daycare hub API",
		"env", cfg.App.Environment,
		"address", fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
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

	var studentRepo student.Repository = postgres.NewStudentRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Redis (optional read-through cache for the directory)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		log.Info("connecting to redis")
		cache, err := connectRedis(cfg)
		if err != nil {
			log.Warn("redis unavailable, directory cache disabled", "error", err)
		} else {
			defer cache.Close()
			studentCache := redis.NewStudentCache(cache, studentRepo)
			if cfg.Database.RunMigrations {
				// Entries cached before a migration may carry the old shape.
				if err := studentCache.Flush(ctx); err != nil {
					log.Warn("failed to flush directory cache", "error", err)
				}
			}
			studentRepo = studentCache
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		RecordEvent:      command.NewRecordEventHandler(studentRepo, eventRepo),
		DeleteEvent:      command.NewDeleteEventHandler(eventRepo),
		RegisterStudent:  command.NewRegisterStudentHandler(studentRepo),
		SetStudentActive: command.NewSetStudentActiveHandler(studentRepo),
		ListEvents:       query.NewListEventsHandler(eventRepo),
		GetEvent:         query.NewGetEventHandler(eventRepo),
		History:          query.NewEventHistoryHandler(eventRepo),
		Directory:        query.NewStudentDirectoryHandler(studentRepo),
		Logger:           log,
		HealthChecker:    dbHealth{conn: dbConn},
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	log.Info("shutdown completed")
	return nil
}

// dbHealth reports database reachability and pool pressure for /health.
type dbHealth struct {
	conn *postgres.Connection
}

func (h dbHealth) Check(ctx context.Context) httpapi.HealthStatus {
	status, err := h.conn.Health(ctx)
	if err != nil {
		return httpapi.HealthStatus{Healthy: false, Message: "database connection closed"}
	}
	if !status.Healthy {
		return httpapi.HealthStatus{Healthy: false, Message: "database unreachable"}
	}
	return httpapi.HealthStatus{
		Healthy: true,
		Message: fmt.Sprintf("ping %s, %d/%d conns in use",
			status.PingLatency.Round(time.Millisecond), status.AcquiredConns, status.MaxConns),
	}
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
