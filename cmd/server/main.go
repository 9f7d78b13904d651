package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/api"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/broker"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/bus"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/config"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/gateway"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/notify"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/scheduler"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL (document store)
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis (pub/sub transport)
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Channel broker over Redis pub/sub
	brk := broker.New(broker.NewRedisTransport(redisStore.Client()), logger)

	// Event bus with a worker pool for blocking handlers
	pool := bus.NewPool(cfg.NumWorkers, logger)
	pool.Start(ctx)
	eventBus := bus.New(pool, logger)

	// Wire the notification pipeline
	materializer := notify.NewMaterializer(pgStore, brk, logger)
	eventBus.Subscribe(domain.EventDeadlineApproaching, materializer)
	eventBus.Subscribe(domain.EventDeadlineMissed, materializer)
	eventBus.Subscribe(domain.EventApplicationCreated, materializer)

	scanner := notify.NewScanner(pgStore, eventBus, logger)

	// Daily deadline scan
	runner := scheduler.NewRunner("deadline-scan", cfg.ScanInterval, func(ctx context.Context) error {
		_, err := scanner.Run(ctx)
		return err
	}, logger)
	go runner.Start(ctx)

	// Real-time delivery gateway
	gw := gateway.New(brk, logger)

	health := api.HealthHandler(map[string]api.Pinger{
		"postgres": pgStore,
		"redis":    redisStore,
	})
	router := api.NewRouter(pgStore, eventBus, brk, scanner, gw, health, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancel()
	if err := brk.Shutdown(shutdownCtx); err != nil {
		logger.Error("broker shutdown failed", "error", err)
	}
	pool.Stop()

	logger.Info("server stopped")
}
