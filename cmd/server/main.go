// Package main provides the API server entry point for the portfolio dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chain-portfolio/internal/api"
	"github.com/chain-portfolio/internal/app"
	"github.com/chain-portfolio/internal/auth"
	"github.com/chain-portfolio/internal/config"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/notify"
	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/storage"
	"github.com/chain-portfolio/internal/tracker"
)

func main() {
	fmt.Println("Chain Portfolio API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if os.Getenv("AUTO_MIGRATE") == "true" {
		if err := storage.RunMigrations(storage.ConnectionURL(&cfg.Database.Postgres), storage.DefaultMigrationsPath); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
		logger.Info("Database migrations applied")
	}

	healthChecks := map[string]api.HealthCheck{
		"postgres": postgres.Ping,
	}

	// Redis is optional; without it responses and prices are cached in-process only
	var cache *storage.CacheService
	var portfolioCache service.PortfolioCache
	if cfg.Database.Redis.Enabled() {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer func() {
			_ = redis.Close()
		}()
		cache = storage.NewCacheService(redis, cfg.Cache.PortfolioTTL)
		portfolioCache = cache
		healthChecks["redis"] = redis.Ping
	} else {
		logger.Warn("Redis not configured - shared caching disabled")
	}

	logger.Info("Database connections established")

	// Upstream clients, prices and chain adapters
	clients := app.NewClients(cfg.Providers.Timeout)
	clients.EnableRetry(cfg.Providers.RetryAttempts)
	prices := app.NewPriceResolver(cfg.Pricing, clients, cache)
	registry := app.NewRegistry(cfg.Providers, clients, prices)

	// Initialize repositories
	walletRepo := storage.NewWalletRepository(postgres)
	alertRepo := storage.NewAlertRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(postgres)

	// Initialize services
	logger.Info("Initializing services...")

	trackerCfg := tracker.Config{
		FetchTimeout:    cfg.Tracker.FetchTimeout,
		RefreshInterval: cfg.Tracker.RefreshInterval,
	}

	portfolioService := service.NewPortfolioService(registry, prices, portfolioCache, cfg.Cache.PortfolioTTL)
	walletService := service.NewWalletService(walletRepo, portfolioService, trackerCfg)
	dashboardService := service.NewDashboardService(portfolioService, walletService, trackerCfg)

	var notifier service.AlertNotifier
	mailer, err := notify.New(cfg.Mail)
	switch {
	case err == nil:
		notifier = mailer
		logger.WithField("provider", mailer.Provider()).Info("Alert email enabled")
	case errors.Is(err, notify.ErrNotConfigured):
		logger.Warn("Mail not configured - alerts will trigger without email")
	default:
		logger.WithError(err).Fatal("Invalid mail configuration")
	}
	alertService := service.NewAlertService(alertRepo, prices, notifier, cfg.Alerts.Cooldown)

	snapshotService := service.NewSnapshotService(snapshotRepo, walletService, portfolioService, trackerCfg)
	snapshotService.SetConcurrency(cfg.Cron.Concurrency)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
	if !verifier.IsConfigured() {
		logger.Warn("AUTH_JWT_SECRET not set - signed-in routes are disabled")
	}

	logger.Info("Services initialized")

	// In-process scheduler unless snapshots are driven by the cron endpoint
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if os.Getenv("SNAPSHOT_SCHEDULER") == "true" {
		if err := snapshotService.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start snapshot scheduler")
		}
		defer func() {
			_ = snapshotService.Stop()
		}()
	}

	// Sweep expired price quotes
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prices.Cache().Sweep()
			}
		}
	}()

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: 10 * time.Second,
		RPS:             cfg.Server.RPS,
		CronSecret:      cfg.Cron.Secret,
	}

	server := api.NewServer(serverConfig, api.Services{
		Portfolio:    portfolioService,
		Wallets:      walletService,
		Dashboard:    dashboardService,
		Alerts:       alertService,
		Snapshots:    snapshotService,
		Verifier:     verifier,
		HealthChecks: healthChecks,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"chains": registry.Chains(),
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
