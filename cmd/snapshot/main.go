// Package main provides the snapshot worker entry point.
// It records a portfolio value snapshot for every user at the top of each hour.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chain-portfolio/internal/app"
	"github.com/chain-portfolio/internal/config"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/storage"
	"github.com/chain-portfolio/internal/tracker"
)

func main() {
	fmt.Println("Portfolio Snapshot Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)
	logger := logging.GetGlobalLogger()

	// Connect to database
	logger.Info("Connecting to database...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	logger.Info("Database connection established")

	clients := app.NewClients(cfg.Providers.Timeout)
	clients.EnableRetry(cfg.Providers.RetryAttempts)
	prices := app.NewPriceResolver(cfg.Pricing, clients, nil)
	registry := app.NewRegistry(cfg.Providers, clients, prices)

	trackerCfg := tracker.Config{
		FetchTimeout:    cfg.Tracker.FetchTimeout,
		RefreshInterval: cfg.Tracker.RefreshInterval,
	}

	// Initialize snapshot service
	portfolioService := service.NewPortfolioService(registry, prices, nil, 0)
	walletService := service.NewWalletService(storage.NewWalletRepository(postgres), portfolioService, trackerCfg)
	snapshotService := service.NewSnapshotService(
		storage.NewSnapshotRepository(postgres),
		walletService,
		portfolioService,
		trackerCfg,
	)
	snapshotService.SetConcurrency(cfg.Cron.Concurrency)

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	// Check for one-time run mode
	if len(os.Args) > 1 && os.Args[1] == "run" {
		logger.Info("Running snapshot immediately...")
		result, err := snapshotService.Run(ctx)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create snapshots")
		}
		logger.WithFields(map[string]interface{}{
			"count":  result.Count,
			"failed": result.Failed,
		}).Info(result.Message)
		return
	}

	// Start scheduler
	logger.Info("Starting snapshot scheduler...")
	if err := snapshotService.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start snapshot scheduler")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down snapshot worker...")
	if err := snapshotService.Stop(); err != nil {
		logger.WithError(err).Warn("Scheduler stop failed")
	}
	logger.Info("Worker stopped")
}
