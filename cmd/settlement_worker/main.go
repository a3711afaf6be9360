package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/data/postgres"
	"github.com/ppob-wallet-ledger/internal/ledger"
	"github.com/ppob-wallet-ledger/internal/logger"
	"github.com/ppob-wallet-ledger/internal/notification"
	"github.com/ppob-wallet-ledger/internal/platform/messaging/producers"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
	"github.com/ppob-wallet-ledger/internal/platform/telemetry"
	"github.com/ppob-wallet-ledger/internal/settlement"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("settlement_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	shutdownTelemetry, err := telemetry.Init(appCtx, log, cfg.Telemetry)
	if err != nil {
		log.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	metrics, err := telemetry.DefaultMetrics()
	if err != nil {
		log.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	users := postgres.NewUserRepository(log, postgresDB)
	settlements := postgres.NewSettlementRepository(log, postgresDB)

	// alertProducer is nil when no alert topic is configured
	alertProducer, err := producers.NewAlertProducer(log, cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize alert producer", "error", err)
		os.Exit(1)
	}

	notifier, err := notification.NewNotifier(cfg, log)
	if err != nil {
		log.Error("Failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	dispatcher, err := notification.NewPoolDispatcher(notifier, cfg.WorkerPool.Size, cfg.Notifier.Timeout, log)
	if err != nil {
		log.Error("Failed to initialize notification dispatcher", "error", err)
		os.Exit(1)
	}

	engine := ledger.NewEngine(ledger.Options{
		DB:          postgresDB,
		Users:       users,
		Txns:        postgres.NewWalletTransactionRepository(log, postgresDB),
		Transfers:   postgres.NewTransferRepository(log, postgresDB),
		TransferMax: cfg.Limits.TransferMax,
		Notifier:    dispatcher,
		Metrics:     metrics,
		Logger:      log,
	})

	// The sweeper only completes settlements, so no provider router is needed
	opts := settlement.Options{
		DB:          postgresDB,
		Users:       users,
		Bills:       postgres.NewBillRepository(log, postgresDB),
		Settlements: settlements,
		Ledger:      engine,
		Notifier:    dispatcher,
		Metrics:     metrics,
		Logger:      log,
	}
	if alertProducer != nil {
		opts.Alerts = alertProducer
	}
	sweeper := settlement.NewSweeper(cfg.Settlement, settlement.NewService(opts), settlements, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info("Shutdown signal received")

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Sweeper stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if err = dispatcher.Shutdown(cfg.Notifier.Timeout); err != nil {
		log.Error("Error draining notifications", "error", err)
	}
	if err = notifier.Close(); err != nil {
		log.Error("Error closing notifier", "error", err)
	}
	if alertProducer != nil {
		if err = alertProducer.Close(); err != nil {
			log.Error("Error closing alert producer", "error", err)
		}
	}

	postgresDB.Close()

	if err = shutdownTelemetry(shutdownCtx); err != nil {
		log.Error("Error flushing telemetry", "error", err)
	}

	if err != nil {
		log.Error("Settlement Worker shutdown completed with errors")
	} else {
		log.Info("Settlement Worker shutdown completed successfully")
	}
}
