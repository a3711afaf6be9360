package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppob-wallet-ledger/internal/api_gateway"
	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
	"github.com/ppob-wallet-ledger/internal/auth"
	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/data/mongo"
	"github.com/ppob-wallet-ledger/internal/data/postgres"
	"github.com/ppob-wallet-ledger/internal/data/redis"
	"github.com/ppob-wallet-ledger/internal/ledger"
	"github.com/ppob-wallet-ledger/internal/logger"
	"github.com/ppob-wallet-ledger/internal/notification"
	"github.com/ppob-wallet-ledger/internal/orchestrator"
	"github.com/ppob-wallet-ledger/internal/paymentgateway"
	"github.com/ppob-wallet-ledger/internal/platform/messaging/producers"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
	"github.com/ppob-wallet-ledger/internal/platform/telemetry"
	"github.com/ppob-wallet-ledger/internal/providers"
	"github.com/ppob-wallet-ledger/internal/settlement"
	"github.com/ppob-wallet-ledger/internal/topup"
	"github.com/ppob-wallet-ledger/internal/webhook"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

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

	// Initialize storage with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisClient, err := persistence.OpenRedis(appCtx, log, cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	users := postgres.NewUserRepository(log, postgresDB)
	txns := postgres.NewWalletTransactionRepository(log, postgresDB)
	transfers := postgres.NewTransferRepository(log, postgresDB)
	topUps := postgres.NewTopUpRepository(log, postgresDB)
	bills := postgres.NewBillRepository(log, postgresDB)
	settlements := postgres.NewSettlementRepository(log, postgresDB)
	margins := postgres.NewMarginRepository(log, postgresDB)
	changes := postgres.NewProviderChangeRepository(log, postgresDB)
	registrations := postgres.NewProviderRegistrationRepository(log, postgresDB)
	webhookLogs := mongo.NewWebhookLogRepository(log, mongoDB.Database())

	// Notifications go out on a worker pool so they never block a ledger write
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

	alertProducer, err := producers.NewAlertProducer(log, cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize alert producer", "error", err)
		os.Exit(1)
	}

	// Provider orchestrator
	registry := orchestrator.NewRegistry()
	if err := providers.Register(registry); err != nil {
		log.Error("Failed to register provider kinds", "error", err)
		os.Exit(1)
	}
	entries, err := registry.Build(cfg.Providers, cfg.Orchestrator.DefaultMaxErrors, log)
	if err != nil {
		log.Error("Failed to build providers", "error", err)
		os.Exit(1)
	}
	orch, err := orchestrator.New(orchestrator.Options{
		Entries:        entries,
		Strategy:       cfg.Orchestrator.Strategy,
		AttemptTimeout: cfg.Orchestrator.AttemptTimeout,
		Store:          registrations,
		Metrics:        metrics,
		Logger:         log,
	})
	if err != nil {
		log.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}
	if err := orch.Restore(appCtx); err != nil {
		log.Warn("Failed to restore provider state, starting from config", "error", err)
	}
	if err := orch.LoadMargins(appCtx, margins); err != nil {
		log.Error("Failed to load margin rules", "error", err)
		os.Exit(1)
	}
	health, err := orchestrator.NewHealthMonitor(orch, orchestrator.HealthMonitorConfig{
		PoolSize: cfg.WorkerPool.Size,
		Interval: cfg.Orchestrator.HealthCheckInterval,
		Timeout:  cfg.Orchestrator.HealthCheckTimeout,
	}, log)
	if err != nil {
		log.Error("Failed to initialize health monitor", "error", err)
		os.Exit(1)
	}
	go health.Start(appCtx)

	gateway, err := paymentgateway.New(cfg.Gateway, log)
	if err != nil {
		log.Error("Failed to initialize payment gateway", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	// Initialize services
	engine := ledger.NewEngine(ledger.Options{
		DB:          postgresDB,
		Users:       users,
		Txns:        txns,
		Transfers:   transfers,
		TransferMax: cfg.Limits.TransferMax,
		Notifier:    dispatcher,
		Metrics:     metrics,
		Logger:      log,
	})
	workflow := topup.NewWorkflow(topup.Options{
		DB:       postgresDB,
		Requests: topUps,
		Users:    users,
		Ledger:   engine,
		Gateway:  gateway,
		Limits:   cfg.Limits,
		Notifier: dispatcher,
		Logger:   log,
	})
	settlementOpts := settlement.Options{
		DB:          postgresDB,
		Users:       users,
		Bills:       bills,
		Settlements: settlements,
		Ledger:      engine,
		Router:      orch,
		Notifier:    dispatcher,
		Metrics:     metrics,
		Logger:      log,
	}
	if alertProducer != nil {
		settlementOpts.Alerts = alertProducer
	}
	billing := settlement.NewService(settlementOpts)
	reconciler := webhook.NewReconciler(webhook.Options{
		Logs:      webhookLogs,
		Gateway:   gateway,
		TopUps:    workflow,
		Bills:     billing,
		Verifiers: orch,
		Metrics:   metrics,
		Logger:    log,
	})

	server := api_gateway.NewServer(log, cfg, api_gateway.Dependencies{
		Wallets:     engine,
		TopUps:      workflow,
		Bills:       billing,
		Providers:   service.NewProviderService(orch, health, orchestrator.NewAdmin(orch, changes, margins, log)),
		Webhooks:    reconciler,
		WebhookLogs: webhookLogs,
		Tokens:      tokens,
		Idempotency: redis.NewIdempotencyStore(redisClient),
		Checks: map[string]func(context.Context) error{
			"postgres": postgresDB.Ping,
			"mongodb":  mongoDB.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop taking requests before tearing down what they depend on
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	health.Shutdown()

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

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}
	if err = redisClient.Close(); err != nil {
		log.Error("Error closing Redis connection", "error", err)
	}
	if err = shutdownTelemetry(shutdownCtx); err != nil {
		log.Error("Error flushing telemetry", "error", err)
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
