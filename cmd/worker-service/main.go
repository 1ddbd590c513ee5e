package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/judgmentops/queue-be/internal/alert"
	"github.com/judgmentops/queue-be/internal/config"
	"github.com/judgmentops/queue-be/internal/health"
	"github.com/judgmentops/queue-be/internal/jobs"
	"github.com/judgmentops/queue-be/internal/migrate"
	"github.com/judgmentops/queue-be/internal/queue/storage"
	"github.com/judgmentops/queue-be/internal/reaper"
	"github.com/judgmentops/queue-be/internal/worker"
	"github.com/judgmentops/queue-be/shared/logger"
	"github.com/judgmentops/queue-be/shared/postgresql"
	"github.com/judgmentops/queue-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Apply pending schema migrations before opening the pool
	if cfg.Database.MigrateOnStart {
		if err := migrate.Run(cfg.Database.DSN(), cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		appLogger.Info("Database migrations applied")
	}

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	store := storage.NewStorage(dbClient, appLogger.Logger)

	// Initialize the alert sink. Without RabbitMQ the health monitor still
	// runs and logs transitions, it just has nowhere to publish them.
	var rabbitClient *rabbitmq.Client
	var sink alert.Notifier = alert.NopNotifier{}
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		appLogger.Info("RabbitMQ connection established")

		if cfg.Health.MonitorAlertsEnabled {
			sink = alert.NewRabbitNotifier(rabbitClient, appLogger.Logger, cfg.App.Name, cfg.App.Environment)
		}
	}

	// Register job handlers
	registry := worker.NewRegistry()
	if err := jobs.RegisterBuiltins(registry, appLogger.Logger); err != nil {
		return fmt.Errorf("failed to register job handlers: %w", err)
	}

	appLogger.Info("Job handlers registered",
		slog.Any("job_types", registry.Types()),
	)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		Store:             store,
		Registry:          registry,
		Concurrency:       cfg.Worker.Concurrency,
		PollInterval:      cfg.Worker.PollInterval,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	// Schedule the background sweeps
	sweeper := reaper.New(&reaper.Config{
		Logger:       appLogger.Logger,
		Store:        store,
		StuckTimeout: cfg.Reaper.StuckTimeout,
	})

	checker := health.NewChecker(
		appLogger.Logger,
		store,
		cfg.Health,
		cfg.Reaper.StuckTimeout,
		cfg.App.Environment,
	)
	monitor := alert.NewMonitor(appLogger.Logger, checker, sink)

	scheduler := cron.New()
	if _, err := scheduler.AddJob(cfg.Reaper.Schedule, sweeper); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", cfg.Reaper.Schedule, err)
	}
	if cfg.Health.MonitorSchedule != "" {
		if _, err := scheduler.AddJob(cfg.Health.MonitorSchedule, monitor); err != nil {
			return fmt.Errorf("invalid health monitor schedule %q: %w", cfg.Health.MonitorSchedule, err)
		}
	}
	scheduler.Start()

	appLogger.Info("Background schedules started",
		slog.String("reaper_schedule", cfg.Reaper.Schedule),
		slog.String("monitor_schedule", cfg.Health.MonitorSchedule),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.WorkerID()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Stop scheduling new sweeps; a sweep already in flight finishes
	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	// Stop claiming new jobs and wait for in-flight jobs to finish
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client for alert publishing
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
