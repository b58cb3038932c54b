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

	"github.com/cuongbtq/agent-jobs/internal/config"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/worker"
	"github.com/cuongbtq/agent-jobs/internal/worker/client"
	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/cuongbtq/agent-jobs/internal/worker/runner"
	"github.com/cuongbtq/agent-jobs/shared/logger"
	"github.com/cuongbtq/agent-jobs/shared/rabbitmq"
	"github.com/joho/godotenv"
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
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("agent_id", cfg.Worker.AgentID),
		slog.String("runner", cfg.Worker.Runner.Kind),
	)

	taskRunner, err := runner.New(cfg.Worker.Runner, appLogger.Component("runner"))
	if err != nil {
		return fmt.Errorf("failed to initialize runner: %w", err)
	}

	apiClient := client.NewClient(&client.Config{
		Logger:         appLogger.Component("client"),
		BaseURL:        cfg.Worker.APIBaseURL,
		APIKey:         cfg.Worker.APIKey,
		RequestTimeout: cfg.Worker.RequestTimeout,
		UploadTimeout:  cfg.Worker.UploadTimeout,
	})

	// Wake-ups are optional, polling alone is enough to make progress
	var rabbitClient *rabbitmq.Client
	if cfg.Worker.WakeOnEvents {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
		if err != nil {
			appLogger.Warn("RabbitMQ unavailable, polling only",
				slog.Any("error", err),
			)
			rabbitClient = nil
		} else {
			appLogger.Info("RabbitMQ connection established")
		}
	}

	m := metrics.NewMetrics()

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:         appLogger.Logger,
		Client:         apiClient,
		Runner:         taskRunner,
		Metrics:        m,
		RabbitClient:   rabbitClient,
		AgentID:        cfg.Worker.AgentID,
		WorkRoot:       cfg.Worker.WorkRoot,
		PollInterval:   cfg.Worker.PollInterval,
		JobTimeout:     cfg.Worker.JobTimeout,
		MaxJobsPerPoll: cfg.Worker.MaxJobsPerPoll,
	})

	// Canceled only after the loop has returned, to release the consumer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	appLogger.Info("Worker service started successfully")

	runErr := workerInstance.Run(ctx, quit)
	if runErr != nil {
		appLogger.Error("Worker error",
			slog.Any("error", runErr),
		)
	}

	cancel()
	if rabbitClient != nil {
		rabbitClient.Close()
	}
	workerInstance.Wait()

	if runErr != nil {
		return runErr
	}

	appLogger.Info("Worker service shutdown complete",
		slog.Any("metrics", m.GetSnapshot()),
	)
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   timeFormat,
	})
}

// initRabbitMQ binds this worker's queue to job.created events
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
		DeclareQueue:       true,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		BindingKeys:        []string{domain.EventJobCreated},
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
