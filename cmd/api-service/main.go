package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/cuongbtq/agent-jobs/internal/api/events"
	"github.com/cuongbtq/agent-jobs/internal/api/handler"
	"github.com/cuongbtq/agent-jobs/internal/api/objectstore"
	"github.com/cuongbtq/agent-jobs/internal/api/router"
	"github.com/cuongbtq/agent-jobs/internal/api/service"
	"github.com/cuongbtq/agent-jobs/internal/api/storage"
	"github.com/cuongbtq/agent-jobs/internal/config"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/migrate"
	"github.com/cuongbtq/agent-jobs/shared/database"
	"github.com/cuongbtq/agent-jobs/shared/logger"
	"github.com/cuongbtq/agent-jobs/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("database_driver", cfg.Database.Driver),
	)

	repo, dbClient, err := initRepository(&cfg.Database, appLogger.Component("database"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	store, err := objectstore.NewFileStore(objectstore.Config{
		RootDir:       cfg.Storage.RootDir,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		SigningSecret: cfg.Storage.SigningSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	var publisher service.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		publisher = events.NewPublisher(rabbitClient)
		appLogger.Info("RabbitMQ connection established")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			appLogger.Warn("Redis unreachable, rate limiting fails open until it recovers",
				slog.String("addr", cfg.Redis.Addr),
				slog.Any("error", err),
			)
		}
		cancel()
	}

	m := metrics.NewMetrics()
	jobService := service.NewJobService(&service.Config{
		Logger:      appLogger.Component("service"),
		Repository:  repo,
		ObjectStore: store,
		Publisher:   publisher,
		Metrics:     m,
		MaxFiles:    cfg.Limits.MaxFiles,
		MaxFileSize: cfg.Limits.MaxFileSize,
		PresignTTL:  cfg.Storage.PresignTTL,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:          appLogger.Component("http"),
		Service:         jobService,
		ObjectStore:     store,
		Metrics:         m,
		DBClient:        dbClient,
		Redis:           redisClient,
		ServiceName:     cfg.App.Name,
		BuyerAPIKeys:    cfg.Auth.BuyerAPIKeys,
		ExecutorAPIKeys: cfg.Auth.ExecutorAPIKeys,
		RateLimit:       cfg.Redis.RateLimit.Requests,
		RateWindow:      cfg.Redis.RateLimit.Window,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete",
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

// initRepository opens the configured job repository. The database client
// is nil for the in-memory driver.
func initRepository(cfg *config.DatabaseConfig, logger *slog.Logger) (service.JobRepository, *database.Client, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("Using in-memory job repository, data is lost on restart")
		repo := storage.NewMemoryStorage()
		now := time.Now().UTC()
		if err := repo.CreateAgent(context.Background(), &domain.Agent{
			ID:        config.DefaultAgentID,
			Name:      "default",
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return nil, nil, fmt.Errorf("failed to seed default agent: %w", err)
		}
		return repo, nil, nil
	}

	dbConfig := &database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	if cfg.AutoMigrate && cfg.Driver == config.DriverPostgres {
		if err := migrate.Run(cfg.Driver, dbConfig.DSN()); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	dbClient, err := database.NewClient(dbConfig, logger)
	if err != nil {
		return nil, nil, err
	}

	// sqlite runs on a single connection, so migrate through it
	if cfg.AutoMigrate && cfg.Driver == config.DriverSQLite {
		if err := migrate.Up(dbClient.GetDB().DB, cfg.Driver); err != nil {
			dbClient.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	logger.Info("Database connection established")
	return storage.NewStorage(dbClient), dbClient, nil
}

// initRabbitMQ connects the event publisher to the jobs exchange
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}
