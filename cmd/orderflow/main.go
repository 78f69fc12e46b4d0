package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderflow/internal/catalog"
	"orderflow/internal/config"
	http_orders "orderflow/internal/handler/http/orders"
	"orderflow/internal/infrastructure/database"
	"orderflow/internal/metrics"
	"orderflow/internal/processor"
	"orderflow/internal/queue"
	"orderflow/internal/repository/order_repo"
	memory_order_repo "orderflow/internal/repository/order_repo/memory"
	postgres_order_repo "orderflow/internal/repository/order_repo/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Orderflow service starting...")

	repo, db := buildRepository(cfg, appLogger)
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			} else {
				appLogger.Info("Database connection closed.")
			}
		}()
	}

	workQueue := buildQueue(cfg, appLogger)

	catalogClient := catalog.NewHTTPClient(catalog.HTTPClientOptions{
		BaseURL: cfg.CatalogBaseURL,
		Timeout: cfg.CatalogTimeout,
		Retries: cfg.CatalogRetries,
		Backoff: cfg.CatalogBackoff,
	}, appLogger.With(zap.String("component", "CatalogClient")))

	reg := metrics.NewRegistry()

	proc := processor.New(processor.Config{
		Workers:           cfg.Workers,
		EnrichConcurrency: cfg.EnrichConcurrency,
	}, workQueue, repo, catalogClient, reg, appLogger.With(zap.String("component", "Processor")))

	procCtx, stopProcessor := context.WithCancel(context.Background())
	proc.Start(procCtx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", reg.Handler())
	http_orders.RegisterRoutes(r, workQueue, repo, reg, appLogger)

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Orderflow service started",
		zap.String("address", serverAddr),
		zap.Int("workers", cfg.Workers),
		zap.String("bus", busName(cfg.Bus)),
		zap.String("store", cfg.StoreMode))

	<-sigChan

	appLogger.Info("Shutting down Orderflow service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}

	// Workers finish their in-flight orders before the queue closes.
	stopProcessor()
	proc.Wait()
	if err := workQueue.Close(); err != nil {
		appLogger.Error("Error closing work queue", zap.Error(err))
	}
	appLogger.Info("Orderflow service stopped.")
}

func buildRepository(cfg *config.Config, appLogger *zap.Logger) (order_repo.ProcessedOrderRepository, *sql.DB) {
	if cfg.StoreMode == config.StoreMemory {
		appLogger.Warn("Using in-memory order store; results are lost on restart.")
		return memory_order_repo.NewProcessedOrderRepository(), nil
	}

	appLogger.Info("Waiting for database to be available...")
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.DBHost,
		Port:     cfg.DBConfig.DBPort,
		User:     cfg.DBConfig.DBUser,
		Password: cfg.DBConfig.DBPassword,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.DBSSLMode,
	}

	var (
		db  *sql.DB
		err error
	)
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}

	appLogger.Info("Running database migrations...")
	migrateDSN := "postgres://" + cfg.GetDBMigrationConnectionString()
	m, err := migrate.New(cfg.MigrationsPath, migrateDSN)
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	return postgres_order_repo.NewProcessedOrderRepository(db, appLogger.With(zap.String("component", "OrderRepository"))), db
}

// buildQueue selects the work queue backend. Unreachable external
// infrastructure aborts startup rather than degrading silently.
func buildQueue(cfg *config.Config, appLogger *zap.Logger) queue.Queue {
	switch cfg.Bus {
	case config.BusKafka:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queue.EnsureTopics(ctx, cfg.GetKafkaBrokers(), []string{cfg.KafkaOrdersTopic, cfg.KafkaDeadLetterTopic}, appLogger); err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}
		return queue.NewKafkaQueue(queue.KafkaConfig{
			Brokers:       cfg.GetKafkaBrokers(),
			Topic:         cfg.KafkaOrdersTopic,
			DeadLetters:   cfg.KafkaDeadLetterTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
			MaxAttempts:   cfg.QueueMaxAttempts,
		}, appLogger.With(zap.String("component", "KafkaQueue")))
	case config.BusRedis:
		q := queue.NewRedisQueue(queue.RedisConfig{
			Addr:        cfg.RedisAddr,
			QueueName:   cfg.RedisQueue,
			MaxAttempts: cfg.QueueMaxAttempts,
		}, appLogger.With(zap.String("component", "RedisQueue")))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := q.Ping(ctx); err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		return q
	default:
		return queue.NewMemoryQueue(cfg.QueueCapacity, cfg.QueueMaxAttempts,
			appLogger.With(zap.String("component", "MemoryQueue")))
	}
}

func busName(bus string) string {
	if bus == config.BusInProcess {
		return "in-process"
	}
	return bus
}
