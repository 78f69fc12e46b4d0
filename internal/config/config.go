package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	BusInProcess = ""
	BusKafka     = "kafka"
	BusRedis     = "redis"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPPort int

	Workers          int
	QueueCapacity    int
	QueueMaxAttempts int

	CatalogBaseURL    string
	CatalogTimeout    time.Duration
	CatalogRetries    int
	CatalogBackoff    time.Duration
	EnrichConcurrency int

	StoreMode string
	DBConfig  struct {
		DBHost     string
		DBPort     string
		DBUser     string
		DBPassword string
		DBName     string
		DBSSLMode  string
	}
	MigrationsPath string

	// Bus selects the work queue backend; blank keeps the in-process
	// queue.
	Bus string

	KafkaURL             string
	KafkaOrdersTopic     string
	KafkaDeadLetterTopic string
	KafkaConsumerGroup   string

	RedisAddr  string
	RedisQueue string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	port, err := getEnvInt("ORDERFLOW_HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = port

	if cfg.Workers, err = getEnvInt("ORDERFLOW_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.QueueCapacity, err = getEnvInt("ORDERFLOW_QUEUE_CAPACITY", 100); err != nil {
		return nil, err
	}
	if cfg.QueueMaxAttempts, err = getEnvInt("ORDERFLOW_QUEUE_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	cfg.CatalogBaseURL = getEnvOrDefault("ORDERFLOW_CATALOG_URL", "https://fakestoreapi.com")
	if cfg.CatalogTimeout, err = getEnvDuration("ORDERFLOW_CATALOG_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.CatalogRetries, err = getEnvInt("ORDERFLOW_CATALOG_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.CatalogBackoff, err = getEnvDuration("ORDERFLOW_CATALOG_BACKOFF", "500ms"); err != nil {
		return nil, err
	}
	if cfg.EnrichConcurrency, err = getEnvInt("ORDERFLOW_ENRICH_CONCURRENCY", 4); err != nil {
		return nil, err
	}

	cfg.StoreMode = getEnvOrDefault("ORDERFLOW_STORE", StorePostgres)
	if cfg.StoreMode != StorePostgres && cfg.StoreMode != StoreMemory {
		return nil, fmt.Errorf("invalid ORDERFLOW_STORE %q: must be %q or %q", cfg.StoreMode, StorePostgres, StoreMemory)
	}

	cfg.DBConfig.DBHost = getEnvOrDefault("ORDERFLOW_DB_HOST", "localhost")
	cfg.DBConfig.DBPort = getEnvOrDefault("ORDERFLOW_DB_PORT", "5432")
	cfg.DBConfig.DBUser = getEnvOrDefault("ORDERFLOW_DB_USER", "postgres")
	cfg.DBConfig.DBPassword = getEnvOrDefault("ORDERFLOW_DB_PASSWORD", "postgres")
	cfg.DBConfig.DBName = getEnvOrDefault("ORDERFLOW_DB_NAME", "orderflow_db")
	cfg.DBConfig.DBSSLMode = getEnvOrDefault("ORDERFLOW_DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("ORDERFLOW_MIGRATIONS_PATH", "file://migrations")

	cfg.Bus = strings.ToLower(getEnvOrDefault("ORDERFLOW_BUS", BusInProcess))
	switch cfg.Bus {
	case BusInProcess, BusKafka, BusRedis:
	default:
		return nil, fmt.Errorf("invalid ORDERFLOW_BUS %q: must be blank, %q or %q", cfg.Bus, BusKafka, BusRedis)
	}

	cfg.KafkaURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaOrdersTopic = getEnvOrDefault("KAFKA_ORDERS_TOPIC", "orders")
	cfg.KafkaDeadLetterTopic = getEnvOrDefault("KAFKA_ORDERS_DLQ_TOPIC", "orders_dead_letter")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "orderflow-group")

	cfg.RedisAddr = getEnvOrDefault("ORDER_QUEUE_REDIS_ADDR", "localhost:6379")
	cfg.RedisQueue = getEnvOrDefault("ORDER_QUEUE_REDIS_QUEUE", "orderflow:orders")

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("%s:%s@%s:%s/%s?sslmode=%s",
		c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return []string{c.KafkaURL}
}
