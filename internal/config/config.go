package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	PublisherInProcess = "inprocess"
	PublisherKafka     = "kafka"

	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

type Config struct {
	StorageBackend string
	SQLitePath     string

	DBConfig struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}

	HTTPPort int

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	OutboxMaxRetries     int
	OutboxPublishTimeout time.Duration

	Publisher              string
	KafkaBrokerURL         string
	KafkaDomainEventsTopic string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.StorageBackend = getEnvOrDefault("STORAGE_BACKEND", StoragePostgres)
	cfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", "sledzspecke.db")

	cfg.DBConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("DB_NAME", "sledzspecke_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 50)
	cfg.OutboxMaxRetries = getEnvAsInt("OUTBOX_MAX_RETRIES", 3)
	cfg.OutboxPublishTimeout = getEnvAsDuration("OUTBOX_PUBLISH_TIMEOUT", 10*time.Second)

	cfg.Publisher = getEnvOrDefault("OUTBOX_PUBLISHER", PublisherInProcess)
	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaDomainEventsTopic = getEnvOrDefault("KAFKA_DOMAIN_EVENTS_TOPIC", "domain_events")

	switch cfg.StorageBackend {
	case StoragePostgres, StorageSQLite:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	switch cfg.Publisher {
	case PublisherInProcess, PublisherKafka:
	default:
		return nil, fmt.Errorf("unknown OUTBOX_PUBLISHER %q", cfg.Publisher)
	}

	return cfg, nil
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
