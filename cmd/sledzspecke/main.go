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
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sledzspecke/internal/app/events"
	"sledzspecke/internal/app/tracker"
	"sledzspecke/internal/config"
	"sledzspecke/internal/domain/event"
	"sledzspecke/internal/handler/http/monitoring"
	tracker_http "sledzspecke/internal/handler/http/tracker"
	"sledzspecke/internal/infrastructure/database"
	kafka_infra "sledzspecke/internal/infrastructure/kafka"
	"sledzspecke/internal/outbox"
	"sledzspecke/internal/repository/outbox_repo"
	outbox_pg "sledzspecke/internal/repository/outbox_repo/postgres"
	outbox_sqlite "sledzspecke/internal/repository/outbox_repo/sqlite"
	procedure_pg "sledzspecke/internal/repository/procedure_repo/postgres"
	shift_pg "sledzspecke/internal/repository/shift_repo/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
	}

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
	defer appLogger.Sync()
	appLogger.Info("SledzSpecke service starting...")

	db, outboxStore, err := openStorage(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		}
	}()

	registry := outbox.NewEventRegistry()
	registry.MustRegister(event.TypeMedicalShiftApproved, event.DecodeMedicalShiftApproved)
	registry.MustRegister(event.TypeProcedureCreated, event.DecodeProcedureCreated)

	publisher, closePublisher, err := buildPublisher(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to build event publisher", zap.Error(err))
	}
	defer closePublisher()

	dispatcher := outbox.NewDispatcher(outboxStore, registry, publisher, outbox.Config{
		PollInterval:   cfg.OutboxPollInterval,
		BatchSize:      cfg.OutboxBatchSize,
		MaxRetries:     cfg.OutboxMaxRetries,
		PublishTimeout: cfg.OutboxPublishTimeout,
	}, appLogger.With(zap.String("component", "OutboxDispatcher")))

	writer := outbox.NewWriter(outboxStore, appLogger.With(zap.String("component", "OutboxWriter")))
	shiftRepo := shift_pg.NewShiftRepository(appLogger)
	procedureRepo := procedure_pg.NewProcedureRepository(appLogger)
	trackerService := tracker.NewTrackerService(db, shiftRepo, procedureRepo, writer, appLogger.With(zap.String("component", "TrackerService")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	router := chi.NewRouter()
	monitoring.RegisterRoutes(router, outboxStore, appLogger)
	tracker_http.RegisterRoutes(router, trackerService, appLogger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		appLogger.Info("HTTP server listening", zap.Int("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Outbox dispatcher shutdown failed", zap.Error(err))
	}
	appLogger.Info("SledzSpecke service stopped")
}

func openStorage(cfg *config.Config, logger *zap.Logger) (*sql.DB, outbox_repo.OutboxRepository, error) {
	if cfg.StorageBackend == config.StorageSQLite {
		db, err := database.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := outbox_sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Using embedded sqlite storage", zap.String("path", cfg.SQLitePath))
		return db, outbox_sqlite.NewOutboxRepository(db, logger), nil
	}

	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	var db *sql.DB
	var err error
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			logger.Info("Connected to PostgreSQL database")
			break
		}
		logger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...",
			i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	if db == nil {
		return nil, nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, err)
	}

	logger.Info("Running database migrations...")
	m, err := migrate.New("file://migrations", cfg.GetDBMigrationConnectionString())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed")

	return db, outbox_pg.NewOutboxRepository(db, logger), nil
}

func buildPublisher(cfg *config.Config, logger *zap.Logger) (outbox.Publisher, func(), error) {
	if cfg.Publisher == config.PublisherKafka {
		kafkaPublisher := kafka_infra.NewPublisher(cfg.GetKafkaBrokers(), cfg.KafkaDomainEventsTopic,
			logger.With(zap.String("component", "KafkaPublisher")))
		logger.Info("Publishing domain events to Kafka",
			zap.Strings("brokers", cfg.GetKafkaBrokers()),
			zap.String("topic", cfg.KafkaDomainEventsTopic))
		return kafkaPublisher, func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error("Failed to close Kafka publisher", zap.Error(err))
			}
		}, nil
	}

	publisher := outbox.NewInProcessPublisher(logger.With(zap.String("component", "EventPublisher")))
	if err := events.Register(publisher, logger); err != nil {
		return nil, nil, err
	}
	return publisher, func() {}, nil
}
