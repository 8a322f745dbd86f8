// Package cli provides common CLI initialization utilities shared by
// cmd/khata and cmd/khata-seed.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"khata/internal/amqp"
	"khata/internal/config"
	"khata/internal/events"
	"khata/internal/kafka"
	"khata/internal/log"
	"khata/internal/storage"
)

// SetupLogger builds the process logger from level and format strings and
// installs it as the slog default.
func SetupLogger(level, format, component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Format = format
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development. A missing file is
// not an error.
func LoadEnvFile() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// OpenStorage connects to DATABASE_URL and applies migrations. For SQLite the
// parent directory of the database file is created first.
func OpenStorage(ctx context.Context, logger *log.Logger, cfg *config.Config) (*storage.Repository, error) {
	dialect, dsn, err := storage.ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if dialect == storage.DialectSQLite {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
	}

	repo, err := storage.Open(ctx, cfg.DatabaseURL, storage.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxOpenConns / 2,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	logger.WithComponent(log.ComponentStorage).Info("Database ready",
		"dialect", string(repo.Dialect()),
		log.FieldOperation, log.OpMigrate)
	return repo, nil
}

// NewPublisher returns the ledger event publisher selected by EVENTS_BACKEND.
func NewPublisher(ctx context.Context, logger *log.Logger, cfg *config.Config) (events.Publisher, error) {
	l := logger.WithComponent(log.ComponentEvents)
	switch cfg.EventsBackend {
	case config.EventsAMQP:
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		l.Info("Publishing ledger events to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		return client, nil
	case config.EventsKafka:
		l.Info("Publishing ledger events to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		l.Debug("Ledger events disabled")
		return events.Noop{}, nil
	}
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM, logging
// the signal that triggered it.
func GracefulShutdown(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
