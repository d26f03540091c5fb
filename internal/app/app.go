// Package app builds the clients shared by the binaries from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/offer-importer/internal/config"
	"github.com/cuongbtq/offer-importer/internal/importer"
	"github.com/cuongbtq/offer-importer/internal/lock"
	"github.com/cuongbtq/offer-importer/internal/source"
	"github.com/cuongbtq/offer-importer/internal/storage"
	"github.com/cuongbtq/offer-importer/shared/logger"
	"github.com/cuongbtq/offer-importer/shared/postgresql"
	"github.com/cuongbtq/offer-importer/shared/rabbitmq"
	"github.com/go-redis/redis/v8"
)

// NewLogger initializes and configures the application logger
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// NewPostgreSQL initializes the PostgreSQL database client
func NewPostgreSQL(cfg *config.DatabaseConfig, log *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
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
	}, log)
}

// NewRabbitMQ initializes the RabbitMQ client
func NewRabbitMQ(cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQConfig(cfg), log)
}

// RabbitMQConfig converts the yaml section to the client configuration.
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// NewLocker returns a Redis-backed locker when redis.addr is set and an
// in-process one otherwise. The services reject an empty addr during
// validation, so only offerctl gets the local lock. The returned close func
// releases the Redis client.
func NewLocker(ctx context.Context, cfg *config.RedisConfig, log *slog.Logger) (lock.Locker, func() error, error) {
	if cfg.Addr == "" {
		log.Warn("redis.addr not set, imports from this process are not serialized with the services")
		return lock.NewLocalLocker(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info("Redis connection established", slog.String("addr", cfg.Addr))
	return lock.NewRedisLocker(client, cfg.LockTTL, log), client.Close, nil
}

// NewImporter wires the importer with the outbound client.
func NewImporter(cfg *config.ImporterConfig, store *storage.Storage, locker lock.Locker, log *slog.Logger) *importer.Importer {
	client := source.NewClient(source.Config{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
		PageSize:  cfg.PageSize,
		PageDelay: cfg.PageDelay,
		MaxPages:  cfg.MaxPages,
	}, log)
	return importer.New(store, client, locker, log)
}
