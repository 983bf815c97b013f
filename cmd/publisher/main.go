// Package main provides the outbox publisher that polls pending events and dispatches them to subscribers.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/rueidis"

	"github.com/jnst/convention-outbox/internal/config"
	"github.com/jnst/convention-outbox/internal/logger"
	"github.com/jnst/convention-outbox/internal/publisher"
	"github.com/jnst/convention-outbox/internal/repository"
)

const (
	signalBufferSize = 1
	exitCode         = 1
)

func setupPublisherRedisClient(cfg *config.Config) (rueidis.Client, error) {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return nil, err
	}

	return redisClient, nil
}

func setupPublisherSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping publisher")
		cancel()
	}()

	return ctx, cancel
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	ctx, cancel := setupPublisherSignalHandling()
	defer cancel()

	dbPool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	if err := repository.ApplySchema(ctx, dbPool); err != nil {
		slog.Error("failed to apply schema", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	redisClient, err := setupPublisherRedisClient(cfg)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	uowPerformer := repository.NewTransactionManagerImpl(dbPool)

	outboxPublisher, err := publisher.New(cfg, uowPerformer, redisClient, loggerInstance)
	if err != nil {
		slog.Error("failed to set up publisher", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer outboxPublisher.Close()

	slog.Info("starting outbox publisher",
		slog.String("service", "publisher"),
		slog.Duration("poll_interval", cfg.PublisherPollInterval),
		slog.Int("batch_size", cfg.PublisherBatchSize),
		slog.Int("concurrency", cfg.PublisherConcurrency),
	)

	publisher.RunLoop(ctx, outboxPublisher.OutboxService, cfg.PublisherPollInterval, cfg.PublisherBatchSize)
}
