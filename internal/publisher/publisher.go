// Package publisher wires the event dispatcher and runs the republisher loop.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/convention-outbox/internal/config"
	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/gateway"
	"github.com/jnst/convention-outbox/internal/repository"
	"github.com/jnst/convention-outbox/internal/service"
	"github.com/jnst/convention-outbox/internal/subscriber"
)

// Publisher bundles the outbox service with the resources it owns.
type Publisher struct {
	OutboxService service.OutboxService
	Dispatcher    *eventbus.Dispatcher
	closers       []func() error
}

// Close waits for pending quarantine notifications and releases the
// resources opened by New.
func (p *Publisher) Close() error {
	p.Dispatcher.Wait()

	var firstErr error

	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// New registers the configured subscribers and builds the dispatcher.
// redisClient may be nil, in which case the Redis broadcaster is disabled and
// quarantine notifications are only logged.
func New(
	cfg *config.Config,
	uowPerformer repository.UnitOfWorkPerformer,
	redisClient rueidis.Client,
	logger *slog.Logger,
) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := eventbus.NewRegistry(logger)
	subscribers := subscriber.Subscribers{
		Audit: subscriber.NewAuditLogger(logger),
	}

	var closers []func() error

	var notifier eventbus.Notifier = eventbus.NewLogNotifier(logger)

	if redisClient != nil {
		subscribers.Redis = subscriber.NewRedisStreamBroadcaster(redisClient, cfg.BroadcastStream)
		notifier = eventbus.NewRedisStreamNotifier(redisClient, cfg.NotificationStream)
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer, err := subscriber.NewKafkaWriter(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}

		subscribers.Kafka = subscriber.NewKafkaBroadcaster(writer, cfg.KafkaTopic)
		closers = append(closers, writer.Close)
	}

	if err := subscriber.Register(registry, subscribers); err != nil {
		return nil, err
	}

	for _, topic := range registry.Unwired() {
		logger.Warn("topic has no subscriber", slog.String("topic", string(topic)))
	}

	dispatcher, err := eventbus.NewDispatcher(registry, uowPerformer, gateway.NewRealTimeGateway(),
		eventbus.WithSubscriberTimeout(cfg.SubscriberTimeout),
		eventbus.WithNotifier(notifier),
		eventbus.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	return &Publisher{
		OutboxService: service.NewOutboxServiceImpl(uowPerformer, dispatcher, cfg.PublisherConcurrency),
		Dispatcher:    dispatcher,
		closers:       closers,
	}, nil
}

// RunLoop calls ProcessNewEvents every pollInterval until ctx is done.
func RunLoop(
	ctx context.Context,
	outboxService service.OutboxService,
	pollInterval time.Duration,
	batchSize int,
) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("publisher stopped")
			return
		case <-ticker.C:
			if _, err := outboxService.ProcessNewEvents(ctx, batchSize); err != nil {
				slog.Error("error processing outbox events", slog.String("error", err.Error()))
			}
		}
	}
}
