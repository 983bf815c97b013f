package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/jnst/convention-outbox/internal/gateway"
	"github.com/jnst/convention-outbox/internal/model"
	"github.com/jnst/convention-outbox/internal/repository"
)

const (
	// DefaultSubscriberTimeout bounds a single subscriber callback.
	DefaultSubscriberTimeout = 30 * time.Second
	// DefaultSaveTimeout bounds the unit of work persisting a round.
	DefaultSaveTimeout = 10 * time.Second
)

var (
	ErrRegistryRequired            = errors.New("subscription registry is required")
	ErrUnitOfWorkPerformerRequired = errors.New("unit of work performer is required")
	ErrTimeGatewayRequired         = errors.New("time gateway is required")
)

// Dispatcher runs publication rounds: it calls the subscribers an event owes
// a delivery to and persists the outcome as a new publication.
type Dispatcher struct {
	registry          *Registry
	uowPerformer      repository.UnitOfWorkPerformer
	timeGateway       gateway.TimeGateway
	notifier          Notifier
	logger            *slog.Logger
	subscriberTimeout time.Duration
	saveTimeout       time.Duration
	meterProvider     metric.MeterProvider
	metrics           dispatcherMetrics
	notifications     sync.WaitGroup
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSubscriberTimeout sets the maximum duration of one subscriber callback.
func WithSubscriberTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.subscriberTimeout = timeout
		}
	}
}

// WithSaveTimeout sets the maximum duration of the unit of work saving a round.
func WithSaveTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.saveTimeout = timeout
		}
	}
}

// WithNotifier sets the notifier alerted when an event is quarantined.
func WithNotifier(notifier Notifier) DispatcherOption {
	return func(d *Dispatcher) {
		if notifier != nil {
			d.notifier = notifier
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(provider metric.MeterProvider) DispatcherOption {
	return func(d *Dispatcher) {
		d.meterProvider = provider
	}
}

// NewDispatcher creates a Dispatcher. Outcomes are saved through uowPerformer,
// in a unit of work of their own.
func NewDispatcher(
	registry *Registry,
	uowPerformer repository.UnitOfWorkPerformer,
	timeGateway gateway.TimeGateway,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	if uowPerformer == nil {
		return nil, ErrUnitOfWorkPerformerRequired
	}

	if timeGateway == nil {
		return nil, ErrTimeGatewayRequired
	}

	d := &Dispatcher{
		registry:          registry,
		uowPerformer:      uowPerformer,
		timeGateway:       timeGateway,
		logger:            slog.Default(),
		subscriberTimeout: DefaultSubscriberTimeout,
		saveTimeout:       DefaultSaveTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	if d.notifier == nil {
		d.notifier = NewLogNotifier(d.logger)
	}

	metrics, err := newDispatcherMetrics(d.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("init dispatcher metrics: %w", err)
	}

	d.metrics = metrics

	return d, nil
}

// Registry returns the subscription registry the dispatcher reads from.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Wait blocks until every quarantine notification started by Publish is done.
func (d *Dispatcher) Wait() {
	d.notifications.Wait()
}

// Publish runs one publication round for event and saves the result.
// Subscriber failures are recorded on the event, not returned; the returned
// error only reports that the outcome could not be persisted. The outcome is
// saved even when ctx is cancelled during the round.
func (d *Dispatcher) Publish(ctx context.Context, event *model.DomainEvent) error {
	start := time.Now()
	subscriptions := d.registry.snapshot(event.Topic)
	publishedAt := d.timeGateway.Now()

	failures := make([]model.EventFailure, 0)

	if len(subscriptions) == 0 {
		d.logger.WarnContext(ctx, "No subscription registered for topic",
			slog.String("topic", string(event.Topic)),
			slog.String("event_id", event.ID))
	} else {
		failures = d.invoke(ctx, event, targetSubscriptionIDs(event, subscriptions), subscriptions)
	}

	quarantined := event.RecordPublication(model.EventPublication{
		PublishedAt: publishedAt,
		Failures:    failures,
	})

	if err := d.save(ctx, event); err != nil {
		return fmt.Errorf("failed to save publication of event %s: %w", event.ID, err)
	}

	topicAttr := metric.WithAttributes(
		attribute.String("topic", string(event.Topic)),
		attribute.String("status", string(event.Status)),
	)
	d.metrics.publications.Add(ctx, 1, topicAttr)
	d.metrics.publishDuration.Record(ctx, time.Since(start).Seconds(), topicAttr)

	if len(failures) > 0 {
		d.metrics.subscriberFailures.Add(ctx, int64(len(failures)), topicAttr)
	}

	if quarantined {
		d.metrics.quarantined.Add(ctx, 1, topicAttr)
		d.notifyQuarantined(ctx, event)
	}

	d.logger.DebugContext(ctx, "Event published",
		slog.String("event_id", event.ID),
		slog.String("topic", string(event.Topic)),
		slog.String("status", string(event.Status)),
		slog.Int("failures", len(failures)))

	return nil
}

func (d *Dispatcher) save(ctx context.Context, event *model.DomainEvent) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.saveTimeout)
	defer cancel()

	return d.uowPerformer.Perform(saveCtx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		return uow.OutboxRepository.Save(ctx, event)
	})
}

// targetSubscriptionIDs returns every subscription for a first or forced round,
// and only the subscriptions that failed last time otherwise.
func targetSubscriptionIDs(event *model.DomainEvent, subscriptions []subscription) []model.SubscriptionID {
	last, published := event.LastPublication()
	if !published || event.Status == model.EventStatusToRepublish {
		ids := make([]model.SubscriptionID, len(subscriptions))
		for i, sub := range subscriptions {
			ids[i] = sub.id
		}

		return ids
	}

	ids := make([]model.SubscriptionID, 0, len(last.Failures))
	seen := make(map[model.SubscriptionID]struct{}, len(last.Failures))

	for _, failure := range last.Failures {
		if _, ok := seen[failure.SubscriptionID]; ok {
			continue
		}

		seen[failure.SubscriptionID] = struct{}{}
		ids = append(ids, failure.SubscriptionID)
	}

	return ids
}

func (d *Dispatcher) invoke(
	ctx context.Context,
	event *model.DomainEvent,
	targets []model.SubscriptionID,
	subscriptions []subscription,
) []model.EventFailure {
	callbacks := make(map[model.SubscriptionID]Callback, len(subscriptions))
	for _, sub := range subscriptions {
		callbacks[sub.id] = sub.callback
	}

	results := make([]error, len(targets))

	var group errgroup.Group

	for i, id := range targets {
		i := i
		callback, ok := callbacks[id]
		if !ok {
			results[i] = fmt.Errorf("no subscription registered for id %s on topic %s", id, event.Topic)

			continue
		}

		group.Go(func() error {
			results[i] = d.call(ctx, event.Clone(), callback)

			return nil
		})
	}

	_ = group.Wait()

	failures := make([]model.EventFailure, 0)

	for i, err := range results {
		if err == nil {
			continue
		}

		d.logger.WarnContext(ctx, "Subscriber failed to handle event",
			slog.String("event_id", event.ID),
			slog.String("topic", string(event.Topic)),
			slog.String("subscription_id", string(targets[i])),
			slog.String("error", err.Error()))

		failures = append(failures, model.EventFailure{
			SubscriptionID: targets[i],
			ErrorMessage:   err.Error(),
		})
	}

	return failures
}

// call runs callback under the subscriber timeout. A callback that ignores its
// context is abandoned once the timeout fires. Cancelling ctx is passed on to
// the callback, whose own result is then recorded.
func (d *Dispatcher) call(ctx context.Context, event *model.DomainEvent, callback Callback) error {
	callCtx, cancel := context.WithTimeout(ctx, d.subscriberTimeout)
	defer cancel()

	timer := time.NewTimer(d.subscriberTimeout)
	defer timer.Stop()

	done := make(chan error, 1)

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- fmt.Errorf("panic: %v", recovered)
			}
		}()

		done <- callback(callCtx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		select {
		case err := <-done:
			return err
		default:
		}

		return fmt.Errorf("subscriber did not complete within %s: %w", d.subscriberTimeout, context.DeadlineExceeded)
	}
}

// notifyQuarantined alerts the notifier in the background; Wait drains it.
func (d *Dispatcher) notifyQuarantined(ctx context.Context, event *model.DomainEvent) {
	notification := newQuarantineNotification(event)
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.subscriberTimeout)

	d.notifications.Add(1)

	go func() {
		defer d.notifications.Done()
		defer cancel()

		if err := d.notifier.NotifyQuarantined(notifyCtx, notification); err != nil {
			d.logger.ErrorContext(notifyCtx, "Failed to notify quarantined event",
				slog.String("event_id", notification.Event.ID),
				slog.String("error", err.Error()))
		}
	}()
}
