package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/model"
	"github.com/jnst/convention-outbox/internal/repository"
)

// OutboxServiceImpl implements OutboxService for processing outbox events.
type OutboxServiceImpl struct {
	uowPerformer repository.UnitOfWorkPerformer
	dispatcher   *eventbus.Dispatcher
	concurrency  int
}

// NewOutboxServiceImpl creates a new OutboxService implementation. At most
// concurrency events are published at the same time.
func NewOutboxServiceImpl(
	uowPerformer repository.UnitOfWorkPerformer,
	dispatcher *eventbus.Dispatcher,
	concurrency int,
) OutboxService {
	if concurrency < 1 {
		concurrency = 1
	}

	return &OutboxServiceImpl{
		uowPerformer: uowPerformer,
		dispatcher:   dispatcher,
		concurrency:  concurrency,
	}
}

// ProcessNewEvents claims pending events and runs one publication round for each.
func (s *OutboxServiceImpl) ProcessNewEvents(ctx context.Context, limit int) (int, error) {
	var events []*model.DomainEvent

	err := s.uowPerformer.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		pending, err := uow.OutboxRepository.GetEventsToPublish(ctx, limit)
		if err != nil {
			return err
		}

		if err := uow.OutboxRepository.MarkEventsAsInProcess(ctx, pending); err != nil {
			return err
		}

		events = pending

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to claim events to publish: %w", err)
	}

	if len(events) == 0 {
		return 0, nil
	}

	publishErrs := make([]error, len(events))

	var group errgroup.Group
	group.SetLimit(s.concurrency)

	for i, event := range events {
		i, event := i, event
		group.Go(func() error {
			if err := s.dispatcher.Publish(ctx, event); err != nil {
				slog.ErrorContext(ctx, "failed to publish event",
					slog.String("event_id", event.ID),
					slog.String("topic", string(event.Topic)),
					slog.String("error", err.Error()))

				publishErrs[i] = err
			}

			return nil
		})
	}

	_ = group.Wait()

	slog.InfoContext(ctx, "processed outbox events", slog.Int("count", len(events)))

	return len(events), errors.Join(publishErrs...)
}

// RepublishEvent moves a quarantined or stuck event back to the queue. The next
// round targets every subscriber of its topic.
func (s *OutboxServiceImpl) RepublishEvent(ctx context.Context, id string) (*model.DomainEvent, error) {
	var republished *model.DomainEvent

	err := s.uowPerformer.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		event, err := uow.OutboxRepository.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if event.Status != model.EventStatusFailedTooManyTimes && event.Status != model.EventStatusInProcess {
			return fmt.Errorf("%w: event %s is %s, only %s or %s events can be republished",
				model.ErrConflict, id, event.Status, model.EventStatusFailedTooManyTimes, model.EventStatusInProcess)
		}

		event.Status = model.EventStatusToRepublish

		if err := uow.OutboxRepository.Save(ctx, event); err != nil {
			return err
		}

		republished = event

		return nil
	})
	if err != nil {
		return nil, err
	}

	return republished, nil
}

// ListFailedEvents returns quarantined events, oldest first.
func (s *OutboxServiceImpl) ListFailedEvents(ctx context.Context, limit int) ([]*model.DomainEvent, error) {
	var events []*model.DomainEvent

	err := s.uowPerformer.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		failed, err := uow.OutboxRepository.GetFailedEvents(ctx, limit)
		if err != nil {
			return err
		}

		events = failed

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}

	return events, nil
}
