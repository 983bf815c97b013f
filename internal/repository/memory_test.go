package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jnst/convention-outbox/internal/model"
)

const testConventionID = "3f6c2a1e-8b4d-4f7a-9c2e-5d1b7a9e0c41"

var baseTime = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

func newTestConvention(id string) model.Convention {
	return model.Convention{
		ID:             id,
		Status:         model.ConventionStatusReadyToSign,
		AgencyID:       "agency-1",
		DateSubmission: baseTime,
		DateStart:      baseTime.Add(24 * time.Hour),
		DateEnd:        baseTime.Add(72 * time.Hour),
		Signatories: model.Signatories{
			Beneficiary:                 model.Signatory{Role: model.RoleBeneficiary, Email: "ben@mail.com"},
			EstablishmentRepresentative: model.Signatory{Role: model.RoleEstablishmentRepresentative, Email: "boss@mail.com"},
		},
	}
}

func newTestEvent(id string, status model.EventStatus, occurredAt time.Time) *model.DomainEvent {
	return &model.DomainEvent{
		ID:         id,
		OccurredAt: occurredAt,
		Topic:      model.TopicConventionPartiallySigned,
		Payload:    []byte(`{}`),
		Status:     status,
	}
}

func TestInMemoryStore_PerformCommitsOnSuccess(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	convention := newTestConvention(testConventionID)

	err := store.Perform(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		if err := uow.ConventionRepository.Save(ctx, &convention); err != nil {
			return err
		}

		return uow.OutboxRepository.Save(ctx, newTestEvent("evt-1", model.EventStatusNeverPublished, baseTime))
	})
	require.NoError(t, err)

	require.Contains(t, store.Conventions(), testConventionID)
	require.Len(t, store.Events(), 1)
}

func TestInMemoryStore_PerformDiscardsEverythingOnError(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	store.SetConventions(newTestConvention(testConventionID))

	boom := errors.New("boom")
	err := store.Perform(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		convention, err := uow.ConventionRepository.GetByID(ctx, testConventionID)
		require.NoError(t, err)

		convention.Status = model.ConventionStatusPartiallySigned
		require.NoError(t, uow.ConventionRepository.Update(ctx, convention))
		require.NoError(t, uow.OutboxRepository.Save(ctx, newTestEvent("evt-1", model.EventStatusNeverPublished, baseTime)))

		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Equal(t, model.ConventionStatusReadyToSign, store.Conventions()[testConventionID].Status)
	require.Empty(t, store.Events())
}

func TestInMemoryConventionRepository_Errors(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	store.SetConventions(newTestConvention(testConventionID))

	err := store.Perform(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		_, err := uow.ConventionRepository.GetByID(ctx, "missing")
		require.ErrorIs(t, err, model.ErrConventionNotFound)
		require.ErrorIs(t, err, model.ErrNotFound)

		missing := newTestConvention("missing")
		require.ErrorIs(t, uow.ConventionRepository.Update(ctx, &missing), model.ErrConventionNotFound)

		duplicate := newTestConvention(testConventionID)
		require.ErrorIs(t, uow.ConventionRepository.Save(ctx, &duplicate), model.ErrConventionAlreadyExists)

		invalid := newTestConvention("7d0f1c2e-3b4a-4c5d-8e9f-0a1b2c3d4e5f")
		invalid.AgencyID = ""
		require.ErrorIs(t, uow.ConventionRepository.Save(ctx, &invalid), model.ErrInvalidConvention)

		return nil
	})
	require.NoError(t, err)
}

func TestInMemoryConventionRepository_ReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	store.SetConventions(newTestConvention(testConventionID))

	err := store.Perform(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		convention, err := uow.ConventionRepository.GetByID(ctx, testConventionID)
		require.NoError(t, err)

		signedAt := baseTime
		convention.Signatories.Beneficiary.SignedAt = &signedAt

		again, err := uow.ConventionRepository.GetByID(ctx, testConventionID)
		require.NoError(t, err)
		require.Nil(t, again.Signatories.Beneficiary.SignedAt)

		return nil
	})
	require.NoError(t, err)
}

func TestInMemoryOutboxRepository_GetEventsToPublish(t *testing.T) {
	t.Parallel()

	high := 10
	low := 1

	prioritized := newTestEvent("evt-prio", model.EventStatusFailedButWillRetry, baseTime.Add(3*time.Hour))
	prioritized.Priority = &high
	lowPriority := newTestEvent("evt-low", model.EventStatusNeverPublished, baseTime.Add(2*time.Hour))
	lowPriority.Priority = &low

	store := NewInMemoryStore()
	store.SetEvents(
		newTestEvent("evt-new", model.EventStatusNeverPublished, baseTime.Add(time.Hour)),
		newTestEvent("evt-old", model.EventStatusToRepublish, baseTime),
		newTestEvent("evt-published", model.EventStatusPublished, baseTime),
		newTestEvent("evt-in-process", model.EventStatusInProcess, baseTime),
		newTestEvent("evt-quarantined", model.EventStatusFailedTooManyTimes, baseTime),
		prioritized,
		lowPriority,
	)

	err := store.Perform(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		events, err := uow.OutboxRepository.GetEventsToPublish(ctx, 10)
		require.NoError(t, err)

		ids := make([]string, len(events))
		for i, event := range events {
			ids[i] = event.ID
		}

		require.Equal(t, []string{"evt-prio", "evt-low", "evt-old", "evt-new"}, ids)

		limited, err := uow.OutboxRepository.GetEventsToPublish(ctx, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)

		failed, err := uow.OutboxRepository.GetFailedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		require.Equal(t, "evt-quarantined", failed[0].ID)

		return nil
	})
	require.NoError(t, err)
}

func TestInMemoryOutboxRepository_MarkEventsAsInProcess(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	store.SetEvents(newTestEvent("evt-1", model.EventStatusNeverPublished, baseTime))

	err := store.Perform(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		events, err := uow.OutboxRepository.GetEventsToPublish(ctx, 10)
		require.NoError(t, err)
		require.NoError(t, uow.OutboxRepository.MarkEventsAsInProcess(ctx, events))
		require.Equal(t, model.EventStatusNeverPublished, events[0].Status)

		return nil
	})
	require.NoError(t, err)

	require.Equal(t, model.EventStatusInProcess, store.Events()[0].Status)

	err = store.Perform(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		events, err := uow.OutboxRepository.GetEventsToPublish(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, events)

		unknown := []*model.DomainEvent{newTestEvent("unknown", model.EventStatusNeverPublished, baseTime)}
		require.ErrorIs(t, uow.OutboxRepository.MarkEventsAsInProcess(ctx, unknown), model.ErrEventNotFound)

		return nil
	})
	require.NoError(t, err)
}

func TestInMemoryOutboxRepository_SaveOverwrites(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	event := newTestEvent("evt-1", model.EventStatusNeverPublished, baseTime)
	store.SetEvents(event)

	event.RecordPublication(model.EventPublication{PublishedAt: baseTime})
	store.SetEvents(event)

	events := store.Events()
	require.Len(t, events, 1)
	require.Equal(t, model.EventStatusPublished, events[0].Status)
	require.Len(t, events[0].Publications, 1)
}
