package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/gateway"
	"github.com/jnst/convention-outbox/internal/model"
	"github.com/jnst/convention-outbox/internal/repository"
)

const testConventionID = "3f6c2a1e-8b4d-4f7a-9c2e-5d1b7a9e0c41"

var now = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

type failingOutboxRepository struct {
	repository.OutboxRepository
	err error
}

func (r failingOutboxRepository) Save(context.Context, *model.DomainEvent) error {
	return r.err
}

// failingOutboxPerformer runs units of work whose outbox writes fail.
type failingOutboxPerformer struct {
	inner repository.UnitOfWorkPerformer
	err   error
}

func (p failingOutboxPerformer) Perform(
	ctx context.Context, fn func(ctx context.Context, uow *repository.UnitOfWork) error,
) error {
	return p.inner.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		wrapped := *uow
		wrapped.OutboxRepository = failingOutboxRepository{OutboxRepository: uow.OutboxRepository, err: p.err}

		return fn(ctx, &wrapped)
	})
}

func readyToSignConvention(id string) model.Convention {
	return model.Convention{
		ID:             id,
		Status:         model.ConventionStatusReadyToSign,
		AgencyID:       "agency-1",
		DateSubmission: now.Add(-24 * time.Hour),
		DateStart:      now.Add(24 * time.Hour),
		DateEnd:        now.Add(72 * time.Hour),
		Signatories: model.Signatories{
			Beneficiary:                 model.Signatory{Role: model.RoleBeneficiary, Email: "ben@mail.com"},
			EstablishmentRepresentative: model.Signatory{Role: model.RoleEstablishmentRepresentative, Email: "boss@mail.com"},
		},
	}
}

func newConventionService(performer repository.UnitOfWorkPerformer) (ConventionService, *gateway.CustomTimeGateway) {
	clock := gateway.NewCustomTimeGateway(now)
	factory := eventbus.NewEventFactory(clock, gateway.NewSequentialUUIDGenerator())

	return NewConventionServiceImpl(performer, factory, clock), clock
}

func decodePayload(t *testing.T, event *model.DomainEvent) model.ConventionPayload {
	t.Helper()

	var payload model.ConventionPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))

	return payload
}

func TestConventionService_SignUntilFullySigned(t *testing.T) {
	t.Parallel()

	store := repository.NewInMemoryStore()
	store.SetConventions(readyToSignConvention(testConventionID))
	svc, clock := newConventionService(store)
	ctx := context.Background()

	convention, err := svc.SignConvention(ctx, SignConventionParams{ConventionID: testConventionID, Role: model.RoleBeneficiary})
	require.NoError(t, err)
	require.Equal(t, model.ConventionStatusPartiallySigned, convention.Status)
	require.Equal(t, now, *convention.Signatories.Beneficiary.SignedAt)

	clock.Advance(time.Hour)

	convention, err = svc.SignConvention(ctx, SignConventionParams{ConventionID: testConventionID, Role: model.RoleEstablishment})
	require.NoError(t, err)
	require.Equal(t, model.ConventionStatusInReview, convention.Status)

	stored := store.Conventions()[testConventionID]
	require.Equal(t, model.ConventionStatusInReview, stored.Status)
	require.Equal(t, now.Add(time.Hour), *stored.Signatories.EstablishmentRepresentative.SignedAt)

	events := store.Events()
	require.Len(t, events, 2)
	require.Equal(t, model.TopicConventionPartiallySigned, events[0].Topic)
	require.Equal(t, model.TopicConventionFullySigned, events[1].Topic)
	require.Equal(t, now.Add(time.Hour), events[1].OccurredAt)

	for _, event := range events {
		require.Equal(t, model.EventStatusNeverPublished, event.Status)
		require.Empty(t, event.Publications)
	}

	payload := decodePayload(t, events[1])
	require.Equal(t, model.ConventionStatusInReview, payload.Convention.Status)
	require.Equal(t, model.RoleEstablishment, payload.TriggeredBy.Role)
}

func TestConventionService_SignIsIdempotentPerRole(t *testing.T) {
	t.Parallel()

	store := repository.NewInMemoryStore()
	store.SetConventions(readyToSignConvention(testConventionID))
	svc, clock := newConventionService(store)
	ctx := context.Background()

	_, err := svc.SignConvention(ctx, SignConventionParams{ConventionID: testConventionID, Role: model.RoleBeneficiary})
	require.NoError(t, err)

	clock.Advance(time.Minute)

	convention, err := svc.SignConvention(ctx, SignConventionParams{ConventionID: testConventionID, Role: model.RoleBeneficiary})
	require.NoError(t, err)
	require.Equal(t, model.ConventionStatusPartiallySigned, convention.Status)
	require.Equal(t, now.Add(time.Minute), *convention.Signatories.Beneficiary.SignedAt)

	events := store.Events()
	require.Len(t, events, 2)
	require.Equal(t, model.TopicConventionPartiallySigned, events[1].Topic)
}

func TestConventionService_SignRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		conventionID string
		status       model.ConventionStatus
		role         model.Role
		wantErr      error
		wantMsg      string
	}{
		{
			name:         "unknown role",
			conventionID: testConventionID,
			role:         model.Role("admin"),
			wantErr:      model.ErrForbidden,
		},
		{
			name:         "unknown role on missing convention",
			conventionID: "missing",
			role:         model.Role("admin"),
			wantErr:      model.ErrForbidden,
		},
		{
			name:         "missing convention",
			conventionID: "missing",
			role:         model.RoleBeneficiary,
			wantErr:      model.ErrNotFound,
		},
		{
			name:         "absent representative",
			conventionID: testConventionID,
			role:         model.RoleLegalRepresentative,
			wantErr:      model.ErrForbidden,
		},
		{
			name:         "validated convention",
			conventionID: testConventionID,
			status:       model.ConventionStatusValidated,
			role:         model.RoleBeneficiary,
			wantErr:      model.ErrBadRequest,
			wantMsg:      "cannot go from status VALIDATED to PARTIALLY_SIGNED",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			convention := readyToSignConvention(testConventionID)
			if tt.status != "" {
				convention.Status = tt.status
			}

			store := repository.NewInMemoryStore()
			store.SetConventions(convention)
			svc, _ := newConventionService(store)

			_, err := svc.SignConvention(context.Background(), SignConventionParams{
				ConventionID: tt.conventionID,
				Role:         tt.role,
			})
			require.ErrorIs(t, err, tt.wantErr)

			if tt.wantMsg != "" {
				require.ErrorContains(t, err, tt.wantMsg)
			}

			require.Empty(t, store.Events())
			require.Equal(t, convention, store.Conventions()[testConventionID])
		})
	}
}

func TestConventionService_SignRollsBackWhenEventCannotBeSaved(t *testing.T) {
	t.Parallel()

	store := repository.NewInMemoryStore()
	original := readyToSignConvention(testConventionID)
	store.SetConventions(original)

	outboxErr := errors.New("outbox unavailable")
	svc, _ := newConventionService(failingOutboxPerformer{inner: store, err: outboxErr})

	_, err := svc.SignConvention(context.Background(), SignConventionParams{ConventionID: testConventionID, Role: model.RoleBeneficiary})
	require.ErrorIs(t, err, outboxErr)

	require.Empty(t, store.Events())
	require.Equal(t, original, store.Conventions()[testConventionID])
}

func TestConventionService_UpdateConventionStatus(t *testing.T) {
	t.Parallel()

	convention := readyToSignConvention(testConventionID)
	convention.Status = model.ConventionStatusInReview

	store := repository.NewInMemoryStore()
	store.SetConventions(convention)
	svc, _ := newConventionService(store)
	ctx := context.Background()

	updated, err := svc.UpdateConventionStatus(ctx, UpdateConventionStatusParams{
		ConventionID: testConventionID,
		Role:         model.RoleCounsellor,
		Status:       model.ConventionStatusAcceptedByCounsellor,
	})
	require.NoError(t, err)
	require.Equal(t, model.ConventionStatusAcceptedByCounsellor, updated.Status)

	_, err = svc.UpdateConventionStatus(ctx, UpdateConventionStatusParams{
		ConventionID: testConventionID,
		Role:         model.RoleBeneficiary,
		Status:       model.ConventionStatusValidated,
	})
	require.ErrorIs(t, err, model.ErrForbidden)

	events := store.Events()
	require.Len(t, events, 1)
	require.Equal(t, model.TopicConventionAcceptedByCounsellor, events[0].Topic)
	require.Equal(t, model.RoleCounsellor, decodePayload(t, events[0]).TriggeredBy.Role)
}

func TestConventionService_GetConvention(t *testing.T) {
	t.Parallel()

	store := repository.NewInMemoryStore()
	store.SetConventions(readyToSignConvention(testConventionID))
	svc, _ := newConventionService(store)

	convention, err := svc.GetConvention(context.Background(), testConventionID)
	require.NoError(t, err)
	require.Equal(t, testConventionID, convention.ID)

	_, err = svc.GetConvention(context.Background(), "missing")
	require.ErrorIs(t, err, model.ErrConventionNotFound)
}

func TestConventionService_CreateConvention(t *testing.T) {
	t.Parallel()

	store := repository.NewInMemoryStore()
	svc, _ := newConventionService(store)
	ctx := context.Background()

	draft := readyToSignConvention("5a2e9d4b-1c3f-4e6a-8b7d-2f0c9e1a3b5d")
	draft.Status = model.ConventionStatusDraft

	_, err := svc.CreateConvention(ctx, &draft)
	require.NoError(t, err)
	require.Empty(t, store.Events())

	ready := readyToSignConvention("9c4b1e7a-2d5f-4a8c-b3e6-1f7d0a2c4e8b")
	signedAt := now
	ready.Signatories.Beneficiary.SignedAt = &signedAt

	created, err := svc.CreateConvention(ctx, &ready)
	require.NoError(t, err)
	require.Nil(t, created.Signatories.Beneficiary.SignedAt)

	events := store.Events()
	require.Len(t, events, 1)
	require.Equal(t, model.TopicConventionReadyToSign, events[0].Topic)
	require.Nil(t, decodePayload(t, events[0]).TriggeredBy)

	_, err = svc.CreateConvention(ctx, &ready)
	require.ErrorIs(t, err, model.ErrConflict)

	validated := readyToSignConvention("1e8d3c5a-7b2f-4d9e-a6c1-3b5f8e0d2a7c")
	validated.Status = model.ConventionStatusValidated

	_, err = svc.CreateConvention(ctx, &validated)
	require.ErrorIs(t, err, model.ErrBadRequest)
	require.Len(t, store.Conventions(), 2)
}
