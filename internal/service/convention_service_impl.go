package service

import (
	"context"
	"fmt"

	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/gateway"
	"github.com/jnst/convention-outbox/internal/model"
	"github.com/jnst/convention-outbox/internal/repository"
)

// ConventionServiceImpl implements ConventionService. Every convention change is
// saved together with its outbox event in one unit of work.
type ConventionServiceImpl struct {
	uowPerformer repository.UnitOfWorkPerformer
	eventFactory *eventbus.EventFactory
	timeGateway  gateway.TimeGateway
}

// NewConventionServiceImpl creates a new ConventionService implementation.
func NewConventionServiceImpl(
	uowPerformer repository.UnitOfWorkPerformer,
	eventFactory *eventbus.EventFactory,
	timeGateway gateway.TimeGateway,
) ConventionService {
	return &ConventionServiceImpl{
		uowPerformer: uowPerformer,
		eventFactory: eventFactory,
		timeGateway:  timeGateway,
	}
}

// CreateConvention stores a new DRAFT or READY_TO_SIGN convention without signatures.
// A convention created ready to sign emits ConventionReadyToSign.
func (s *ConventionServiceImpl) CreateConvention(
	ctx context.Context, convention *model.Convention,
) (*model.Convention, error) {
	if err := convention.Validate(); err != nil {
		return nil, err
	}

	if convention.Status != model.ConventionStatusDraft && convention.Status != model.ConventionStatusReadyToSign {
		return nil, fmt.Errorf("%w: a new convention must be %s or %s, got %s", model.ErrBadRequest,
			model.ConventionStatusDraft, model.ConventionStatusReadyToSign, convention.Status)
	}

	created := convention.Clone()
	created.Signatories.ClearSignatures()

	err := s.uowPerformer.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if err := uow.ConventionRepository.Save(ctx, &created); err != nil {
			return err
		}

		if created.Status != model.ConventionStatusReadyToSign {
			return nil
		}

		return s.saveEvent(ctx, uow, &created, model.ConventionReadyToSign, nil)
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// SignConvention records the signature of params.Role and emits
// ConventionPartiallySigned or ConventionFullySigned.
func (s *ConventionServiceImpl) SignConvention(
	ctx context.Context, params SignConventionParams,
) (*model.Convention, error) {
	if _, ok := params.Role.SignatoryKey(); !ok {
		return nil, fmt.Errorf("%w: role %q is not allowed to sign a convention", model.ErrForbidden, params.Role)
	}

	var signed *model.Convention

	err := s.uowPerformer.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		convention, err := uow.ConventionRepository.GetByID(ctx, params.ConventionID)
		if err != nil {
			return err
		}

		if err := convention.Sign(params.Role, s.timeGateway.Now()); err != nil {
			return err
		}

		def := model.ConventionPartiallySigned
		if convention.IsFullySigned() {
			def = model.ConventionFullySigned
		}

		if err := s.saveWithEvent(ctx, uow, convention, def, params.Role); err != nil {
			return err
		}

		signed = convention

		return nil
	})
	if err != nil {
		return nil, err
	}

	return signed, nil
}

// UpdateConventionStatus applies a review decision and emits the matching topic.
func (s *ConventionServiceImpl) UpdateConventionStatus(
	ctx context.Context, params UpdateConventionStatusParams,
) (*model.Convention, error) {
	var updated *model.Convention

	err := s.uowPerformer.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		convention, err := uow.ConventionRepository.GetByID(ctx, params.ConventionID)
		if err != nil {
			return err
		}

		def, err := convention.TransitionTo(params.Status, params.Role, params.Justification)
		if err != nil {
			return err
		}

		if err := s.saveWithEvent(ctx, uow, convention, def, params.Role); err != nil {
			return err
		}

		updated = convention

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// GetConvention retrieves a convention by ID.
func (s *ConventionServiceImpl) GetConvention(ctx context.Context, id string) (*model.Convention, error) {
	var convention *model.Convention

	err := s.uowPerformer.Perform(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		found, err := uow.ConventionRepository.GetByID(ctx, id)
		if err != nil {
			return err
		}

		convention = found

		return nil
	})
	if err != nil {
		return nil, err
	}

	return convention, nil
}

func (s *ConventionServiceImpl) saveWithEvent(
	ctx context.Context,
	uow *repository.UnitOfWork,
	convention *model.Convention,
	def model.TopicDef[model.ConventionPayload],
	role model.Role,
) error {
	if err := uow.ConventionRepository.Update(ctx, convention); err != nil {
		return fmt.Errorf("failed to update convention: %w", err)
	}

	return s.saveEvent(ctx, uow, convention, def, &model.TriggeredBy{Role: role})
}

func (s *ConventionServiceImpl) saveEvent(
	ctx context.Context,
	uow *repository.UnitOfWork,
	convention *model.Convention,
	def model.TopicDef[model.ConventionPayload],
	triggeredBy *model.TriggeredBy,
) error {
	event, err := eventbus.CreateEvent(s.eventFactory, def, model.ConventionPayload{
		Convention:  *convention,
		TriggeredBy: triggeredBy,
	})
	if err != nil {
		return err
	}

	if err := uow.OutboxRepository.Save(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	return nil
}
