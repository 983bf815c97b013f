// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"

	"github.com/jnst/convention-outbox/internal/model"
)

// ConventionRepository defines methods for convention data access.
type ConventionRepository interface {
	Save(ctx context.Context, convention *model.Convention) error
	Update(ctx context.Context, convention *model.Convention) error
	GetByID(ctx context.Context, id string) (*model.Convention, error)
}

// OutboxRepository defines methods for outbox event data access.
type OutboxRepository interface {
	// Save inserts the event or overwrites the stored one with the same id.
	Save(ctx context.Context, event *model.DomainEvent) error
	GetByID(ctx context.Context, id string) (*model.DomainEvent, error)
	// GetEventsToPublish returns never-published, to-republish and failed-but-will-retry events,
	// highest priority first, then oldest first.
	GetEventsToPublish(ctx context.Context, limit int) ([]*model.DomainEvent, error)
	// GetFailedEvents returns quarantined events.
	GetFailedEvents(ctx context.Context, limit int) ([]*model.DomainEvent, error)
	// MarkEventsAsInProcess claims events in the store. The passed values keep the
	// status they were selected with, which the dispatcher needs to pick its targets.
	MarkEventsAsInProcess(ctx context.Context, events []*model.DomainEvent) error
}

// UnitOfWork groups repositories that share one transaction.
type UnitOfWork struct {
	ConventionRepository ConventionRepository
	OutboxRepository     OutboxRepository
}

// UnitOfWorkPerformer runs fn atomically: every write made through uow is
// committed when fn returns nil and discarded otherwise.
type UnitOfWorkPerformer interface {
	Perform(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) error
}
