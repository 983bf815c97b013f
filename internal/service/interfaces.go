// Package service provides business logic layer implementations.
package service

import (
	"context"

	"github.com/jnst/convention-outbox/internal/model"
)

// SignConventionParams identifies who signs which convention.
type SignConventionParams struct {
	ConventionID string
	Role         model.Role
}

// UpdateConventionStatusParams describes a review decision on a convention.
type UpdateConventionStatusParams struct {
	ConventionID  string
	Role          model.Role
	Status        model.ConventionStatus
	Justification string
}

// ConventionService defines business logic methods for convention signature and review.
type ConventionService interface {
	CreateConvention(ctx context.Context, convention *model.Convention) (*model.Convention, error)
	SignConvention(ctx context.Context, params SignConventionParams) (*model.Convention, error)
	UpdateConventionStatus(ctx context.Context, params UpdateConventionStatusParams) (*model.Convention, error)
	GetConvention(ctx context.Context, id string) (*model.Convention, error)
}

// OutboxService defines business logic methods for outbox event processing.
type OutboxService interface {
	// ProcessNewEvents publishes up to limit pending events and returns how many were claimed.
	ProcessNewEvents(ctx context.Context, limit int) (int, error)
	// RepublishEvent schedules a quarantined event for a fresh round to every subscriber.
	RepublishEvent(ctx context.Context, id string) (*model.DomainEvent, error)
	ListFailedEvents(ctx context.Context, limit int) ([]*model.DomainEvent, error)
}
