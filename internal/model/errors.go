package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers of the use cases. Concrete errors wrap one of them.
var (
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

var (
	// ErrConventionNotFound is returned when no convention exists for the provided identifier.
	ErrConventionNotFound = fmt.Errorf("convention %w", ErrNotFound)
	// ErrEventNotFound is returned when no outbox event exists for the provided identifier.
	ErrEventNotFound = fmt.Errorf("event %w", ErrNotFound)
	// ErrConventionAlreadyExists is returned when saving a new convention with a taken id.
	ErrConventionAlreadyExists = fmt.Errorf("%w: convention already exists", ErrConflict)
	// ErrInvalidEventStatus is returned when parsing an unknown event status.
	ErrInvalidEventStatus = errors.New("invalid event status")
	// ErrInvalidTopic is returned when parsing a topic outside the closed topic set.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrInvalidConvention is returned when a convention misses mandatory data.
	ErrInvalidConvention = fmt.Errorf("%w: invalid convention", ErrBadRequest)
)
