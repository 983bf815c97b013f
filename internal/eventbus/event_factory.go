package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/jnst/convention-outbox/internal/gateway"
	"github.com/jnst/convention-outbox/internal/model"
)

// EventFactory builds never-published events stamped with an id and the current time.
type EventFactory struct {
	timeGateway   gateway.TimeGateway
	uuidGenerator gateway.UUIDGenerator
}

// NewEventFactory creates an EventFactory.
func NewEventFactory(timeGateway gateway.TimeGateway, uuidGenerator gateway.UUIDGenerator) *EventFactory {
	return &EventFactory{
		timeGateway:   timeGateway,
		uuidGenerator: uuidGenerator,
	}
}

// EventOption customizes a created event.
type EventOption func(*model.DomainEvent)

// WithPriority makes the republisher pick the event before lower priorities.
func WithPriority(priority int) EventOption {
	return func(event *model.DomainEvent) {
		event.Priority = &priority
	}
}

// CreateEvent builds an event of def carrying payload.
func CreateEvent[P any](
	factory *EventFactory, def model.TopicDef[P], payload P, opts ...EventOption,
) (*model.DomainEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", def.Topic(), err)
	}

	event := &model.DomainEvent{
		ID:           factory.uuidGenerator.New(),
		OccurredAt:   factory.timeGateway.Now(),
		Topic:        def.Topic(),
		Payload:      body,
		Publications: []model.EventPublication{},
		Status:       model.EventStatusNeverPublished,
	}

	for _, opt := range opts {
		opt(event)
	}

	return event, nil
}
