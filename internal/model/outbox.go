package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxPublicationRounds is the number of failing publication rounds after which an event is quarantined.
const MaxPublicationRounds = 3

// EventStatus represents the delivery state of a domain event.
type EventStatus string

const (
	EventStatusNeverPublished     EventStatus = "never-published"
	EventStatusToRepublish        EventStatus = "to-republish"
	EventStatusInProcess          EventStatus = "in-process"
	EventStatusPublished          EventStatus = "published"
	EventStatusFailedButWillRetry EventStatus = "failed-but-will-retry"
	EventStatusFailedTooManyTimes EventStatus = "failed-to-many-times"
)

// ParseEventStatus validates and converts a raw string status.
func ParseEventStatus(raw string) (EventStatus, error) {
	status := EventStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventStatus, raw)
	}

	return status, nil
}

// IsValid reports whether the status is part of the delivery lifecycle.
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusNeverPublished, EventStatusToRepublish, EventStatusInProcess,
		EventStatusPublished, EventStatusFailedButWillRetry, EventStatusFailedTooManyTimes:
		return true
	default:
		return false
	}
}

// IsPublishable reports whether the republisher should pick up an event in this status.
func (s EventStatus) IsPublishable() bool {
	return s == EventStatusNeverPublished || s == EventStatusToRepublish || s == EventStatusFailedButWillRetry
}

// SubscriptionID identifies one consumer of a topic. It is persisted in failures,
// so it must stay stable across restarts.
type SubscriptionID string

// EventFailure records one subscriber error during a publication round.
type EventFailure struct {
	SubscriptionID SubscriptionID `json:"subscriptionId"`
	ErrorMessage   string         `json:"errorMessage"`
}

// EventPublication is one dispatch round of an event.
type EventPublication struct {
	PublishedAt time.Time      `json:"publishedAt"`
	Failures    []EventFailure `json:"failures"`
}

// Succeeded reports whether every targeted subscriber accepted the event in this round.
func (p EventPublication) Succeeded() bool {
	return len(p.Failures) == 0
}

// DomainEvent is an event stored in the outbox together with its publication history.
type DomainEvent struct {
	ID             string             `json:"id"`
	OccurredAt     time.Time          `json:"occurredAt"`
	Topic          Topic              `json:"topic"`
	Payload        json.RawMessage    `json:"payload"`
	Publications   []EventPublication `json:"publications"`
	Status         EventStatus        `json:"status"`
	WasQuarantined bool               `json:"wasQuarantined"`
	Priority       *int               `json:"priority,omitempty"`
}

// LastPublication returns the most recent publication by PublishedAt.
// When timestamps are equal, the one appended last wins.
func (e *DomainEvent) LastPublication() (EventPublication, bool) {
	return lastPublication(e.Publications)
}

// RecordPublication appends a publication round and derives the status from it.
// A PublishedAt earlier than the latest recorded round is raised to that round's
// timestamp so the appended round stays the last one.
// It reports whether this round left the event quarantined.
func (e *DomainEvent) RecordPublication(publication EventPublication) bool {
	if last, ok := e.LastPublication(); ok && publication.PublishedAt.Before(last.PublishedAt) {
		publication.PublishedAt = last.PublishedAt
	}

	e.Publications = append(e.Publications, publication)
	e.Status = deliveryStateAfter(publication, len(e.Publications))

	if e.Status == EventStatusFailedTooManyTimes {
		e.WasQuarantined = true
		return true
	}

	return false
}

// WithoutPayload returns a copy of the event stripped of its payload.
func (e *DomainEvent) WithoutPayload() *DomainEvent {
	clone := e.Clone()
	clone.Payload = nil

	return clone
}

// Clone returns a deep copy of the event.
func (e *DomainEvent) Clone() *DomainEvent {
	clone := *e

	if e.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), e.Payload...)
	}

	if e.Priority != nil {
		priority := *e.Priority
		clone.Priority = &priority
	}

	clone.Publications = make([]EventPublication, len(e.Publications))
	for i, publication := range e.Publications {
		clone.Publications[i] = EventPublication{
			PublishedAt: publication.PublishedAt,
			Failures:    append([]EventFailure(nil), publication.Failures...),
		}
	}

	return &clone
}

// NextDeliveryState derives an event status from its publication history.
func NextDeliveryState(publications []EventPublication) EventStatus {
	last, ok := lastPublication(publications)
	if !ok {
		return EventStatusNeverPublished
	}

	return deliveryStateAfter(last, len(publications))
}

func deliveryStateAfter(last EventPublication, rounds int) EventStatus {
	if last.Succeeded() {
		return EventStatusPublished
	}

	if rounds >= MaxPublicationRounds {
		return EventStatusFailedTooManyTimes
	}

	return EventStatusFailedButWillRetry
}

func lastPublication(publications []EventPublication) (EventPublication, bool) {
	if len(publications) == 0 {
		return EventPublication{}, false
	}

	last := 0
	for i := 1; i < len(publications); i++ {
		if !publications[i].PublishedAt.Before(publications[last].PublishedAt) {
			last = i
		}
	}

	return publications[last], true
}
