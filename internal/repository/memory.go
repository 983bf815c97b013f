package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jnst/convention-outbox/internal/model"
)

// InMemoryStore keeps conventions and outbox events in memory. It implements
// UnitOfWorkPerformer with a single mutex: Perform must not be called from
// inside another Perform.
type InMemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	conventions map[string]model.Convention
	events      map[string]*model.DomainEvent
	// insertion order, used to break occurredAt ties deterministically
	eventOrder []string
}

var _ UnitOfWorkPerformer = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		conventions: make(map[string]model.Convention),
		events:      make(map[string]*model.DomainEvent),
	}
}

func (s *memoryState) clone() *memoryState {
	clone := &memoryState{
		conventions: make(map[string]model.Convention, len(s.conventions)),
		events:      make(map[string]*model.DomainEvent, len(s.events)),
		eventOrder:  slices.Clone(s.eventOrder),
	}

	for id, convention := range s.conventions {
		clone.conventions[id] = convention.Clone()
	}

	for id, event := range s.events {
		clone.events[id] = event.Clone()
	}

	return clone
}

// Perform runs fn against a working copy of the store and keeps it only when fn succeeds.
func (s *InMemoryStore) Perform(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	uow := &UnitOfWork{
		ConventionRepository: &inMemoryConventionRepository{state: working},
		OutboxRepository:     &inMemoryOutboxRepository{state: working},
	}

	if err := fn(ctx, uow); err != nil {
		return err
	}

	s.state = working

	return nil
}

// SetConventions stores conventions, replacing those with the same id.
func (s *InMemoryStore) SetConventions(conventions ...model.Convention) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, convention := range conventions {
		s.state.conventions[convention.ID] = convention.Clone()
	}
}

// Conventions returns a copy of every stored convention keyed by id.
func (s *InMemoryStore) Conventions() map[string]model.Convention {
	s.mu.Lock()
	defer s.mu.Unlock()

	conventions := make(map[string]model.Convention, len(s.state.conventions))
	for id, convention := range s.state.conventions {
		conventions[id] = convention.Clone()
	}

	return conventions
}

// SetEvents stores events, replacing those with the same id.
func (s *InMemoryStore) SetEvents(events ...*model.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := &inMemoryOutboxRepository{state: s.state}
	for _, event := range events {
		_ = repo.Save(context.Background(), event)
	}
}

// Events returns a copy of every stored event in insertion order.
func (s *InMemoryStore) Events() []*model.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*model.DomainEvent, 0, len(s.state.eventOrder))
	for _, id := range s.state.eventOrder {
		events = append(events, s.state.events[id].Clone())
	}

	return events
}

type inMemoryConventionRepository struct {
	state *memoryState
}

func (r *inMemoryConventionRepository) Save(_ context.Context, convention *model.Convention) error {
	if err := convention.Validate(); err != nil {
		return err
	}

	if _, exists := r.state.conventions[convention.ID]; exists {
		return fmt.Errorf("%w: %s", model.ErrConventionAlreadyExists, convention.ID)
	}

	r.state.conventions[convention.ID] = convention.Clone()

	return nil
}

func (r *inMemoryConventionRepository) Update(_ context.Context, convention *model.Convention) error {
	if _, exists := r.state.conventions[convention.ID]; !exists {
		return fmt.Errorf("%w: %s", model.ErrConventionNotFound, convention.ID)
	}

	r.state.conventions[convention.ID] = convention.Clone()

	return nil
}

func (r *inMemoryConventionRepository) GetByID(_ context.Context, id string) (*model.Convention, error) {
	convention, exists := r.state.conventions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", model.ErrConventionNotFound, id)
	}

	clone := convention.Clone()

	return &clone, nil
}

type inMemoryOutboxRepository struct {
	state *memoryState
}

func (r *inMemoryOutboxRepository) Save(_ context.Context, event *model.DomainEvent) error {
	if _, exists := r.state.events[event.ID]; !exists {
		r.state.eventOrder = append(r.state.eventOrder, event.ID)
	}

	r.state.events[event.ID] = event.Clone()

	return nil
}

func (r *inMemoryOutboxRepository) GetByID(_ context.Context, id string) (*model.DomainEvent, error) {
	event, exists := r.state.events[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", model.ErrEventNotFound, id)
	}

	return event.Clone(), nil
}

func (r *inMemoryOutboxRepository) GetEventsToPublish(_ context.Context, limit int) ([]*model.DomainEvent, error) {
	events := r.filter(func(event *model.DomainEvent) bool { return event.Status.IsPublishable() })

	slices.SortStableFunc(events, func(a, b *model.DomainEvent) int {
		if byPriority := cmp.Compare(priorityOf(b), priorityOf(a)); byPriority != 0 {
			return byPriority
		}

		return a.OccurredAt.Compare(b.OccurredAt)
	})

	return truncate(events, limit), nil
}

func (r *inMemoryOutboxRepository) GetFailedEvents(_ context.Context, limit int) ([]*model.DomainEvent, error) {
	events := r.filter(func(event *model.DomainEvent) bool {
		return event.Status == model.EventStatusFailedTooManyTimes
	})

	slices.SortStableFunc(events, func(a, b *model.DomainEvent) int {
		return a.OccurredAt.Compare(b.OccurredAt)
	})

	return truncate(events, limit), nil
}

func (r *inMemoryOutboxRepository) MarkEventsAsInProcess(_ context.Context, events []*model.DomainEvent) error {
	for _, event := range events {
		stored, exists := r.state.events[event.ID]
		if !exists {
			return fmt.Errorf("%w: %s", model.ErrEventNotFound, event.ID)
		}

		stored.Status = model.EventStatusInProcess
	}

	return nil
}

func (r *inMemoryOutboxRepository) filter(keep func(*model.DomainEvent) bool) []*model.DomainEvent {
	var events []*model.DomainEvent

	for _, id := range r.state.eventOrder {
		if event := r.state.events[id]; keep(event) {
			events = append(events, event.Clone())
		}
	}

	return events
}

// priorityOf orders events without priority after every prioritized one.
func priorityOf(event *model.DomainEvent) int {
	if event.Priority == nil {
		return -1 << 31
	}

	return *event.Priority
}

func truncate(events []*model.DomainEvent, limit int) []*model.DomainEvent {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}

	return events
}
