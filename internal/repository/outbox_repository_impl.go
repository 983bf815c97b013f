package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jnst/convention-outbox/internal/model"
)

const outboxColumns = `id::text, occurred_at, topic, payload, status, was_quarantined, priority, publications`

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	db Querier
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(db Querier) OutboxRepository {
	return &OutboxRepositoryImpl{db: db}
}

// Save inserts or overwrites an outbox event.
func (r *OutboxRepositoryImpl) Save(ctx context.Context, event *model.DomainEvent) error {
	publications := event.Publications
	if publications == nil {
		publications = []model.EventPublication{}
	}

	publicationsJSON, err := json.Marshal(publications)
	if err != nil {
		return fmt.Errorf("failed to marshal publications of event %s: %w", event.ID, err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO outbox (id, occurred_at, topic, payload, status, was_quarantined, priority, publications)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    was_quarantined = EXCLUDED.was_quarantined,
		    priority = EXCLUDED.priority,
		    publications = EXCLUDED.publications
	`,
		event.ID,
		event.OccurredAt,
		string(event.Topic),
		[]byte(event.Payload),
		string(event.Status),
		event.WasQuarantined,
		event.Priority,
		publicationsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.ID, err)
	}

	return nil
}

// GetByID retrieves an outbox event by ID.
func (r *OutboxRepositoryImpl) GetByID(ctx context.Context, id string) (*model.DomainEvent, error) {
	if !model.IsUUID(id) {
		return nil, fmt.Errorf("%w: %s", model.ErrEventNotFound, id)
	}

	row := r.db.QueryRow(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = $1`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrEventNotFound, id)
		}

		return nil, err
	}

	return event, nil
}

// GetEventsToPublish retrieves events the republisher owes a delivery round.
// Rows are locked until the enclosing transaction ends; locked rows are skipped.
func (r *OutboxRepositoryImpl) GetEventsToPublish(ctx context.Context, limit int) ([]*model.DomainEvent, error) {
	statuses := []string{
		string(model.EventStatusNeverPublished),
		string(model.EventStatusToRepublish),
		string(model.EventStatusFailedButWillRetry),
	}

	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM outbox
		WHERE status = ANY($1)
		ORDER BY priority DESC NULLS LAST, occurred_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, statuses, limit)
}

// GetFailedEvents retrieves quarantined events.
func (r *OutboxRepositoryImpl) GetFailedEvents(ctx context.Context, limit int) ([]*model.DomainEvent, error) {
	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM outbox
		WHERE status = $1
		ORDER BY occurred_at
		LIMIT $2
	`, string(model.EventStatusFailedTooManyTimes), limit)
}

// MarkEventsAsInProcess flags events as claimed by a dispatcher.
func (r *OutboxRepositoryImpl) MarkEventsAsInProcess(ctx context.Context, events []*model.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}

	if _, err := r.db.Exec(ctx, `UPDATE outbox SET status = $1 WHERE id = ANY($2::uuid[])`,
		string(model.EventStatusInProcess), ids); err != nil {
		return fmt.Errorf("failed to mark %d events as in process: %w", len(ids), err)
	}

	return nil
}

func (r *OutboxRepositoryImpl) list(ctx context.Context, query string, args ...any) ([]*model.DomainEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.DomainEvent, error) {
		return scanEvent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}

func scanEvent(row pgx.Row) (*model.DomainEvent, error) {
	var (
		event            model.DomainEvent
		topic            string
		status           string
		payload          []byte
		priority         pgtype.Int4
		publicationsJSON []byte
	)

	if err := row.Scan(
		&event.ID,
		&event.OccurredAt,
		&topic,
		&payload,
		&status,
		&event.WasQuarantined,
		&priority,
		&publicationsJSON,
	); err != nil {
		return nil, err
	}

	event.Topic = model.Topic(topic)
	event.Payload = payload
	event.OccurredAt = event.OccurredAt.UTC()

	parsedStatus, err := model.ParseEventStatus(status)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", event.ID, err)
	}

	event.Status = parsedStatus

	if priority.Valid {
		value := int(priority.Int32)
		event.Priority = &value
	}

	if err := json.Unmarshal(publicationsJSON, &event.Publications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal publications of event %s: %w", event.ID, err)
	}

	return &event, nil
}
