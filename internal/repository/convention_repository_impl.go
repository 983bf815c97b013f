package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jnst/convention-outbox/internal/model"
)

const conventionColumns = `id::text, status, status_justification, agency_id,
	date_submission, date_start, date_end, schedule, signatories`

// ConventionRepositoryImpl implements ConventionRepository using PostgreSQL.
type ConventionRepositoryImpl struct {
	db      Querier
	forLock bool
}

// NewConventionRepositoryImpl creates a new ConventionRepository implementation.
func NewConventionRepositoryImpl(db Querier) ConventionRepository {
	return &ConventionRepositoryImpl{db: db}
}

// newLockingConventionRepository reads rows with FOR UPDATE; only meaningful inside a transaction.
func newLockingConventionRepository(tx pgx.Tx) ConventionRepository {
	return &ConventionRepositoryImpl{db: tx, forLock: true}
}

// Save inserts a new convention.
func (r *ConventionRepositoryImpl) Save(ctx context.Context, convention *model.Convention) error {
	if err := convention.Validate(); err != nil {
		return err
	}

	schedule, signatories, err := marshalConventionDocuments(convention)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO conventions (id, status, status_justification, agency_id,
			date_submission, date_start, date_end, schedule, signatories)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`,
		convention.ID,
		string(convention.Status),
		convention.StatusJustification,
		convention.AgencyID,
		convention.DateSubmission,
		convention.DateStart,
		convention.DateEnd,
		schedule,
		signatories,
	)
	if err != nil {
		return fmt.Errorf("failed to insert convention %s: %w", convention.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrConventionAlreadyExists, convention.ID)
	}

	return nil
}

// Update overwrites an existing convention.
func (r *ConventionRepositoryImpl) Update(ctx context.Context, convention *model.Convention) error {
	if !model.IsUUID(convention.ID) {
		return fmt.Errorf("%w: %s", model.ErrConventionNotFound, convention.ID)
	}

	schedule, signatories, err := marshalConventionDocuments(convention)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE conventions
		SET status = $2,
		    status_justification = $3,
		    agency_id = $4,
		    date_start = $5,
		    date_end = $6,
		    schedule = $7,
		    signatories = $8,
		    updated_at = now()
		WHERE id = $1
	`,
		convention.ID,
		string(convention.Status),
		convention.StatusJustification,
		convention.AgencyID,
		convention.DateStart,
		convention.DateEnd,
		schedule,
		signatories,
	)
	if err != nil {
		return fmt.Errorf("failed to update convention %s: %w", convention.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrConventionNotFound, convention.ID)
	}

	return nil
}

// GetByID retrieves a convention by ID.
func (r *ConventionRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Convention, error) {
	if !model.IsUUID(id) {
		return nil, fmt.Errorf("%w: %s", model.ErrConventionNotFound, id)
	}

	query := `SELECT ` + conventionColumns + ` FROM conventions WHERE id = $1`
	if r.forLock {
		query += ` FOR UPDATE`
	}

	var (
		convention      model.Convention
		status          string
		scheduleJSON    []byte
		signatoriesJSON []byte
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&convention.ID,
		&status,
		&convention.StatusJustification,
		&convention.AgencyID,
		&convention.DateSubmission,
		&convention.DateStart,
		&convention.DateEnd,
		&scheduleJSON,
		&signatoriesJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrConventionNotFound, id)
		}

		return nil, fmt.Errorf("failed to get convention %s: %w", id, err)
	}

	convention.Status = model.ConventionStatus(status)
	convention.DateSubmission = convention.DateSubmission.UTC()
	convention.DateStart = convention.DateStart.UTC()
	convention.DateEnd = convention.DateEnd.UTC()

	if err := json.Unmarshal(scheduleJSON, &convention.Schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule of convention %s: %w", id, err)
	}

	if err := json.Unmarshal(signatoriesJSON, &convention.Signatories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signatories of convention %s: %w", id, err)
	}

	return &convention, nil
}

func marshalConventionDocuments(convention *model.Convention) ([]byte, []byte, error) {
	schedule, err := json.Marshal(convention.Schedule)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal schedule of convention %s: %w", convention.ID, err)
	}

	signatories, err := json.Marshal(convention.Signatories)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal signatories of convention %s: %w", convention.ID, err)
	}

	return schedule, signatories, nil
}
