package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransactionManagerImpl implements UnitOfWorkPerformer using PostgreSQL transactions.
type TransactionManagerImpl struct {
	pool TxBeginner
}

// NewTransactionManagerImpl creates a new UnitOfWorkPerformer implementation.
func NewTransactionManagerImpl(pool TxBeginner) UnitOfWorkPerformer {
	return &TransactionManagerImpl{pool: pool}
}

// Perform executes fn with repositories bound to one database transaction.
func (tm *TransactionManagerImpl) Perform(
	ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error,
) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	uow := &UnitOfWork{
		ConventionRepository: newLockingConventionRepository(tx),
		OutboxRepository:     NewOutboxRepositoryImpl(tx),
	}

	if err := fn(ctx, uow); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rollbackErr)
		}

		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			return fmt.Errorf("commit failed: %w, rollback failed: %v", err, rollbackErr)
		}

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
