package database

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-bridge-go/internal/store"

	"go.uber.org/zap"
)

const (
	keyStatusInFlight  = "in_flight"
	keyStatusCompleted = "completed"
)

// Begin records the key as in-flight if absent. It reports alreadyProcessed
// when the key completed previously, and store.ErrKeyInFlight when another
// attempt currently holds it. The insert-or-nothing against the primary key
// is what serializes concurrent attempts on the same key; there is no
// application-level lock.
func (s *Service) Begin(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("idempotency key cannot be empty")
	}

	res, err := s.db.ExecContext(ctx, queryInsertKey, key)
	if err != nil {
		return false, fmt.Errorf("failed to insert idempotency key: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 1 {
		// This attempt won the key.
		return false, nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, queryGetKeyStatus, key).Scan(&status)
	if err == sql.ErrNoRows {
		// The conflicting holder released the key between our insert and
		// read. Treat as in-flight; the caller's retry loop will re-acquire.
		return false, store.ErrKeyInFlight
	}
	if err != nil {
		return false, fmt.Errorf("failed to read idempotency key status: %w", err)
	}

	if status == keyStatusCompleted {
		zap.L().Info("Idempotency key already completed, skipping side effect",
			zap.String("key", key))
		return true, nil
	}
	return false, store.ErrKeyInFlight
}

// Complete marks an in-flight key as done.
func (s *Service) Complete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, queryCompleteKey, key)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: key %q not in flight", store.ErrConcurrentModification, key)
	}
	return nil
}

// Release drops an in-flight key so a later attempt may retry the side
// effect. Completed keys are never released.
func (s *Service) Release(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, queryReleaseKey, key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
