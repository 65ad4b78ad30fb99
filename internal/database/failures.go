package database

import (
	"context"
	"fmt"

	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordFailure appends a fatal saga outcome to the manual-reconciliation
// queue. This is the last resort: the saga has exhausted its retries or hit
// a non-retryable inconsistency, and an operator has to look at it.
func (s *Service) RecordFailure(ctx context.Context, params store.FailureParams) error {
	zap.L().Error("Recording settlement failure for manual reconciliation",
		zap.String("saga", params.Saga),
		zap.String("entity_id", params.EntityId),
		zap.String("last_step", params.LastStep),
		zap.String("reason", params.Reason))

	_, err := s.db.ExecContext(ctx, queryInsertFailure,
		uuid.New().String(),
		params.Saga,
		params.EntityId,
		params.LastStep,
		params.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record settlement failure: %w", err)
	}
	return nil
}

// ListFailures returns recorded failures, newest first.
func (s *Service) ListFailures(ctx context.Context, limit, offset int) ([]models.SettlementFailure, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, queryListFailures, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement failures: %w", err)
	}
	defer rows.Close()

	var failures []models.SettlementFailure
	for rows.Next() {
		var f models.SettlementFailure
		if err := rows.Scan(&f.Id, &f.Saga, &f.EntityId, &f.LastStep, &f.Reason, &f.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
