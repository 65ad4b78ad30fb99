package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateMintOrder persists a freshly created fiat order. No money has moved
// at this point; an abandoned order simply stays in CREATED.
func (s *Service) CreateMintOrder(ctx context.Context, params store.CreateMintOrderParams) (*models.MintOrder, error) {
	if params.OrderId == "" {
		return nil, fmt.Errorf("order id cannot be empty")
	}
	if params.FiatAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("fiat amount must be positive, got %s", params.FiatAmount)
	}

	zap.L().Info("Creating mint order",
		zap.String("order_id", params.OrderId),
		zap.String("destination", params.Destination.Hex()),
		zap.String("fiat_amount", params.FiatAmount.String()),
		zap.String("currency", params.Currency))

	_, err := s.db.ExecContext(ctx, queryInsertMintOrder,
		params.OrderId,
		params.Destination.Hex(),
		params.FiatAmount.String(),
		params.Currency,
		string(models.MintOrderCreated),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert mint order: %w", err)
	}

	return s.GetMintOrder(ctx, params.OrderId)
}

// GetMintOrder loads an order by its fiat processor order id.
func (s *Service) GetMintOrder(ctx context.Context, orderId string) (*models.MintOrder, error) {
	row := s.db.QueryRowContext(ctx, queryGetMintOrder, orderId)

	var (
		order                                   models.MintOrder
		destination                             string
		fiatAmount, capturedAmount, tokenAmount string
		state                                   string
		createdAt, updatedAt                    time.Time
	)
	err := row.Scan(
		&order.Id, &destination, &fiatAmount, &order.Currency,
		&order.CaptureId, &capturedAmount, &tokenAmount,
		&order.MintTxHash, &order.RefundId, &state, &order.FailureReason,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrOrderNotFound, orderId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mint order: %w", err)
	}

	order.Destination = common.HexToAddress(destination)
	order.State = models.MintOrderState(state)
	order.CreatedAt = createdAt
	order.UpdatedAt = updatedAt

	if order.FiatAmount, err = decimal.NewFromString(fiatAmount); err != nil {
		return nil, fmt.Errorf("failed to parse fiat amount %q: %w", fiatAmount, err)
	}
	if order.CapturedAmount, err = decimal.NewFromString(capturedAmount); err != nil {
		return nil, fmt.Errorf("failed to parse captured amount %q: %w", capturedAmount, err)
	}
	if order.TokenAmount, err = decimal.NewFromString(tokenAmount); err != nil {
		return nil, fmt.Errorf("failed to parse token amount %q: %w", tokenAmount, err)
	}

	return &order, nil
}

// MarkOrderCaptured transitions CREATED -> CAPTURED and records the capture
// leg. Re-applying the transition on an already-captured order is a no-op so
// that a crashed saga can replay the step.
func (s *Service) MarkOrderCaptured(ctx context.Context, params store.CaptureParams) error {
	return s.transition(ctx, params.OrderId, queryMarkOrderCaptured,
		string(models.MintOrderCaptured),
		params.CaptureId,
		params.CapturedAmount.String(),
		params.TokenAmount.String(),
		params.OrderId,
		string(models.MintOrderCreated), string(models.MintOrderCaptured),
	)
}

// MarkOrderMinted transitions CAPTURED -> MINTED (terminal).
func (s *Service) MarkOrderMinted(ctx context.Context, orderId, mintTxHash string) error {
	return s.transition(ctx, orderId, queryMarkOrderMinted,
		string(models.MintOrderMinted),
		mintTxHash,
		orderId,
		string(models.MintOrderCaptured),
	)
}

// MarkOrderRefundPending transitions CAPTURED -> REFUND_PENDING after a mint
// failure, before the refund call is attempted. Persisted first so a crash
// between mint failure and refund resumes on the refund leg.
func (s *Service) MarkOrderRefundPending(ctx context.Context, orderId, reason string) error {
	return s.transition(ctx, orderId, queryMarkOrderRefundPending,
		string(models.MintOrderRefundPending),
		reason,
		orderId,
		string(models.MintOrderCaptured), string(models.MintOrderRefundPending),
	)
}

// MarkOrderRefunded transitions REFUND_PENDING -> REFUNDED (terminal).
func (s *Service) MarkOrderRefunded(ctx context.Context, orderId, refundId string) error {
	return s.transition(ctx, orderId, queryMarkOrderRefunded,
		string(models.MintOrderRefunded),
		refundId,
		orderId,
		string(models.MintOrderRefundPending),
	)
}

// MarkOrderFailed parks an order in FAILED from any non-terminal state.
func (s *Service) MarkOrderFailed(ctx context.Context, orderId, reason string) error {
	return s.transition(ctx, orderId, queryMarkOrderFailed,
		string(models.MintOrderFailed),
		reason,
		orderId,
		string(models.MintOrderMinted), string(models.MintOrderRefunded),
	)
}

func (s *Service) transition(ctx context.Context, orderId, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update mint order %s: %w", orderId, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		// Either the order is missing or it is not in a legal source state.
		if _, getErr := s.GetMintOrder(ctx, orderId); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: order %s", store.ErrInvalidTransition, orderId)
	}

	return nil
}
