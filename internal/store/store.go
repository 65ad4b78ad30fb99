package store

import (
	"context"
	"errors"

	"settlement-bridge-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrKeyInFlight            = errors.New("idempotency key held by an in-flight operation")
	ErrOrderNotFound          = errors.New("mint order not found")
	ErrInvalidTransition      = errors.New("invalid mint order state transition")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// IdempotencyLedger is the durable dedup store that makes retried saga steps
// safe. Per-key serialization comes from the backend's unique-constraint
// semantics: of two concurrent Begin calls for one key, exactly one wins.
type IdempotencyLedger interface {
	// Begin records the key as in-flight if it is absent.
	// Returns (true, nil) when the key already completed; the caller must
	// skip the side effect. Returns ErrKeyInFlight when another attempt
	// currently holds the key.
	Begin(ctx context.Context, key string) (alreadyProcessed bool, err error)

	// Complete marks an in-flight key as done. The side effect behind the key
	// must never run again.
	Complete(ctx context.Context, key string) error

	// Release removes an in-flight key after the side effect failed, allowing
	// a later attempt to retry it.
	Release(ctx context.Context, key string) error
}

// CreateMintOrderParams captures a freshly created fiat order before any
// money has moved.
type CreateMintOrderParams struct {
	OrderId     string
	Destination common.Address
	FiatAmount  decimal.Decimal
	Currency    string
}

// CaptureParams records the capture leg of a mint order.
type CaptureParams struct {
	OrderId        string
	CaptureId      string
	CapturedAmount decimal.Decimal
	TokenAmount    decimal.Decimal
}

// FailureParams captures a fatal saga outcome for the manual queue.
type FailureParams struct {
	Saga     string
	EntityId string
	LastStep string
	Reason   string
}

// SettlementStore defines the contract the local SQLite backend satisfies:
// the idempotency ledger plus mint-order state persistence and the
// manual-reconciliation queue.
type SettlementStore interface {
	IdempotencyLedger

	// --- Mint orders ---
	CreateMintOrder(ctx context.Context, params CreateMintOrderParams) (*models.MintOrder, error)
	GetMintOrder(ctx context.Context, orderId string) (*models.MintOrder, error)
	MarkOrderCaptured(ctx context.Context, params CaptureParams) error
	MarkOrderMinted(ctx context.Context, orderId, mintTxHash string) error
	MarkOrderRefundPending(ctx context.Context, orderId, reason string) error
	MarkOrderRefunded(ctx context.Context, orderId, refundId string) error
	MarkOrderFailed(ctx context.Context, orderId, reason string) error

	// --- Manual reconciliation ---
	RecordFailure(ctx context.Context, params FailureParams) error
	ListFailures(ctx context.Context, limit, offset int) ([]models.SettlementFailure, error)

	// --- Lifecycle ---
	Close()
}
