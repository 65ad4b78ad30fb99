package database

import (
	"context"
	"errors"
	"testing"

	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func createTestOrder(t *testing.T, service *Service, orderId string) *models.MintOrder {
	t.Helper()
	order, err := service.CreateMintOrder(context.Background(), store.CreateMintOrderParams{
		OrderId:     orderId,
		Destination: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		FiatAmount:  decimal.NewFromInt(20),
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("CreateMintOrder failed: %v", err)
	}
	return order
}

func TestCreateMintOrder(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	order := createTestOrder(t, service, "order-1")

	if order.State != models.MintOrderCreated {
		t.Errorf("Expected state CREATED, got %s", order.State)
	}
	if !order.FiatAmount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected fiat amount 20, got %s", order.FiatAmount)
	}
	if order.CaptureId != "" {
		t.Errorf("Expected empty capture id, got %q", order.CaptureId)
	}
}

func TestCreateMintOrder_RejectsNonPositiveAmount(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.CreateMintOrder(context.Background(), store.CreateMintOrderParams{
		OrderId:     "order-1",
		Destination: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		FiatAmount:  decimal.Zero,
		Currency:    "USD",
	})
	if err == nil {
		t.Error("Expected error for zero amount")
	}
}

func TestGetMintOrder_NotFound(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.GetMintOrder(context.Background(), "missing")
	if !errors.Is(err, store.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestMintOrderLifecycle_HappyPath(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestOrder(t, service, "order-1")

	err := service.MarkOrderCaptured(ctx, store.CaptureParams{
		OrderId:        "order-1",
		CaptureId:      "cap-1",
		CapturedAmount: decimal.NewFromInt(20),
		TokenAmount:    decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("MarkOrderCaptured failed: %v", err)
	}

	if err := service.MarkOrderMinted(ctx, "order-1", "0xabc"); err != nil {
		t.Fatalf("MarkOrderMinted failed: %v", err)
	}

	order, err := service.GetMintOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetMintOrder failed: %v", err)
	}
	if order.State != models.MintOrderMinted {
		t.Errorf("Expected state MINTED, got %s", order.State)
	}
	if order.CaptureId != "cap-1" {
		t.Errorf("Expected capture id cap-1, got %q", order.CaptureId)
	}
	if order.MintTxHash != "0xabc" {
		t.Errorf("Expected mint tx hash 0xabc, got %q", order.MintTxHash)
	}
	if !order.Terminal() {
		t.Error("Expected MINTED to be terminal")
	}
}

func TestMarkOrderCaptured_ReplayIsNoop(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestOrder(t, service, "order-1")

	params := store.CaptureParams{
		OrderId:        "order-1",
		CaptureId:      "cap-1",
		CapturedAmount: decimal.NewFromInt(20),
		TokenAmount:    decimal.NewFromInt(20),
	}
	if err := service.MarkOrderCaptured(ctx, params); err != nil {
		t.Fatalf("First MarkOrderCaptured failed: %v", err)
	}

	// Replay after a crash between capture and key completion
	if err := service.MarkOrderCaptured(ctx, params); err != nil {
		t.Fatalf("Replayed MarkOrderCaptured failed: %v", err)
	}

	order, err := service.GetMintOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetMintOrder failed: %v", err)
	}
	if order.State != models.MintOrderCaptured {
		t.Errorf("Expected state CAPTURED, got %s", order.State)
	}
}

func TestMintOrderLifecycle_RefundPath(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestOrder(t, service, "order-1")

	err := service.MarkOrderCaptured(ctx, store.CaptureParams{
		OrderId:        "order-1",
		CaptureId:      "cap-1",
		CapturedAmount: decimal.NewFromInt(20),
		TokenAmount:    decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("MarkOrderCaptured failed: %v", err)
	}

	if err := service.MarkOrderRefundPending(ctx, "order-1", "mint reverted"); err != nil {
		t.Fatalf("MarkOrderRefundPending failed: %v", err)
	}
	if err := service.MarkOrderRefunded(ctx, "order-1", "refund-1"); err != nil {
		t.Fatalf("MarkOrderRefunded failed: %v", err)
	}

	order, err := service.GetMintOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetMintOrder failed: %v", err)
	}
	if order.State != models.MintOrderRefunded {
		t.Errorf("Expected state REFUNDED, got %s", order.State)
	}
	if order.RefundId != "refund-1" {
		t.Errorf("Expected refund id refund-1, got %q", order.RefundId)
	}
	if order.FailureReason != "mint reverted" {
		t.Errorf("Expected failure reason recorded, got %q", order.FailureReason)
	}
}

func TestMarkOrderMinted_RejectsUncapturedOrder(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestOrder(t, service, "order-1")

	// Minting before capture must never be recorded
	err := service.MarkOrderMinted(ctx, "order-1", "0xabc")
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestMarkOrderFailed_FromRefundPending(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestOrder(t, service, "order-1")

	err := service.MarkOrderCaptured(ctx, store.CaptureParams{
		OrderId:        "order-1",
		CaptureId:      "cap-1",
		CapturedAmount: decimal.NewFromInt(20),
		TokenAmount:    decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("MarkOrderCaptured failed: %v", err)
	}
	if err := service.MarkOrderRefundPending(ctx, "order-1", "mint reverted"); err != nil {
		t.Fatalf("MarkOrderRefundPending failed: %v", err)
	}

	if err := service.MarkOrderFailed(ctx, "order-1", "refund attempts exhausted"); err != nil {
		t.Fatalf("MarkOrderFailed failed: %v", err)
	}

	order, err := service.GetMintOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetMintOrder failed: %v", err)
	}
	if order.State != models.MintOrderFailed {
		t.Errorf("Expected state FAILED, got %s", order.State)
	}
}

func TestMarkOrderFailed_NeverLeavesTerminalState(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestOrder(t, service, "order-1")

	err := service.MarkOrderCaptured(ctx, store.CaptureParams{
		OrderId:        "order-1",
		CaptureId:      "cap-1",
		CapturedAmount: decimal.NewFromInt(20),
		TokenAmount:    decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("MarkOrderCaptured failed: %v", err)
	}
	if err := service.MarkOrderMinted(ctx, "order-1", "0xabc"); err != nil {
		t.Fatalf("MarkOrderMinted failed: %v", err)
	}

	err = service.MarkOrderFailed(ctx, "order-1", "late failure")
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestRecordAndListFailures(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	err := service.RecordFailure(ctx, store.FailureParams{
		Saga:     "confirm_purchase",
		EntityId: "42",
		LastStep: "chain_confirm",
		Reason:   "execution reverted",
	})
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	failures, err := service.ListFailures(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListFailures failed: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if failures[0].EntityId != "42" {
		t.Errorf("Expected entity id 42, got %s", failures[0].EntityId)
	}
	if failures[0].LastStep != "chain_confirm" {
		t.Errorf("Expected last step chain_confirm, got %s", failures[0].LastStep)
	}
}
