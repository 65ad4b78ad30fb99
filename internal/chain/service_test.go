package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"settlement-bridge-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// testPrivateKey is the well-known hardhat account #0 key.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeEVMClient struct {
	mu            sync.Mutex
	sent          []*types.Transaction
	receiptStatus uint64
	receiptLogs   []*types.Log
	receiptDelay  int // receipt lookups that miss before the receipt appears
	lookups       int
	sendErr       error
}

func (f *fakeEVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (f *fakeEVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeEVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeEVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEVMClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookups <= f.receiptDelay {
		return nil, errors.New("not found")
	}
	return &types.Receipt{Status: f.receiptStatus, TxHash: txHash, Logs: f.receiptLogs}, nil
}

func newTestChainService(t *testing.T, client EVMClient) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), client, models.ChainConfig{
		ContractAddress: "0xdddddddddddddddddddddddddddddddddddddddd",
		PrivateKey:      testPrivateKey,
		GasLimit:        300_000,
		MineTimeout:     time.Second,
		PollInterval:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestConfirmPurchase_SubmitsSignedCall(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: types.ReceiptStatusSuccessful}
	svc := newTestChainService(t, client)

	txHash, err := svc.ConfirmPurchase(context.Background(), "42")
	if err != nil {
		t.Fatalf("ConfirmPurchase failed: %v", err)
	}
	if txHash == (common.Hash{}) {
		t.Error("Expected a transaction hash")
	}

	if len(client.sent) != 1 {
		t.Fatalf("Expected 1 submitted transaction, got %d", len(client.sent))
	}
	tx := client.sent[0]
	if tx.Nonce() != 7 {
		t.Errorf("Expected nonce 7, got %d", tx.Nonce())
	}
	if tx.To() == nil || *tx.To() != common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd") {
		t.Errorf("Transaction targets wrong contract: %v", tx.To())
	}

	// calldata starts with the confirmPurchase selector and carries the id
	data, err := svc.contractABI.Pack("confirmPurchase", big.NewInt(42))
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if string(tx.Data()) != string(data) {
		t.Error("Submitted calldata does not match packed confirmPurchase(42)")
	}
}

func TestConfirmPurchase_RejectsNonNumericId(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: types.ReceiptStatusSuccessful}
	svc := newTestChainService(t, client)

	if _, err := svc.ConfirmPurchase(context.Background(), "not-a-number"); err == nil {
		t.Error("Expected error for non-numeric purchase id")
	}
	if len(client.sent) != 0 {
		t.Error("No transaction should be submitted for an invalid id")
	}
}

func TestSubmitAndWait_RevertSurfacesAsErrReverted(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: types.ReceiptStatusFailed}
	svc := newTestChainService(t, client)

	_, err := svc.ConfirmPurchase(context.Background(), "42")
	if !errors.Is(err, ErrReverted) {
		t.Errorf("Expected ErrReverted, got %v", err)
	}
}

func TestSubmitAndWait_PollsUntilMined(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: types.ReceiptStatusSuccessful, receiptDelay: 3}
	svc := newTestChainService(t, client)

	if _, err := svc.ConfirmPurchase(context.Background(), "42"); err != nil {
		t.Fatalf("ConfirmPurchase failed: %v", err)
	}
	if client.lookups <= 3 {
		t.Errorf("Expected multiple receipt lookups, got %d", client.lookups)
	}
}

func TestMint_RejectsNonPositiveAmount(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: types.ReceiptStatusSuccessful}
	svc := newTestChainService(t, client)

	if _, err := svc.Mint(context.Background(), common.HexToAddress("0x1"), big.NewInt(0)); err == nil {
		t.Error("Expected error for zero mint amount")
	}
	if _, err := svc.Mint(context.Background(), common.HexToAddress("0x1"), nil); err == nil {
		t.Error("Expected error for nil mint amount")
	}
}

func TestMint_SubmitsPackedCall(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: types.ReceiptStatusSuccessful}
	svc := newTestChainService(t, client)

	to := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	amount := ToBaseUnits(decimal.NewFromInt(20), AmountDecimals)

	if _, err := svc.Mint(context.Background(), to, amount); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	want, err := svc.contractABI.Pack("mint", to, amount)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if string(client.sent[0].Data()) != string(want) {
		t.Error("Submitted calldata does not match packed mint call")
	}
}

func TestUpsertMerchant_RequiresId(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: types.ReceiptStatusSuccessful}
	svc := newTestChainService(t, client)

	if _, err := svc.UpsertMerchant(context.Background(), "", "Acme", "acme@example.com"); err == nil {
		t.Error("Expected error for empty merchant id")
	}
}
