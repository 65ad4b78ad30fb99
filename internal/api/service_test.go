package api

import (
	"testing"
	"time"

	"settlement-bridge-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestOrderStatus(t *testing.T) {
	tests := []struct {
		state models.MintOrderState
		want  string
	}{
		{models.MintOrderCreated, models.StatusProcessing},
		{models.MintOrderCaptured, models.StatusProcessing},
		{models.MintOrderRefundPending, models.StatusProcessing},
		{models.MintOrderMinted, models.StatusCompleted},
		{models.MintOrderRefunded, models.StatusFailed},
		{models.MintOrderFailed, models.StatusFailed},
	}
	for _, tt := range tests {
		got := OrderStatus(&models.MintOrder{State: tt.state})
		if got != tt.want {
			t.Errorf("OrderStatus(%s) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestPurchaseView(t *testing.T) {
	confirmedAt := time.Unix(1756700300, 0).UTC()
	rec := &models.PurchaseRecord{
		Id:             "42",
		PayerAddress:   common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		MerchantId:     "merchant-1",
		TokenContract:  common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		TokenAmount:    decimal.NewFromInt(20),
		FiatAmountPaid: decimal.NewFromInt(20),
		FiatAmountOwed: decimal.RequireFromString("19.8"),
		Confirmed:      true,
		ConfirmedAt:    &confirmedAt,
	}

	view := PurchaseView(rec)

	if view.Status != models.StatusCompleted {
		t.Errorf("Expected completed status, got %s", view.Status)
	}
	if view.PayerAddress != rec.PayerAddress.Hex() {
		t.Errorf("Expected hex payer address, got %s", view.PayerAddress)
	}
	if view.ConfirmedAt == nil || !view.ConfirmedAt.Equal(confirmedAt) {
		t.Error("ConfirmedAt not carried through")
	}

	rec.Confirmed = false
	rec.ConfirmedAt = nil
	if PurchaseView(rec).Status != models.StatusProcessing {
		t.Error("Unconfirmed purchase must map to processing")
	}
}
