package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SettlementState tracks the off-chain payout progress of a purchase. Only
// the on-chain confirmation flag is durable; these states exist for logging
// and the manual-reconciliation queue.
type SettlementState string

const (
	SettlementPendingPayout SettlementState = "PENDING_PAYOUT"
	SettlementPayoutSent    SettlementState = "PAYOUT_SENT"
	SettlementConfirmed     SettlementState = "CONFIRMED"
	SettlementPayoutFailed  SettlementState = "PAYOUT_FAILED"
)

// MintOrderState is the lifecycle of a fiat->token purchase. Terminal states
// are MINTED and REFUNDED; FAILED means both legs are inconsistent and the
// order is parked for manual intervention.
type MintOrderState string

const (
	MintOrderCreated       MintOrderState = "CREATED"
	MintOrderCaptured      MintOrderState = "CAPTURED"
	MintOrderMinted        MintOrderState = "MINTED"
	MintOrderRefundPending MintOrderState = "REFUND_PENDING"
	MintOrderRefunded      MintOrderState = "REFUNDED"
	MintOrderFailed        MintOrderState = "FAILED"
)

// PurchaseRecord is the indexer's projection of an on-chain crypto purchase.
// The record itself is immutable once mined; only the confirmation flag
// changes, and only through the contract's confirm entry point.
type PurchaseRecord struct {
	Id             string
	PayerAddress   common.Address
	MerchantId     string
	TokenContract  common.Address
	TokenAmount    decimal.Decimal
	FiatAmountPaid decimal.Decimal
	FiatAmountOwed decimal.Decimal // post-fee amount owed to the merchant
	Confirmed      bool
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

// MerchantRecord mirrors the merchant-info events emitted on-chain. Email
// doubles as the fiat payout handle.
type MerchantRecord struct {
	Id    string
	Name  string
	Email string
}

// MintOrder represents one fiat->token purchase tracked in the local store.
type MintOrder struct {
	Id             string          `db:"id"` // fiat processor order id
	Destination    common.Address  `db:"destination"`
	FiatAmount     decimal.Decimal `db:"fiat_amount"`
	Currency       string          `db:"currency"`
	CaptureId      string          `db:"capture_id"`
	CapturedAmount decimal.Decimal `db:"captured_amount"`
	TokenAmount    decimal.Decimal `db:"token_amount"`
	MintTxHash     string          `db:"mint_tx_hash"`
	RefundId       string          `db:"refund_id"`
	State          MintOrderState  `db:"state"`
	FailureReason  string          `db:"failure_reason"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Terminal reports whether the order has reached a state the saga never
// leaves again.
func (o *MintOrder) Terminal() bool {
	switch o.State {
	case MintOrderMinted, MintOrderRefunded, MintOrderFailed:
		return true
	}
	return false
}

// SettlementFailure is a fatal saga outcome recorded for manual
// reconciliation. Failures are never dropped; an operator clears them.
type SettlementFailure struct {
	Id         string    `db:"id"`
	Saga       string    `db:"saga"`
	EntityId   string    `db:"entity_id"`
	LastStep   string    `db:"last_step"`
	Reason     string    `db:"reason"`
	DetectedAt time.Time `db:"detected_at"`
}

// Rates holds the fixed peg parameters used to derive mint amounts from
// captured fiat.
type Rates struct {
	USDPerToken   decimal.Decimal
	TokenDecimals int32
}

// PurchaseEvent carries the fields emitted by the contract when a crypto
// purchase is accepted, decoded straight from the transaction receipt.
type PurchaseEvent struct {
	Id             string
	PayerAddress   common.Address
	MerchantId     string
	TokenContract  common.Address
	TokenAmount    decimal.Decimal
	FiatAmountPaid decimal.Decimal
	FiatAmountOwed decimal.Decimal
}
