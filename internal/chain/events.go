package chain

import (
	"context"
	"fmt"
	"math/big"

	"settlement-bridge-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// contractABIJSON describes the settlement contract surface the bridge
// touches: the two idempotent entry points, the merchant upsert, and the
// events the indexer materializes.
const contractABIJSON = `[
	{"type":"function","name":"confirmPurchase","stateMutability":"nonpayable","inputs":[{"name":"purchaseId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"upsertMerchant","stateMutability":"nonpayable","inputs":[{"name":"merchantId","type":"string"},{"name":"name","type":"string"},{"name":"email","type":"string"}],"outputs":[]},
	{"type":"event","name":"PurchaseRecorded","inputs":[{"name":"purchaseId","type":"uint256","indexed":true},{"name":"payer","type":"address","indexed":false},{"name":"merchantId","type":"string","indexed":false},{"name":"tokenContract","type":"address","indexed":false},{"name":"tokenAmount","type":"uint256","indexed":false},{"name":"fiatAmountPaid","type":"uint256","indexed":false},{"name":"fiatAmountOwed","type":"uint256","indexed":false}]},
	{"type":"event","name":"PurchaseConfirmed","inputs":[{"name":"purchaseId","type":"uint256","indexed":true}]},
	{"type":"event","name":"MerchantUpserted","inputs":[{"name":"merchantId","type":"string","indexed":false},{"name":"name","type":"string","indexed":false},{"name":"email","type":"string","indexed":false}]},
	{"type":"event","name":"TokensMinted","inputs":[{"name":"to","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

// purchaseRecordedEvent mirrors the non-indexed fields of PurchaseRecorded
// for ABI unpacking.
type purchaseRecordedEvent struct {
	Payer          common.Address
	MerchantId     string
	TokenContract  common.Address
	TokenAmount    *big.Int
	FiatAmountPaid *big.Int
	FiatAmountOwed *big.Int
}

// ReadPurchaseEvent extracts the PurchaseRecorded event from a mined swap
// transaction. This is how a purchase id is obtained right after a buyer's
// swap, before the indexer has caught up.
func (s *Service) ReadPurchaseEvent(ctx context.Context, txHash common.Hash) (*models.PurchaseEvent, error) {
	receipt, err := s.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt for %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s failed", txHash.Hex())
	}

	eventABI := s.contractABI.Events["PurchaseRecorded"]
	for _, log := range receipt.Logs {
		if log.Address != s.contract || len(log.Topics) < 2 || log.Topics[0] != eventABI.ID {
			continue
		}

		var ev purchaseRecordedEvent
		if err := s.contractABI.UnpackIntoInterface(&ev, "PurchaseRecorded", log.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack PurchaseRecorded event: %w", err)
		}

		// The purchase id is the single indexed parameter.
		id := new(big.Int).SetBytes(log.Topics[1].Bytes())
		return &models.PurchaseEvent{
			Id:             id.String(),
			PayerAddress:   ev.Payer,
			MerchantId:     ev.MerchantId,
			TokenContract:  ev.TokenContract,
			TokenAmount:    FromBaseUnits(ev.TokenAmount, AmountDecimals),
			FiatAmountPaid: FromBaseUnits(ev.FiatAmountPaid, AmountDecimals),
			FiatAmountOwed: FromBaseUnits(ev.FiatAmountOwed, AmountDecimals),
		}, nil
	}

	return nil, fmt.Errorf("no purchase event in transaction %s", txHash.Hex())
}
