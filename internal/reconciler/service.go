/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reconciler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChainLedger is the on-chain side of the bridge. Both entry points are
// idempotent on chain: re-applying an already-applied call is a no-op.
type ChainLedger interface {
	ConfirmPurchase(ctx context.Context, purchaseId string) (common.Hash, error)
	Mint(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error)
	UpsertMerchant(ctx context.Context, merchantId, name, email string) (common.Hash, error)
}

// IndexerReader is the eventually consistent projection of ledger events.
type IndexerReader interface {
	GetPurchaseByID(ctx context.Context, id string) (*models.PurchaseRecord, error)
	GetMerchantByID(ctx context.Context, id string) (*models.MerchantRecord, error)
}

// FiatProcessor is the external payment ledger.
type FiatProcessor interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal) (string, error)
	CaptureOrder(ctx context.Context, orderId string) (captureId string, captured decimal.Decimal, err error)
	Payout(ctx context.Context, receiver string, amount decimal.Decimal, idempotencyKey string) (string, error)
	Refund(ctx context.Context, captureId string) (string, error)
}

// Service drives the two cross-ledger sagas. Saga instances for different
// ids run fully in parallel; the idempotency ledger's per-key serialization
// is the only coordination between them. No lock is ever held across a
// remote call.
type Service struct {
	store   store.SettlementStore
	chain   ChainLedger
	indexer IndexerReader
	fiat    FiatProcessor
	rates   models.Rates
	cfg     models.ReconcilerConfig
}

func NewService(st store.SettlementStore, chainLedger ChainLedger, idx IndexerReader, fiat FiatProcessor, rates models.Rates, cfg models.ReconcilerConfig) (*Service, error) {
	if rates.USDPerToken.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("usd per token rate must be positive, got %s", rates.USDPerToken)
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 3
	}
	if cfg.RefundAttempts <= 0 {
		cfg.RefundAttempts = 3
	}
	return &Service{
		store:   st,
		chain:   chainLedger,
		indexer: idx,
		fiat:    fiat,
		rates:   rates,
		cfg:     cfg,
	}, nil
}

// RegisterMerchant mirrors merchant identity on-chain. The contract's
// upsert overwrites the projection and appends to the event history, so the
// call is safe to repeat.
func (s *Service) RegisterMerchant(ctx context.Context, merchantId, name, email string) error {
	if merchantId == "" || email == "" {
		return fmt.Errorf("merchant id and email are required")
	}

	txHash, err := s.chain.UpsertMerchant(ctx, merchantId, name, email)
	if err != nil {
		return fmt.Errorf("register merchant %s: %w", merchantId, err)
	}

	zap.L().Info("Merchant registered",
		zap.String("merchant_id", merchantId),
		zap.String("tx_hash", txHash.Hex()))
	return nil
}

// backoffWait sleeps for a linearly increasing interval between attempts,
// returning early if the caller cancels. Cancellation only stops further
// retries; it never triggers a compensating action.
func backoffWait(ctx context.Context, base time.Duration, attempt int) error {
	select {
	case <-time.After(base * time.Duration(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
