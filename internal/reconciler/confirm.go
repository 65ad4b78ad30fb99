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
	"errors"
	"fmt"

	"settlement-bridge-go/internal/chain"
	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/store"

	"go.uber.org/zap"
)

func payoutKey(purchaseId string) string {
	return "payout:" + purchaseId
}

// ConfirmPurchase drives the crypto->fiat saga for one purchase: read the
// indexed record, pay the merchant, then set the on-chain confirmation
// flag. The swap itself is already irreversibly committed, so there is no
// compensation here; the only lever is retrying the fiat leg.
//
// The whole saga is safe to re-run: a confirmed record short-circuits, the
// payout is guarded by a durable idempotency key derived from the purchase
// id, and the on-chain confirm is a no-op when already applied.
func (s *Service) ConfirmPurchase(ctx context.Context, purchaseId string) error {
	if purchaseId == "" {
		return fmt.Errorf("purchase id cannot be empty")
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.ConfirmAttempts; attempt++ {
		if attempt > 1 {
			if err := backoffWait(ctx, s.cfg.ConfirmBackoff, attempt-1); err != nil {
				return err
			}
		}

		err := s.confirmOnce(ctx, purchaseId)
		if err == nil {
			return nil
		}
		if IsFatal(err) {
			s.recordFatal(ctx, err)
			return err
		}

		zap.L().Warn("Purchase confirmation attempt failed",
			zap.String("purchase_id", purchaseId),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.ConfirmAttempts),
			zap.String("state", string(models.SettlementPendingPayout)),
			zap.Error(err))
		lastErr = err
	}

	// Exhausted. The purchase stays unconfirmed and lands on the manual
	// queue; it is never silently dropped.
	zap.L().Error("Purchase confirmation attempts exhausted",
		zap.String("purchase_id", purchaseId),
		zap.String("state", string(models.SettlementPayoutFailed)))
	fatal := &FatalError{
		Saga:     sagaConfirmPurchase,
		EntityId: purchaseId,
		Step:     "attempts_exhausted",
		Err:      lastErr,
	}
	s.recordFatal(ctx, fatal)
	return fatal
}

// confirmOnce runs the saga once from the top. Every step is individually
// idempotent, which is what makes re-running from the top safe.
func (s *Service) confirmOnce(ctx context.Context, purchaseId string) error {
	// The indexer may lag the chain: a missing record is a transient
	// condition, never proof the purchase does not exist.
	record, err := s.indexer.GetPurchaseByID(ctx, purchaseId)
	if err != nil {
		return fmt.Errorf("read purchase: %w", err)
	}

	if record.Confirmed {
		zap.L().Info("Purchase already confirmed, nothing to do",
			zap.String("purchase_id", purchaseId))
		return nil
	}

	merchant, err := s.indexer.GetMerchantByID(ctx, record.MerchantId)
	if err != nil {
		return fmt.Errorf("resolve merchant %s: %w", record.MerchantId, err)
	}

	key := payoutKey(purchaseId)
	alreadyPaid, err := s.store.Begin(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrKeyInFlight) {
			return fmt.Errorf("payout for purchase %s in flight elsewhere: %w", purchaseId, err)
		}
		return fmt.Errorf("acquire payout key: %w", err)
	}

	if !alreadyPaid {
		// Fee-adjusted amount and merchant identity were fixed at swap time
		// on-chain; nothing is re-derived here.
		payoutId, payErr := s.fiat.Payout(ctx, merchant.Email, record.FiatAmountOwed, key)
		if payErr != nil {
			if relErr := s.store.Release(ctx, key); relErr != nil {
				zap.L().Error("Failed to release payout key after payout failure",
					zap.String("key", key), zap.Error(relErr))
			}
			// Do not touch the on-chain flag: confirmation must never be
			// set unless the payout ledger acknowledged the transfer.
			return fmt.Errorf("payout for purchase %s: %w", purchaseId, payErr)
		}

		if err := s.store.Complete(ctx, key); err != nil {
			return &FatalError{
				Saga:     sagaConfirmPurchase,
				EntityId: purchaseId,
				Step:     "record_payout",
				Err:      fmt.Errorf("payout %s succeeded but key completion failed: %w", payoutId, err),
			}
		}

		zap.L().Info("Merchant payout completed",
			zap.String("purchase_id", purchaseId),
			zap.String("merchant_id", merchant.Id),
			zap.String("amount", record.FiatAmountOwed.String()),
			zap.String("payout_id", payoutId),
			zap.String("state", string(models.SettlementPayoutSent)))
	}

	if _, err := s.chain.ConfirmPurchase(ctx, purchaseId); err != nil {
		if errors.Is(err, chain.ErrReverted) {
			// The confirm entry point no-ops on an already-set flag, so a
			// revert means something else is wrong with the purchase.
			return &FatalError{
				Saga:     sagaConfirmPurchase,
				EntityId: purchaseId,
				Step:     "chain_confirm",
				Err:      err,
			}
		}
		// Payout already completed and key-guarded; retrying the confirm
		// cannot double-pay.
		return fmt.Errorf("on-chain confirm: %w", err)
	}

	zap.L().Info("Purchase settlement complete",
		zap.String("purchase_id", purchaseId),
		zap.String("state", string(models.SettlementConfirmed)))
	return nil
}

func (s *Service) recordFatal(ctx context.Context, err error) {
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		return
	}

	reason := ""
	if fatal.Err != nil {
		reason = fatal.Err.Error()
	}
	recErr := s.store.RecordFailure(ctx, store.FailureParams{
		Saga:     fatal.Saga,
		EntityId: fatal.EntityId,
		LastStep: fatal.Step,
		Reason:   reason,
	})
	if recErr != nil {
		zap.L().Error("Failed to record settlement failure",
			zap.String("saga", fatal.Saga),
			zap.String("entity_id", fatal.EntityId),
			zap.Error(recErr))
	}
}
