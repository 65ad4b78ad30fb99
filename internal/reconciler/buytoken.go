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

	"settlement-bridge-go/internal/chain"
	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func captureKey(orderId string) string {
	return "capture:" + orderId
}

func mintKey(orderId string) string {
	return "mint:" + orderId
}

func refundKey(orderId string) string {
	return "refund:" + orderId
}

// BuyToken opens the fiat->token saga: create a fiat order for the
// requested amount and persist it against the buyer's wallet. No money
// moves and no token exists yet, so an abandoned order needs nothing
// undone.
func (s *Service) BuyToken(ctx context.Context, amount decimal.Decimal, destination common.Address) (*models.MintOrder, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive, got %s", amount)
	}
	if destination == (common.Address{}) {
		return nil, fmt.Errorf("destination address required")
	}

	orderId, err := s.fiat.CreateOrder(ctx, amount)
	if err != nil {
		return nil, fmt.Errorf("create fiat order: %w", err)
	}

	order, err := s.store.CreateMintOrder(ctx, store.CreateMintOrderParams{
		OrderId:     orderId,
		Destination: destination,
		FiatAmount:  amount,
		Currency:    "USD",
	})
	if err != nil {
		return nil, fmt.Errorf("persist mint order %s: %w", orderId, err)
	}

	return order, nil
}

// CompleteTokenPurchase runs the committed part of the fiat->token saga
// after the buyer approves the order: capture the fiat, mint the tokens,
// refund the capture if the mint fails. Once the capture lands, the saga
// must reach a terminal state in {MINTED, REFUNDED}; it orders the
// reversible-with-compensation action (capture) before the hard-to-reverse
// one (mint), and the refund is the single compensation in the system.
//
// Safe to call repeatedly with the same order id: terminal orders return
// immediately and every side effect is key-guarded.
func (s *Service) CompleteTokenPurchase(ctx context.Context, orderId string) (*models.MintOrder, error) {
	order, err := s.store.GetMintOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.Terminal() {
		zap.L().Info("Mint order already terminal",
			zap.String("order_id", orderId),
			zap.String("state", string(order.State)))
		return order, nil
	}

	if order.State == models.MintOrderCreated {
		if err := s.captureLeg(ctx, order); err != nil {
			return nil, err
		}
		if order, err = s.store.GetMintOrder(ctx, orderId); err != nil {
			return nil, err
		}
	}

	if order.State == models.MintOrderCaptured {
		if err := s.mintLeg(ctx, order); err != nil {
			return nil, err
		}
		if order, err = s.store.GetMintOrder(ctx, orderId); err != nil {
			return nil, err
		}
	}

	if order.State == models.MintOrderRefundPending {
		if err := s.refundLeg(ctx, order); err != nil {
			return nil, err
		}
		if order, err = s.store.GetMintOrder(ctx, orderId); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// captureLeg moves the buyer's money. From here on the saga owes the buyer
// either tokens or a refund.
func (s *Service) captureLeg(ctx context.Context, order *models.MintOrder) error {
	key := captureKey(order.Id)
	already, err := s.store.Begin(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire capture key: %w", err)
	}
	if already {
		// Captured in a previous attempt that crashed before the state
		// write; the processor capture is the authoritative record.
		zap.L().Warn("Capture key completed but order still CREATED, repairing state",
			zap.String("order_id", order.Id))
		return s.store.MarkOrderCaptured(ctx, store.CaptureParams{
			OrderId:        order.Id,
			CaptureId:      order.CaptureId,
			CapturedAmount: order.FiatAmount,
			TokenAmount:    s.tokenAmountFor(order.FiatAmount),
		})
	}

	captureId, captured, err := s.fiat.CaptureOrder(ctx, order.Id)
	if err != nil {
		if relErr := s.store.Release(ctx, key); relErr != nil {
			zap.L().Error("Failed to release capture key",
				zap.String("key", key), zap.Error(relErr))
		}
		// Nothing was captured; the buyer can simply retry the purchase.
		return fmt.Errorf("capture order %s: %w", order.Id, err)
	}

	// Persist before minting so a crash resumes on the mint leg instead of
	// re-deriving anything from memory.
	err = s.store.MarkOrderCaptured(ctx, store.CaptureParams{
		OrderId:        order.Id,
		CaptureId:      captureId,
		CapturedAmount: captured,
		TokenAmount:    s.tokenAmountFor(captured),
	})
	if err != nil {
		return fmt.Errorf("record capture for order %s: %w", order.Id, err)
	}
	return s.store.Complete(ctx, key)
}

// mintLeg issues the tokens. A mint failure flips the order to
// REFUND_PENDING; it never leaves the order stuck in CAPTURED.
func (s *Service) mintLeg(ctx context.Context, order *models.MintOrder) error {
	key := mintKey(order.Id)
	already, err := s.store.Begin(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire mint key: %w", err)
	}
	if already {
		zap.L().Warn("Mint key completed but order still CAPTURED, repairing state",
			zap.String("order_id", order.Id))
		return s.store.MarkOrderMinted(ctx, order.Id, order.MintTxHash)
	}

	amountBase := chain.ToBaseUnits(order.TokenAmount, s.rates.TokenDecimals)
	txHash, mintErr := s.chain.Mint(ctx, order.Destination, amountBase)
	if mintErr == nil {
		if err := s.store.MarkOrderMinted(ctx, order.Id, txHash.Hex()); err != nil {
			return fmt.Errorf("record mint for order %s: %w", order.Id, err)
		}
		return s.store.Complete(ctx, key)
	}

	// Chain rejected, reverted, or timed out: release the mint key and
	// compensate the capture.
	if relErr := s.store.Release(ctx, key); relErr != nil {
		zap.L().Error("Failed to release mint key",
			zap.String("key", key), zap.Error(relErr))
	}

	zap.L().Warn("Mint failed, refunding capture",
		zap.String("order_id", order.Id),
		zap.String("capture_id", order.CaptureId),
		zap.Error(mintErr))

	if err := s.store.MarkOrderRefundPending(ctx, order.Id, mintErr.Error()); err != nil {
		return fmt.Errorf("record refund pending for order %s: %w", order.Id, err)
	}
	return nil
}

// refundLeg returns the captured amount to the buyer. It retries
// independently of the mint failure that triggered it; a refund that still
// fails leaves both ledgers inconsistent, which is the one genuinely fatal
// outcome of this saga.
func (s *Service) refundLeg(ctx context.Context, order *models.MintOrder) error {
	key := refundKey(order.Id)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.RefundAttempts; attempt++ {
		if attempt > 1 {
			if err := backoffWait(ctx, s.cfg.RefundBackoff, attempt-1); err != nil {
				return err
			}
		}

		already, err := s.store.Begin(ctx, key)
		if err != nil {
			lastErr = err
			continue
		}
		if already {
			return s.store.MarkOrderRefunded(ctx, order.Id, order.RefundId)
		}

		refundId, refundErr := s.fiat.Refund(ctx, order.CaptureId)
		if refundErr == nil {
			if err := s.store.MarkOrderRefunded(ctx, order.Id, refundId); err != nil {
				return fmt.Errorf("record refund for order %s: %w", order.Id, err)
			}
			return s.store.Complete(ctx, key)
		}

		if relErr := s.store.Release(ctx, key); relErr != nil {
			zap.L().Error("Failed to release refund key",
				zap.String("key", key), zap.Error(relErr))
		}
		lastErr = refundErr
		if !isRetryable(refundErr) {
			break
		}

		zap.L().Warn("Refund attempt failed",
			zap.String("order_id", order.Id),
			zap.Int("attempt", attempt),
			zap.Error(refundErr))
	}

	if markErr := s.store.MarkOrderFailed(ctx, order.Id, lastErr.Error()); markErr != nil {
		zap.L().Error("Failed to park order in FAILED",
			zap.String("order_id", order.Id), zap.Error(markErr))
	}
	fatal := &FatalError{
		Saga:     sagaBuyToken,
		EntityId: order.Id,
		Step:     "refund",
		Err:      lastErr,
	}
	s.recordFatal(ctx, fatal)
	return fatal
}

// tokenAmountFor converts a captured fiat amount into tokens at the fixed
// peg rate.
func (s *Service) tokenAmountFor(fiat decimal.Decimal) decimal.Decimal {
	return fiat.Div(s.rates.USDPerToken)
}
