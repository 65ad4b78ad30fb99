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

package api

import (
	"context"
	"fmt"

	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/reconciler"
	"settlement-bridge-go/internal/store"
)

// SettlementService is the thin facade the HTTP layer calls. It translates
// saga outcomes into the coarse client-visible statuses and never leaks
// internal step names.
type SettlementService struct {
	reconciler *reconciler.Service
	indexer    reconciler.IndexerReader
	store      store.SettlementStore
}

func NewSettlementService(r *reconciler.Service, idx reconciler.IndexerReader, st store.SettlementStore) *SettlementService {
	return &SettlementService{
		reconciler: r,
		indexer:    idx,
		store:      st,
	}
}

func (s *SettlementService) HealthCheck(ctx context.Context) error {
	if _, err := s.store.ListFailures(ctx, 1, 0); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ConfirmPurchase runs the crypto->fiat saga and maps the outcome to a
// client-facing result. Safe to call repeatedly for the same id.
func (s *SettlementService) ConfirmPurchase(ctx context.Context, purchaseId string) *models.ConfirmResult {
	if err := s.reconciler.ConfirmPurchase(ctx, purchaseId); err != nil {
		status := models.StatusProcessing
		if reconciler.IsFatal(err) {
			status = models.StatusFailed
		}
		return &models.ConfirmResult{
			PurchaseId: purchaseId,
			Status:     status,
			Error:      clientMessage(status),
		}
	}
	return &models.ConfirmResult{
		PurchaseId: purchaseId,
		Status:     models.StatusCompleted,
	}
}

func clientMessage(status string) string {
	if status == models.StatusFailed {
		return "failed; contact support"
	}
	return ""
}

// PurchaseView maps an indexed purchase to its API representation.
func PurchaseView(rec *models.PurchaseRecord) models.PurchaseView {
	status := models.StatusProcessing
	if rec.Confirmed {
		status = models.StatusCompleted
	}
	return models.PurchaseView{
		Id:             rec.Id,
		PayerAddress:   rec.PayerAddress.Hex(),
		MerchantId:     rec.MerchantId,
		TokenContract:  rec.TokenContract.Hex(),
		TokenAmount:    rec.TokenAmount,
		FiatAmountPaid: rec.FiatAmountPaid,
		FiatAmountOwed: rec.FiatAmountOwed,
		Status:         status,
		ConfirmedAt:    rec.ConfirmedAt,
	}
}

// OrderStatus maps a mint order's internal state to the coarse client
// status.
func OrderStatus(order *models.MintOrder) string {
	switch order.State {
	case models.MintOrderMinted:
		return models.StatusCompleted
	case models.MintOrderRefunded, models.MintOrderFailed:
		return models.StatusFailed
	default:
		return models.StatusProcessing
	}
}
