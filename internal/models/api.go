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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coarse statuses exposed to buyers and merchants. Internal saga steps are
// never surfaced; clients retrying against step names would only make the
// inconsistency worse.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ConfirmResult represents the outcome of a purchase confirmation request
type ConfirmResult struct {
	PurchaseId string `json:"purchase_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// PurchaseView is the read-model view of a purchase returned by the API
type PurchaseView struct {
	Id             string          `json:"id"`
	PayerAddress   string          `json:"payer_address"`
	MerchantId     string          `json:"merchant_id"`
	TokenContract  string          `json:"token_contract"`
	TokenAmount    decimal.Decimal `json:"token_amount"`
	FiatAmountPaid decimal.Decimal `json:"fiat_amount_paid"`
	FiatAmountOwed decimal.Decimal `json:"fiat_amount_owed"`
	Status         string          `json:"status"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
}

// CreateOrderRequest starts a fiat->token purchase
type CreateOrderRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

// OrderResult represents the outcome of a fiat->token order step
type OrderResult struct {
	OrderId string `json:"order_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// RegisterMerchantRequest upserts a merchant on-chain
type RegisterMerchantRequest struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
