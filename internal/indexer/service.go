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

package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"settlement-bridge-go/internal/chain"
	"settlement-bridge-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrNotFound means the read model has no row for the id. Because the
// indexer lags the chain, callers must treat this as transient for entities
// they know were just mined, not as proof of absence.
var ErrNotFound = errors.New("not found in indexer")

// Service queries the eventually consistent projection of ledger events.
type Service struct {
	endpoint   string
	httpClient *http.Client
}

func NewService(cfg models.IndexerConfig) (*Service, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("indexer endpoint required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Service{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type graphRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphError struct {
	Message string `json:"message"`
}

// purchaseEntity mirrors the indexer's purchase projection. BigInt fields
// arrive as base-unit strings.
type purchaseEntity struct {
	Id             string `json:"id"`
	Payer          string `json:"payer"`
	MerchantId     string `json:"merchantId"`
	TokenContract  string `json:"tokenContract"`
	TokenAmount    string `json:"tokenAmount"`
	FiatAmountPaid string `json:"fiatAmountPaid"`
	FiatAmountOwed string `json:"fiatAmountOwed"`
	Confirmed      bool   `json:"confirmed"`
	CreatedAt      string `json:"createdAt"`
	ConfirmedAt    string `json:"confirmedAt"`
}

type merchantEntity struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

const purchaseFields = `id payer merchantId tokenContract tokenAmount fiatAmountPaid fiatAmountOwed confirmed createdAt confirmedAt`

// GetPurchaseByID returns the indexed purchase record, or ErrNotFound while
// the indexer has not yet materialized it.
func (s *Service) GetPurchaseByID(ctx context.Context, id string) (*models.PurchaseRecord, error) {
	query := fmt.Sprintf(`query($id: ID!) { purchase(id: $id) { %s } }`, purchaseFields)

	var payload struct {
		Purchase *purchaseEntity `json:"purchase"`
	}
	if err := s.execute(ctx, query, map[string]any{"id": id}, &payload); err != nil {
		return nil, err
	}
	if payload.Purchase == nil {
		return nil, fmt.Errorf("purchase %s: %w", id, ErrNotFound)
	}

	return toPurchaseRecord(payload.Purchase)
}

// GetMerchantByID returns the merchant projection, or ErrNotFound.
func (s *Service) GetMerchantByID(ctx context.Context, id string) (*models.MerchantRecord, error) {
	query := `query($id: ID!) { merchant(id: $id) { id name email } }`

	var payload struct {
		Merchant *merchantEntity `json:"merchant"`
	}
	if err := s.execute(ctx, query, map[string]any{"id": id}, &payload); err != nil {
		return nil, err
	}
	if payload.Merchant == nil {
		return nil, fmt.Errorf("merchant %s: %w", id, ErrNotFound)
	}

	return &models.MerchantRecord{
		Id:    payload.Merchant.Id,
		Name:  payload.Merchant.Name,
		Email: payload.Merchant.Email,
	}, nil
}

// ListPurchasesByMerchant returns a merchant's purchases, newest first.
func (s *Service) ListPurchasesByMerchant(ctx context.Context, merchantId string, first, skip int) ([]models.PurchaseRecord, error) {
	query := fmt.Sprintf(`query($merchantId: String!, $first: Int!, $skip: Int!) {
		purchases(where: {merchantId: $merchantId}, first: $first, skip: $skip, orderBy: createdAt, orderDirection: desc) { %s }
	}`, purchaseFields)

	var payload struct {
		Purchases []purchaseEntity `json:"purchases"`
	}
	err := s.execute(ctx, query, map[string]any{
		"merchantId": merchantId,
		"first":      first,
		"skip":       skip,
	}, &payload)
	if err != nil {
		return nil, err
	}

	return toPurchaseRecords(payload.Purchases)
}

// ListUnconfirmedPurchases returns purchases still awaiting their payout
// confirmation, oldest first, created before the cutoff.
func (s *Service) ListUnconfirmedPurchases(ctx context.Context, createdBefore time.Time, first int) ([]models.PurchaseRecord, error) {
	query := fmt.Sprintf(`query($cutoff: BigInt!, $first: Int!) {
		purchases(where: {confirmed: false, createdAt_lt: $cutoff}, first: $first, orderBy: createdAt, orderDirection: asc) { %s }
	}`, purchaseFields)

	var payload struct {
		Purchases []purchaseEntity `json:"purchases"`
	}
	err := s.execute(ctx, query, map[string]any{
		"cutoff": strconv.FormatInt(createdBefore.Unix(), 10),
		"first":  first,
	}, &payload)
	if err != nil {
		return nil, err
	}

	return toPurchaseRecords(payload.Purchases)
}

func (s *Service) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal indexer query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build indexer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indexer request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read indexer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, string(raw))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphError    `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode indexer response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("indexer query error: %s", envelope.Errors[0].Message)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode indexer data: %w", err)
	}
	return nil
}

func toPurchaseRecords(entities []purchaseEntity) ([]models.PurchaseRecord, error) {
	records := make([]models.PurchaseRecord, 0, len(entities))
	for i := range entities {
		rec, err := toPurchaseRecord(&entities[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func toPurchaseRecord(e *purchaseEntity) (*models.PurchaseRecord, error) {
	tokenAmount, err := baseUnitsToDecimal(e.TokenAmount)
	if err != nil {
		return nil, fmt.Errorf("purchase %s token amount: %w", e.Id, err)
	}
	fiatPaid, err := baseUnitsToDecimal(e.FiatAmountPaid)
	if err != nil {
		return nil, fmt.Errorf("purchase %s fiat paid: %w", e.Id, err)
	}
	fiatOwed, err := baseUnitsToDecimal(e.FiatAmountOwed)
	if err != nil {
		return nil, fmt.Errorf("purchase %s fiat owed: %w", e.Id, err)
	}

	rec := &models.PurchaseRecord{
		Id:             e.Id,
		PayerAddress:   common.HexToAddress(e.Payer),
		MerchantId:     e.MerchantId,
		TokenContract:  common.HexToAddress(e.TokenContract),
		TokenAmount:    tokenAmount,
		FiatAmountPaid: fiatPaid,
		FiatAmountOwed: fiatOwed,
		Confirmed:      e.Confirmed,
	}

	if e.CreatedAt != "" {
		sec, err := strconv.ParseInt(e.CreatedAt, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("purchase %s created at: %w", e.Id, err)
		}
		rec.CreatedAt = time.Unix(sec, 0).UTC()
	}
	if e.ConfirmedAt != "" {
		sec, err := strconv.ParseInt(e.ConfirmedAt, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("purchase %s confirmed at: %w", e.Id, err)
		}
		t := time.Unix(sec, 0).UTC()
		rec.ConfirmedAt = &t
	}

	return rec, nil
}

func baseUnitsToDecimal(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid big integer %q", v)
	}
	return chain.FromBaseUnits(n, chain.AmountDecimals), nil
}
