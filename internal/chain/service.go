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

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"settlement-bridge-go/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrReverted means the transaction was mined but the contract rejected it.
// Submission and inclusion failures are transient; a revert is not.
var ErrReverted = errors.New("transaction reverted")

// EVMClient is the subset of the Ethereum RPC used by the ledger client.
type EVMClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Dial initialises an EVM RPC client for the configured endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("chain rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Service submits transactions against the settlement contract and decodes
// its events. All entry points it calls are no-op-if-already-applied on
// chain, so a retried submission can only waste gas, never duplicate state.
type Service struct {
	client       EVMClient
	contractABI  abi.ABI
	contract     common.Address
	privateKey   *ecdsa.PrivateKey
	from         common.Address
	chainID       *big.Int
	gasLimit      uint64
	submitTimeout time.Duration
	mineTimeout   time.Duration
	pollInterval  time.Duration
}

func NewService(ctx context.Context, client EVMClient, cfg models.ChainConfig) (*Service, error) {
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("contract address required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address: %s", cfg.ContractAddress)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid chain private key: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(contractABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}

	from := crypto.PubkeyToAddress(privateKey.PublicKey)
	zap.L().Info("Chain ledger client initialized",
		zap.String("contract", cfg.ContractAddress),
		zap.String("signer", from.Hex()),
		zap.String("chain_id", chainID.String()))

	return &Service{
		client:        client,
		contractABI:   parsedABI,
		contract:      common.HexToAddress(cfg.ContractAddress),
		privateKey:    privateKey,
		from:          from,
		chainID:       chainID,
		gasLimit:      cfg.GasLimit,
		submitTimeout: cfg.SubmitTimeout,
		mineTimeout:   cfg.MineTimeout,
		pollInterval:  cfg.PollInterval,
	}, nil
}

// ConfirmPurchase calls the contract's confirmation entry point for the
// given purchase id. The entry point is idempotent on-chain: confirming an
// already-confirmed purchase succeeds without emitting a second event.
func (s *Service) ConfirmPurchase(ctx context.Context, purchaseId string) (common.Hash, error) {
	id, ok := new(big.Int).SetString(purchaseId, 10)
	if !ok {
		return common.Hash{}, fmt.Errorf("invalid purchase id: %q", purchaseId)
	}

	data, err := s.contractABI.Pack("confirmPurchase", id)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack confirmPurchase call: %w", err)
	}

	receipt, err := s.submitAndWait(ctx, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("confirmPurchase(%s): %w", purchaseId, err)
	}

	zap.L().Info("On-chain purchase confirmation mined",
		zap.String("purchase_id", purchaseId),
		zap.String("tx_hash", receipt.TxHash.Hex()))
	return receipt.TxHash, nil
}

// Mint issues tokens to the destination address. Amount is in base units.
func (s *Service) Mint(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("mint amount must be positive")
	}

	data, err := s.contractABI.Pack("mint", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack mint call: %w", err)
	}

	receipt, err := s.submitAndWait(ctx, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("mint to %s: %w", to.Hex(), err)
	}

	zap.L().Info("Token mint mined",
		zap.String("to", to.Hex()),
		zap.String("amount_base_units", amount.String()),
		zap.String("tx_hash", receipt.TxHash.Hex()))
	return receipt.TxHash, nil
}

// UpsertMerchant records merchant identity on-chain. Re-registering an
// existing merchant id overwrites the projection; the chain keeps the full
// event history.
func (s *Service) UpsertMerchant(ctx context.Context, merchantId, name, email string) (common.Hash, error) {
	if merchantId == "" {
		return common.Hash{}, fmt.Errorf("merchant id cannot be empty")
	}

	data, err := s.contractABI.Pack("upsertMerchant", merchantId, name, email)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack upsertMerchant call: %w", err)
	}

	receipt, err := s.submitAndWait(ctx, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("upsertMerchant(%s): %w", merchantId, err)
	}

	zap.L().Info("Merchant upsert mined",
		zap.String("merchant_id", merchantId),
		zap.String("tx_hash", receipt.TxHash.Hex()))
	return receipt.TxHash, nil
}

func (s *Service) submitAndWait(ctx context.Context, data []byte) (*types.Receipt, error) {
	submitCtx := ctx
	if s.submitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, s.submitTimeout)
		defer cancel()
	}

	nonce, err := s.client.PendingNonceAt(submitCtx, s.from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(submitCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, s.contract, big.NewInt(0), s.gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(submitCtx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to submit transaction: %w", err)
	}

	receipt, err := s.waitMined(ctx, signedTx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrReverted, signedTx.Hash().Hex())
	}
	return receipt, nil
}

// waitMined polls for the receipt until the transaction is included or the
// mine timeout elapses.
func (s *Service) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.mineTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && err != ethereum.NotFound {
			zap.L().Debug("Receipt lookup failed, retrying",
				zap.String("tx_hash", txHash.Hex()),
				zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return nil, fmt.Errorf("transaction %s not mined within %s: %w",
				txHash.Hex(), s.mineTimeout, waitCtx.Err())
		}
	}
}
