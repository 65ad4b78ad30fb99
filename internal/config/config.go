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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"settlement-bridge-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	submitTimeout, err := getEnvDuration("CHAIN_SUBMIT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	mineTimeout, err := getEnvDuration("CHAIN_MINE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	chainPollInterval, err := getEnvDuration("CHAIN_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}

	indexerTimeout, err := getEnvDuration("INDEXER_REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	confirmBackoff, err := getEnvDuration("RECONCILER_CONFIRM_BACKOFF", 3*time.Second)
	if err != nil {
		return nil, err
	}

	refundBackoff, err := getEnvDuration("RECONCILER_REFUND_BACKOFF", 2*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("SWEEPER_POLLING_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	graceWindow, err := getEnvDuration("SWEEPER_GRACE_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "settlements.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Chain: models.ChainConfig{
			RPCEndpoint:     getEnvString("CHAIN_RPC_ENDPOINT", "http://localhost:8545"),
			ContractAddress: os.Getenv("CHAIN_CONTRACT_ADDRESS"),
			PrivateKey:      os.Getenv("CHAIN_PRIVATE_KEY"),
			GasLimit:        uint64(getEnvInt("CHAIN_GAS_LIMIT", 300000)),
			SubmitTimeout:   submitTimeout,
			MineTimeout:     mineTimeout,
			PollInterval:    chainPollInterval,
		},
		Indexer: models.IndexerConfig{
			Endpoint:       os.Getenv("INDEXER_ENDPOINT"),
			RequestTimeout: indexerTimeout,
		},
		Processor: models.ProcessorConfig{
			BaseURL:      getEnvString("PROCESSOR_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:     os.Getenv("PROCESSOR_CLIENT_ID"),
			ClientSecret: os.Getenv("PROCESSOR_CLIENT_SECRET"),
			Currency:     getEnvString("PROCESSOR_CURRENCY", "USD"),
		},
		Reconciler: models.ReconcilerConfig{
			ConfirmAttempts: getEnvInt("RECONCILER_CONFIRM_ATTEMPTS", 3),
			ConfirmBackoff:  confirmBackoff,
			RefundAttempts:  getEnvInt("RECONCILER_REFUND_ATTEMPTS", 3),
			RefundBackoff:   refundBackoff,
			RatesFile:       getEnvString("RATES_FILE", "rates.yaml"),
		},
		Server: models.ServerConfig{
			ListenAddr:      getEnvString("SERVER_LISTEN_ADDR", ":8080"),
			ShutdownTimeout: shutdownTimeout,
		},
		Sweeper: models.SweeperConfig{
			PollingInterval: sweepInterval,
			GraceWindow:     graceWindow,
			BatchSize:       getEnvInt("SWEEPER_BATCH_SIZE", 50),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
