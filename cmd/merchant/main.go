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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/mail"

	"settlement-bridge-go/internal/common"
	"settlement-bridge-go/internal/config"

	"go.uber.org/zap"
)

type merchantRequest struct {
	id    string
	name  string
	email string
}

func parseAndValidateFlags() (*merchantRequest, error) {
	idFlag := flag.String("id", "", "Merchant identifier (required)")
	nameFlag := flag.String("name", "", "Merchant display name (required)")
	emailFlag := flag.String("email", "", "Merchant payout email (required)")
	flag.Parse()

	if *idFlag == "" || *nameFlag == "" || *emailFlag == "" {
		return nil, fmt.Errorf("all flags are required: --id, --name, --email")
	}

	if _, err := mail.ParseAddress(*emailFlag); err != nil {
		return nil, fmt.Errorf("invalid email format: %w", err)
	}

	return &merchantRequest{
		id:    *idFlag,
		name:  *nameFlag,
		email: *emailFlag,
	}, nil
}

func main() {
	req, err := parseAndValidateFlags()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	zap.L().Info("Registering merchant on-chain",
		zap.String("merchant_id", req.id),
		zap.String("name", req.name))

	if err := services.Reconciler.RegisterMerchant(ctx, req.id, req.name, req.email); err != nil {
		zap.L().Fatal("Merchant registration failed",
			zap.String("merchant_id", req.id),
			zap.Error(err))
	}

	fmt.Printf("Merchant registered successfully:\n")
	fmt.Printf("  ID:    %s\n", req.id)
	fmt.Printf("  Name:  %s\n", req.name)
	fmt.Printf("  Email: %s\n", req.email)
}
