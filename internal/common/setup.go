package common

import (
	"context"
	"log"
	"strings"

	"settlement-bridge-go/internal/chain"
	"settlement-bridge-go/internal/database"
	"settlement-bridge-go/internal/indexer"
	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/paypal"
	"settlement-bridge-go/internal/reconciler"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		// Only log if the file exists but couldn't be read
		// (godotenv returns an error if .env doesn't exist)
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService      *database.Service
	ChainService   *chain.Service
	IndexerService *indexer.Service
	FiatService    *paypal.Service
	Reconciler     *reconciler.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Connecting to chain RPC", zap.String("endpoint", cfg.Chain.RPCEndpoint))
	evmClient, err := chain.Dial(cfg.Chain.RPCEndpoint)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	chainService, err := chain.NewService(ctx, evmClient, cfg.Chain)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	indexerService, err := indexer.NewService(cfg.Indexer)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	fiatService, err := paypal.NewService(cfg.Processor)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	rates, err := LoadRates(cfg.Reconciler.RatesFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	zap.L().Info("Loaded peg rates",
		zap.String("usd_per_token", rates.USDPerToken.String()),
		zap.Int32("token_decimals", rates.TokenDecimals))

	reconcilerService, err := reconciler.NewService(
		dbService, chainService, indexerService, fiatService, rates, cfg.Reconciler)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	return &Services{
		DbService:      dbService,
		ChainService:   chainService,
		IndexerService: indexerService,
		FiatService:    fiatService,
		Reconciler:     reconcilerService,
	}, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
