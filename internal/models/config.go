package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Chain      ChainConfig
	Indexer    IndexerConfig
	Processor  ProcessorConfig
	Reconciler ReconcilerConfig
	Server     ServerConfig
	Sweeper    SweeperConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ChainConfig holds ledger-contract connection settings
type ChainConfig struct {
	RPCEndpoint     string
	ContractAddress string
	PrivateKey      string
	GasLimit        uint64
	SubmitTimeout   time.Duration
	MineTimeout     time.Duration
	PollInterval    time.Duration
}

// IndexerConfig holds read-model settings
type IndexerConfig struct {
	Endpoint       string
	RequestTimeout time.Duration
}

// ProcessorConfig holds fiat-processor API settings
type ProcessorConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
}

// ReconcilerConfig holds saga retry settings
type ReconcilerConfig struct {
	ConfirmAttempts int
	ConfirmBackoff  time.Duration
	RefundAttempts  int
	RefundBackoff   time.Duration
	RatesFile       string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
}

// SweeperConfig holds unconfirmed-purchase sweep settings
type SweeperConfig struct {
	PollingInterval time.Duration
	GraceWindow     time.Duration
	BatchSize       int
}
