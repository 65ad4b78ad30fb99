package common

import (
	"fmt"
	"os"
	"path/filepath"

	"settlement-bridge-go/internal/chain"
	"settlement-bridge-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type ratesFile struct {
	USDPerToken   string `yaml:"usd_per_token"`
	TokenDecimals int32  `yaml:"token_decimals"`
}

// LoadRates reads the fixed peg parameters. The token is fiat-pegged, so
// the rate is configuration, not a market feed.
func LoadRates(ratesPath string) (models.Rates, error) {
	var path string
	if filepath.IsAbs(ratesPath) {
		path = ratesPath
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return models.Rates{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, ratesPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.Rates{}, fmt.Errorf("unable to read %s: %w", ratesPath, err)
	}

	var file ratesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return models.Rates{}, fmt.Errorf("unable to parse %s: %w", ratesPath, err)
	}

	if file.USDPerToken == "" {
		return models.Rates{}, fmt.Errorf("%s missing usd_per_token", ratesPath)
	}
	rate, err := decimal.NewFromString(file.USDPerToken)
	if err != nil {
		return models.Rates{}, fmt.Errorf("invalid usd_per_token %q: %w", file.USDPerToken, err)
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return models.Rates{}, fmt.Errorf("usd_per_token must be positive, got %s", rate)
	}

	decimals := file.TokenDecimals
	if decimals == 0 {
		decimals = chain.AmountDecimals
	}
	if decimals < 0 {
		return models.Rates{}, fmt.Errorf("token_decimals cannot be negative, got %d", decimals)
	}

	return models.Rates{USDPerToken: rate, TokenDecimals: decimals}, nil
}
