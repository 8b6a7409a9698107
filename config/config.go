// Package config loads daemon settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tokenforge/tokensale/crowdsale"
)

// Config is the daemon's full configuration. Amounts are decimal strings in
// the token's smallest funding unit.
type Config struct {
	ListenAddr        string
	DatabasePath      string
	LogLevel          string
	EnableColoredLogs bool

	AdminAddress string

	TokenName     string
	TokenSymbol   string
	TokenDecimals int
	SaleName      string
	Rate          string
	SaleStart     string // RFC 3339; empty means now
	MinDeposit    string
	MaxDeposit    string
	SoftCap       string
	HardCap       string
}

// LoadEnvironmentConfig reads the configuration from the environment,
// falling back to development defaults.
func LoadEnvironmentConfig() *Config {
	return &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8085"),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/tokensale.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		EnableColoredLogs: getEnvBool("ENABLE_COLORED_LOGS", true),

		AdminAddress: getEnv("ADMIN_ADDRESS", "0x1111111111111111111111111111111111111111"),

		TokenName:     getEnv("TOKEN_NAME", "Forge Token"),
		TokenSymbol:   getEnv("TOKEN_SYMBOL", "FRG"),
		TokenDecimals: getEnvInt("TOKEN_DECIMALS", 18),
		SaleName:      getEnv("SALE_NAME", "Forge Presale"),
		Rate:          getEnv("SALE_RATE", "1000000000000000"),
		SaleStart:     getEnv("SALE_START", ""),
		MinDeposit:    getEnv("SALE_MIN_DEPOSIT", "10000000000000000000"),
		MaxDeposit:    getEnv("SALE_MAX_DEPOSIT", "100000000000000000000"),
		SoftCap:       getEnv("SALE_SOFT_CAP", "150000000000000000000"),
		HardCap:       getEnv("SALE_HARD_CAP", "200000000000000000000"),
	}
}

// Admin parses the configured administrator address.
func (c *Config) Admin() (common.Address, error) {
	if !common.IsHexAddress(c.AdminAddress) {
		return common.Address{}, fmt.Errorf("ADMIN_ADDRESS %q is not a valid address", c.AdminAddress)
	}
	return common.HexToAddress(c.AdminAddress), nil
}

// SaleParams converts the configuration into sale parameters.
func (c *Config) SaleParams() (crowdsale.Params, error) {
	if c.TokenDecimals < 0 || c.TokenDecimals > 77 {
		return crowdsale.Params{}, fmt.Errorf("TOKEN_DECIMALS %d out of range", c.TokenDecimals)
	}
	params := crowdsale.Params{
		TokenName:     c.TokenName,
		TokenSymbol:   c.TokenSymbol,
		TokenDecimals: uint8(c.TokenDecimals),
		SaleName:      c.SaleName,
		Start:         time.Now(),
	}
	if c.SaleStart != "" {
		start, err := time.Parse(time.RFC3339, c.SaleStart)
		if err != nil {
			return crowdsale.Params{}, fmt.Errorf("SALE_START: %w", err)
		}
		params.Start = start
	}

	var err error
	if params.Rate, err = parseAmount("SALE_RATE", c.Rate); err != nil {
		return crowdsale.Params{}, err
	}
	if params.MinDeposit, err = parseAmount("SALE_MIN_DEPOSIT", c.MinDeposit); err != nil {
		return crowdsale.Params{}, err
	}
	if params.MaxDeposit, err = parseAmount("SALE_MAX_DEPOSIT", c.MaxDeposit); err != nil {
		return crowdsale.Params{}, err
	}
	if params.SoftCap, err = parseAmount("SALE_SOFT_CAP", c.SoftCap); err != nil {
		return crowdsale.Params{}, err
	}
	if params.HardCap, err = parseAmount("SALE_HARD_CAP", c.HardCap); err != nil {
		return crowdsale.Params{}, err
	}
	return params, nil
}

func parseAmount(name, raw string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", name, raw, err)
	}
	return amount, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
