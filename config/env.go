package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvQuoteURL         = "SOLARB_QUOTE_URL"
	EnvMaxAttempts      = "SOLARB_MAX_ATTEMPTS"
	EnvSlippageBps      = "SOLARB_SLIPPAGE_BPS"
	EnvInterval         = "SOLARB_INTERVAL" // duration, e.g. 5s
	EnvMaxIterations    = "SOLARB_MAX_ITERATIONS"
	EnvMinProfitPercent = "SOLARB_MIN_PROFIT_PERCENT"
	EnvStartAmount      = "SOLARB_START_AMOUNT"
	EnvCluster          = "SOLARB_CLUSTER" // mainnet-beta, devnet, testnet, localnet
	EnvRPCEndpoint      = "SOLARB_RPC_ENDPOINT"
	EnvWalletPath       = "SOLARB_WALLET_PATH"
	EnvMetricsAddr      = "SOLARB_METRICS_ADDR"
	EnvDebug            = "SOLARB_DEBUG"

	// EnvWalletSecret holds the base58 secret key; it is never read from a file or flag
	EnvWalletSecret = "SOLARB_WALLET_SECRET"
)

// LoadEnv loads environment variables from .env file. A missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv gets an environment variable that must be set
func GetRequiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", key)
	}
	return value, nil
}

// ApplyEnv overrides fields from SOLARB_* variables that are set
func (c *Config) ApplyEnv() error {
	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = f
		}
	}

	setString(EnvQuoteURL, &c.Jupiter.QuoteURL)
	setInt(EnvMaxAttempts, &c.Jupiter.MaxAttempts)
	if v, ok := os.LookupEnv(EnvSlippageBps); ok && v != "" {
		bps, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			fail(EnvSlippageBps, err)
		} else {
			c.Jupiter.SlippageBps = uint16(bps)
		}
	}

	if v, ok := os.LookupEnv(EnvInterval); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fail(EnvInterval, err)
		} else {
			c.Monitor.Interval = d
		}
	}
	setInt(EnvMaxIterations, &c.Monitor.MaxIterations)
	setFloat(EnvMinProfitPercent, &c.Monitor.MinProfitPercent)
	setFloat(EnvStartAmount, &c.Monitor.StartAmount)

	setString(EnvCluster, &c.Solana.Cluster)
	setString(EnvRPCEndpoint, &c.Solana.RPCEndpoint)
	setString(EnvWalletPath, &c.Solana.WalletPath)

	if v, ok := os.LookupEnv(EnvMetricsAddr); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.ListenAddr = v
	}
	if v, ok := os.LookupEnv(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			fail(EnvDebug, err)
		} else {
			c.Log.Debug = debug
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
