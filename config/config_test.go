package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solarb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	start, err := cfg.StartToken()
	require.NoError(t, err)
	assert.Equal(t, SOLMint, start.Address)
	assert.Equal(t, uint8(9), start.Decimals)

	middle, err := cfg.MiddleToken()
	require.NoError(t, err)
	assert.Equal(t, USDCMint, middle.Address)

	stable, err := cfg.StableTokens()
	require.NoError(t, err)
	require.Len(t, stable, 2)
	assert.Equal(t, USDTMint, stable[1].Address)

	assert.Equal(t, "0.5", cfg.MinProfitPercent().String())
	assert.Equal(t, "1", cfg.StartAmount().String())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
jupiter:
  retry_delay: 250ms
  max_attempts: 5
  rate_limit:
    requests_per_second: 2
    burst_size: 4
monitor:
  interval: 30s
  max_iterations: 12
  min_profit_percent: 0.25
  start_amount: 2.5
tokens:
  start: usdc
  middle: SOL
solana:
  cluster: mainnet-beta
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 250*time.Millisecond, cfg.Jupiter.RetryDelay)
	assert.Equal(t, 5, cfg.Jupiter.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Jupiter.RequestTimeout, "unset fields keep defaults")
	assert.Equal(t, 2.0, cfg.Jupiter.RateLimit.RequestsPerSecond)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 12, cfg.Monitor.MaxIterations)
	assert.Equal(t, "0.25", cfg.MinProfitPercent().String())
	assert.Equal(t, "2.5", cfg.StartAmount().String())

	start, err := cfg.StartToken()
	require.NoError(t, err)
	assert.Equal(t, "USDC", start.Symbol)

	endpoint, err := cfg.RPCEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", endpoint)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "monitor: [not, a, map"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvInterval, "2s")
	t.Setenv(EnvMaxIterations, "7")
	t.Setenv(EnvMinProfitPercent, "1.5")
	t.Setenv(EnvSlippageBps, "100")
	t.Setenv(EnvRPCEndpoint, "http://localhost:8899")
	t.Setenv(EnvMetricsAddr, "127.0.0.1:9100")
	t.Setenv(EnvDebug, "true")

	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 7, cfg.Monitor.MaxIterations)
	assert.Equal(t, 1.5, cfg.Monitor.MinProfitPercent)
	assert.Equal(t, uint16(100), cfg.Jupiter.SlippageBps)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.ListenAddr)
	assert.True(t, cfg.Log.Debug)

	endpoint, err := cfg.RPCEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8899", endpoint)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv(EnvMaxAttempts, "three")
	t.Setenv(EnvInterval, "soon")

	err := Defaults().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvMaxAttempts)
	assert.Contains(t, err.Error(), EnvInterval)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Jupiter.MaxAttempts = 0
	cfg.Monitor.Interval = 0
	cfg.Monitor.StartAmount = -1
	cfg.Tokens.Middle = "BONK"
	cfg.Solana.Cluster = "moonnet"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "configuration validation failed")
	assert.Contains(t, msg, "jupiter.max_attempts")
	assert.Contains(t, msg, "monitor.interval")
	assert.Contains(t, msg, "monitor.start_amount")
	assert.Contains(t, msg, `tokens.middle "BONK"`)
	assert.Contains(t, msg, "solana.cluster")
}

func TestValidateTokens(t *testing.T) {
	cfg := Defaults()
	cfg.Tokens.Middle = "sol"
	assert.ErrorContains(t, cfg.Validate(), "must differ")

	cfg = Defaults()
	cfg.Tokens.Known = append(cfg.Tokens.Known, cfg.Tokens.Known[0])
	assert.ErrorContains(t, cfg.Validate(), "duplicate symbol")

	cfg = Defaults()
	cfg.Jupiter.RateLimit = RateLimitConfig{RequestsPerSecond: 1}
	assert.ErrorContains(t, cfg.Validate(), "burst size")
}

func TestClusterEndpoint(t *testing.T) {
	tests := []struct {
		cluster string
		want    string
	}{
		{"mainnet-beta", "https://api.mainnet-beta.solana.com"},
		{"devnet", "https://api.devnet.solana.com"},
		{"Testnet", "https://api.testnet.solana.com"},
		{"localnet", "http://127.0.0.1:8899"},
	}
	for _, tt := range tests {
		got, err := ClusterEndpoint(tt.cluster)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ClusterEndpoint("nope")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Monitor.MaxIterations = 42
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Monitor.MaxIterations)
	assert.Equal(t, cfg.Tokens.Known, loaded.Tokens.Known)
}
