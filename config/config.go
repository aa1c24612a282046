package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/solarb/types"
)

// DefaultConfigFile is read when present and no --config flag is given
const DefaultConfigFile = "solarb.yaml"

// Well-known mainnet mints
const (
	SOLMint  = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

type Config struct {
	Jupiter JupiterConfig `yaml:"jupiter"`
	Monitor MonitorConfig `yaml:"monitor"`
	Tokens  TokensConfig  `yaml:"tokens"`
	Solana  SolanaConfig  `yaml:"solana"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type JupiterConfig struct {
	QuoteURL       string          `yaml:"quote_url"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	RetryDelay     time.Duration   `yaml:"retry_delay"`
	MaxAttempts    int             `yaml:"max_attempts"`
	SlippageBps    uint16          `yaml:"slippage_bps"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps outgoing quote requests. Zero disables the limit.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type MonitorConfig struct {
	Interval         time.Duration `yaml:"interval"`
	MaxIterations    int           `yaml:"max_iterations"` // 0 = unbounded
	MinProfitPercent float64       `yaml:"min_profit_percent"`
	StartAmount      float64       `yaml:"start_amount"` // human units of the start token
	HistorySize      int           `yaml:"history_size"`
}

// TokensConfig names the cycle tokens by symbol. Every symbol must be in Known.
type TokensConfig struct {
	Start  string            `yaml:"start"`
	Middle string            `yaml:"middle"`
	Stable []string          `yaml:"stable"`
	Known  []types.TokenInfo `yaml:"known"`
}

type SolanaConfig struct {
	Cluster     string `yaml:"cluster"`
	RPCEndpoint string `yaml:"rpc_endpoint"` // overrides the cluster default
	WalletPath  string `yaml:"wallet_path"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type LogConfig struct {
	Debug       bool     `yaml:"debug"`
	OutputPaths []string `yaml:"output_paths"`
}

// Defaults returns the configuration used when nothing is overridden
func Defaults() *Config {
	return &Config{
		Jupiter: JupiterConfig{
			QuoteURL:       "https://quote-api.jup.ag/v6/quote",
			RequestTimeout: 10 * time.Second,
			RetryDelay:     time.Second,
			MaxAttempts:    3,
			SlippageBps:    50,
		},
		Monitor: MonitorConfig{
			Interval:         5 * time.Second,
			MaxIterations:    0,
			MinProfitPercent: 0.5,
			StartAmount:      1,
			HistorySize:      10,
		},
		Tokens: TokensConfig{
			Start:  "SOL",
			Middle: "USDC",
			Stable: []string{"USDC", "USDT"},
			Known: []types.TokenInfo{
				{Symbol: "SOL", Address: SOLMint, Decimals: 9},
				{Symbol: "USDC", Address: USDCMint, Decimals: 6},
				{Symbol: "USDT", Address: USDTMint, Decimals: 6},
			},
		},
		Solana: SolanaConfig{
			Cluster:    "devnet",
			WalletPath: "solana-wallet.json",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
	}
}

// Load reads path over Defaults, then applies .env and SOLARB_* overrides.
// An empty path falls back to DefaultConfigFile when it exists.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := LoadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []string

	if c.Jupiter.QuoteURL == "" {
		errs = append(errs, "jupiter.quote_url must be specified")
	}
	if c.Jupiter.RequestTimeout <= 0 {
		errs = append(errs, "jupiter.request_timeout must be positive")
	}
	if c.Jupiter.RetryDelay < 0 {
		errs = append(errs, "jupiter.retry_delay must not be negative")
	}
	if c.Jupiter.MaxAttempts <= 0 {
		errs = append(errs, "jupiter.max_attempts must be positive")
	}
	if c.Jupiter.SlippageBps > 10000 {
		errs = append(errs, "jupiter.slippage_bps must be at most 10000")
	}
	if err := c.Jupiter.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("jupiter.rate_limit: %v", err))
	}

	if c.Monitor.Interval <= 0 {
		errs = append(errs, "monitor.interval must be positive")
	}
	if c.Monitor.MaxIterations < 0 {
		errs = append(errs, "monitor.max_iterations must not be negative")
	}
	if c.Monitor.MinProfitPercent < 0 {
		errs = append(errs, "monitor.min_profit_percent must not be negative")
	}
	if c.Monitor.StartAmount <= 0 {
		errs = append(errs, "monitor.start_amount must be positive")
	}
	if c.Monitor.HistorySize < 0 {
		errs = append(errs, "monitor.history_size must not be negative")
	}

	errs = append(errs, c.Tokens.validate()...)

	if _, err := ClusterEndpoint(c.Solana.Cluster); err != nil && c.Solana.RPCEndpoint == "" {
		errs = append(errs, fmt.Sprintf("solana.cluster: %v", err))
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, "metrics.listen_addr must be specified when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	if r.RequestsPerSecond > 0 && r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

func (t *TokensConfig) validate() []string {
	var errs []string

	seen := make(map[string]bool, len(t.Known))
	for i, tok := range t.Known {
		if tok.Symbol == "" || tok.Address == "" {
			errs = append(errs, fmt.Sprintf("tokens.known[%d] needs a symbol and an address", i))
			continue
		}
		if tok.Decimals > 18 {
			errs = append(errs, fmt.Sprintf("tokens.known[%d] decimals must be at most 18", i))
		}
		key := strings.ToUpper(tok.Symbol)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("tokens.known has duplicate symbol %s", tok.Symbol))
		}
		seen[key] = true
	}

	check := func(field, symbol string) {
		if symbol == "" {
			errs = append(errs, fmt.Sprintf("tokens.%s must be specified", field))
		} else if !seen[strings.ToUpper(symbol)] {
			errs = append(errs, fmt.Sprintf("tokens.%s %q is not a known token", field, symbol))
		}
	}
	check("start", t.Start)
	check("middle", t.Middle)
	for _, s := range t.Stable {
		check("stable", s)
	}

	if t.Start != "" && strings.EqualFold(t.Start, t.Middle) {
		errs = append(errs, "tokens.start and tokens.middle must differ")
	}
	return errs
}

// Token looks up a known token by symbol, case-insensitively
func (c *Config) Token(symbol string) (types.TokenInfo, error) {
	for _, t := range c.Tokens.Known {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return types.TokenInfo{}, fmt.Errorf("unknown token %q", symbol)
}

// StartToken returns the token the cycle starts and ends in
func (c *Config) StartToken() (types.TokenInfo, error) {
	return c.Token(c.Tokens.Start)
}

// MiddleToken returns the token the cycle passes through
func (c *Config) MiddleToken() (types.TokenInfo, error) {
	return c.Token(c.Tokens.Middle)
}

// StableTokens resolves the stable asset symbols
func (c *Config) StableTokens() ([]types.TokenInfo, error) {
	out := make([]types.TokenInfo, 0, len(c.Tokens.Stable))
	for _, s := range c.Tokens.Stable {
		t, err := c.Token(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// StartAmount returns monitor.start_amount as a decimal
func (c *Config) StartAmount() decimal.Decimal {
	return decimal.NewFromFloat(c.Monitor.StartAmount)
}

// MinProfitPercent returns monitor.min_profit_percent as a decimal
func (c *Config) MinProfitPercent() decimal.Decimal {
	return decimal.NewFromFloat(c.Monitor.MinProfitPercent)
}

// RPCEndpoint returns the configured endpoint or the cluster default
func (c *Config) RPCEndpoint() (string, error) {
	if c.Solana.RPCEndpoint != "" {
		return c.Solana.RPCEndpoint, nil
	}
	return ClusterEndpoint(c.Solana.Cluster)
}

// ClusterEndpoint maps a cluster name to its public JSON-RPC endpoint
func ClusterEndpoint(cluster string) (string, error) {
	switch strings.ToLower(cluster) {
	case "mainnet-beta", "mainnet":
		return "https://api.mainnet-beta.solana.com", nil
	case "devnet":
		return "https://api.devnet.solana.com", nil
	case "testnet":
		return "https://api.testnet.solana.com", nil
	case "localnet", "localhost":
		return "http://127.0.0.1:8899", nil
	default:
		return "", fmt.Errorf("unknown cluster %q", cluster)
	}
}

// Save writes the configuration as YAML
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
