package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/utils"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultCommitment  = "confirmed"
)

// LamportsPerSOL is the number of lamports in one SOL
const LamportsPerSOL = 1_000_000_000

// EstimatedTransactionFee is the base fee of a single-signature transaction in lamports
const EstimatedTransactionFee uint64 = 5000

// RPCClient performs Solana JSON-RPC 2.0 calls over HTTP
type RPCClient struct {
	endpoint    string
	commitment  string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	logger      *zap.Logger
}

// ClientOption configures RPCClient.
type ClientOption func(*RPCClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *RPCClient) {
		c.client = client
	}
}

// WithCommitment sets the commitment level sent with state queries
func WithCommitment(commitment string) ClientOption {
	return func(c *RPCClient) {
		c.commitment = commitment
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *RPCClient) {
		c.logger = logger
	}
}

// NewRPCClient creates a new Solana RPC HTTP client.
func NewRPCClient(endpoint string, opts ...ClientOption) *RPCClient {
	c := &RPCClient{
		endpoint:    endpoint,
		commitment:  DefaultCommitment,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// Endpoint returns the JSON-RPC URL
func (c *RPCClient) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Errors reported by the node are returned without retrying.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying RPC call",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

func (c *RPCClient) commitmentParam() map[string]interface{} {
	return map[string]interface{}{"commitment": c.commitment}
}

// GetBalanceLamports returns the balance of address in lamports
func (c *RPCClient) GetBalanceLamports(ctx context.Context, address string) (uint64, error) {
	if err := ValidateAddress(address); err != nil {
		return 0, err
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{address, c.commitmentParam()}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetBalance returns the balance of address in SOL
func (c *RPCClient) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	lamports, err := c.GetBalanceLamports(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	return LamportsToSOL(lamports), nil
}

// GetSlot returns the current slot
func (c *RPCClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", []interface{}{c.commitmentParam()}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetVersion returns the solana-core version of the node
func (c *RPCClient) GetVersion(ctx context.Context) (string, error) {
	var result struct {
		SolanaCore string `json:"solana-core"`
	}
	if err := c.call(ctx, "getVersion", nil, &result); err != nil {
		return "", err
	}
	return result.SolanaCore, nil
}

// EpochInfo is the result of getEpochInfo
type EpochInfo struct {
	AbsoluteSlot     uint64 `json:"absoluteSlot"`
	BlockHeight      uint64 `json:"blockHeight"`
	Epoch            uint64 `json:"epoch"`
	SlotIndex        uint64 `json:"slotIndex"`
	SlotsInEpoch     uint64 `json:"slotsInEpoch"`
	TransactionCount uint64 `json:"transactionCount"`
}

// GetEpochInfo returns information about the current epoch
func (c *RPCClient) GetEpochInfo(ctx context.Context) (*EpochInfo, error) {
	var info EpochInfo
	if err := c.call(ctx, "getEpochInfo", []interface{}{c.commitmentParam()}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// IsConnected reports whether the node answers getEpochInfo
func (c *RPCClient) IsConnected(ctx context.Context) bool {
	if _, err := c.GetEpochInfo(ctx); err != nil {
		c.logger.Debug("RPC connectivity check failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		return false
	}
	return true
}

// Ping measures the round trip of a getSlot call
func (c *RPCClient) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.GetSlot(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// GetLatestBlockhash returns the most recent blockhash
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []interface{}{c.commitmentParam()}, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

// LamportsToSOL converts lamports to SOL
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// ValidateAddress checks that address is a base58 encoded 32-byte public key
func ValidateAddress(address string) error {
	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	return nil
}
