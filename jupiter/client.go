package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/solarb/types"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/utils/metrics"
)

// Default configuration values.
const (
	DefaultQuoteURL    = "https://quote-api.jup.ag/v6/quote"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultSlippageBps = 50
)

const maxErrorBody = 512

var (
	// ErrNoQuote means every attempt failed: no tradable route is currently
	// available for the pair. It is a routine outcome.
	ErrNoQuote = errors.New("no quote available")

	// ErrInvalidRequest is returned before any attempt for malformed input
	ErrInvalidRequest = errors.New("invalid quote request")
)

// FailureKind classifies a failed attempt. Every kind is retried.
type FailureKind int

const (
	TransportFailure FailureKind = iota + 1
	ServiceError
	NoRouteAvailable
)

func (k FailureKind) String() string {
	switch k {
	case TransportFailure:
		return "transport failure"
	case ServiceError:
		return "service error"
	case NoRouteAvailable:
		return "no route available"
	default:
		return "unknown failure"
	}
}

func (k FailureKind) outcome() string {
	switch k {
	case TransportFailure:
		return metrics.OutcomeTransport
	case ServiceError:
		return metrics.OutcomeService
	default:
		return metrics.OutcomeNoRoute
	}
}

// AttemptError describes why a single quote attempt failed
type AttemptError struct {
	Kind       FailureKind
	Attempt    int
	StatusCode int
	Err        error
}

func (e *AttemptError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("attempt %d: %s (status %d): %v", e.Attempt, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("attempt %d: %s: %v", e.Attempt, e.Kind, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// QuoteRequest is the input of FetchQuote
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      *big.Int // native units, must be positive
	SlippageBps uint16
	MaxAttempts int // <= 0 selects DefaultMaxAttempts
}

// Client fetches swap quotes from the Jupiter quote API
type Client struct {
	quoteURL   string
	client     *http.Client
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.QuoteMetrics

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithQuoteURL overrides the quote endpoint.
func WithQuoteURL(u string) ClientOption {
	return func(c *Client) {
		c.quoteURL = u
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRetryDelay sets the fixed delay between attempts.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithRateLimit caps outgoing attempts. A non-positive rate disables the limit.
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.QuoteMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a quote client with a fixed retry delay and no rate limit
// unless configured otherwise.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		quoteURL:   DefaultQuoteURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		retryDelay: DefaultRetryDelay,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	if c.metrics == nil {
		c.metrics = metrics.NewQuoteMetrics(prometheus.NewRegistry(), metrics.DefaultNamespace)
	}
	return c
}

// FetchQuote requests a quote, retrying every failed attempt after a fixed
// delay. The delay is never awaited after the final attempt. When all attempts
// fail the returned error wraps ErrNoQuote and the last *AttemptError.
func (c *Client) FetchQuote(ctx context.Context, req QuoteRequest) (*types.Quote, error) {
	if req.InputMint == "" || req.OutputMint == "" {
		return nil, fmt.Errorf("%w: input and output mints are required", ErrInvalidRequest)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		quote, err := c.attempt(ctx, req, attempt)
		if err == nil {
			c.metrics.Attempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
			return quote, nil
		}

		lastErr = err
		var attemptErr *AttemptError
		if errors.As(err, &attemptErr) {
			c.metrics.Attempts.WithLabelValues(attemptErr.Kind.outcome()).Inc()
		}
		c.logger.Warn("Quote attempt failed",
			zap.String("input_mint", req.InputMint),
			zap.String("output_mint", req.OutputMint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if attempt >= maxAttempts {
			break
		}

		c.metrics.Retries.Inc()
		if err := c.sleep(ctx, c.retryDelay); err != nil {
			lastErr = &AttemptError{Kind: TransportFailure, Attempt: attempt, Err: err}
			break
		}
	}

	c.metrics.Exhausted.Inc()
	c.logger.Warn("Quote unavailable after retries",
		zap.String("input_mint", req.InputMint),
		zap.String("output_mint", req.OutputMint),
		zap.Int("max_attempts", maxAttempts),
		zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %s -> %s: %w", ErrNoQuote, req.InputMint, req.OutputMint, lastErr)
}

// attempt performs one HTTP round trip and classifies its outcome
func (c *Client) attempt(ctx context.Context, req QuoteRequest, attempt int) (*types.Quote, error) {
	fail := func(kind FailureKind, status int, err error) error {
		return &AttemptError{Kind: kind, Attempt: attempt, StatusCode: status, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fail(TransportFailure, 0, fmt.Errorf("rate limiter: %w", err))
	}

	endpoint, err := c.buildURL(req)
	if err != nil {
		return nil, fail(TransportFailure, 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fail(TransportFailure, 0, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	elapsed := time.Since(start)
	c.metrics.Latency.Observe(elapsed.Seconds())
	if err != nil {
		return nil, fail(TransportFailure, 0, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(TransportFailure, 0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fail(ServiceError, resp.StatusCode, fmt.Errorf("unexpected status: %s", truncate(body)))
	}

	var payload QuoteResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fail(ServiceError, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	if payload.Error != "" {
		return nil, fail(ServiceError, resp.StatusCode, errors.New(payload.Error))
	}

	quote := payload.ToQuote()
	if _, ok := quote.OutAmount(); !ok {
		return nil, fail(NoRouteAvailable, resp.StatusCode, fmt.Errorf("unusable output amount %q", payload.OutAmount))
	}

	c.logger.Debug("Quote received",
		zap.String("input_mint", quote.InputMint),
		zap.String("output_mint", quote.OutputMint),
		zap.String("in_amount", quote.InAmountNative),
		zap.String("out_amount", quote.OutAmountNative),
		zap.Uint64("context_slot", quote.ContextSlot),
		zap.Duration("latency", elapsed),
		zap.Int("attempt", attempt))

	return quote, nil
}

func (c *Client) buildURL(req QuoteRequest) (string, error) {
	u, err := url.Parse(c.quoteURL)
	if err != nil {
		return "", fmt.Errorf("parse quote url: %w", err)
	}
	q := u.Query()
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", req.Amount.String())
	q.Set("slippageBps", fmt.Sprintf("%d", req.SlippageBps))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
