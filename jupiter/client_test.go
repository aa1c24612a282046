package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/michaelpento.lv/solarb/utils/metrics"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func strPtr(s string) *string { return &s }

func okResponse() QuoteResponse {
	return QuoteResponse{
		InputMint:      solMint,
		InAmount:       "1000000000",
		OutputMint:     usdcMint,
		OutAmount:      "150250000",
		SwapMode:       "ExactIn",
		SlippageBps:    50,
		PriceImpactPct: "0.0001",
		RoutePlan: []RoutePlanStep{{
			SwapInfo: SwapInfo{
				AmmKey:     strPtr("HJPjoWUrhoZzkNfRpHuieeFk9WcZWjwy6PBjZ81ngndJ"),
				Label:      strPtr("Whirlpool"),
				InputMint:  solMint,
				OutputMint: usdcMint,
				InAmount:   "1000000000",
				OutAmount:  "150250000",
				FeeAmount:  strPtr("500000"),
				FeeMint:    strPtr(usdcMint),
			},
			Percent: 100,
		}},
		ContextSlot: 250000000,
		TimeTaken:   0.012,
	}
}

// recordingSleeper counts retry delays without waiting
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(t *testing.T, url string) (*Client, *recordingSleeper, *metrics.QuoteMetrics) {
	t.Helper()
	m := metrics.NewQuoteMetrics(prometheus.NewRegistry(), "test")
	c := NewClient(
		WithQuoteURL(url),
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(m),
	)
	s := &recordingSleeper{}
	c.sleep = s.sleep
	return c, s, m
}

func request() QuoteRequest {
	return QuoteRequest{
		InputMint:   solMint,
		OutputMint:  usdcMint,
		Amount:      big.NewInt(1_000_000_000),
		SlippageBps: 50,
		MaxAttempts: 3,
	}
}

func TestFetchQuote_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, solMint, q.Get("inputMint"))
		assert.Equal(t, usdcMint, q.Get("outputMint"))
		assert.Equal(t, "1000000000", q.Get("amount"))
		assert.Equal(t, "50", q.Get("slippageBps"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse())
	}))
	defer server.Close()

	client, sleeper, m := newTestClient(t, server.URL)

	quote, err := client.FetchQuote(context.Background(), request())
	require.NoError(t, err)
	require.NotNil(t, quote)

	assert.Equal(t, "150250000", quote.OutAmountNative)
	assert.Equal(t, uint64(250000000), quote.ContextSlot)
	assert.Equal(t, 0.012, quote.RequestDurationSeconds)
	require.Len(t, quote.Route, 1)
	assert.Equal(t, "Whirlpool", quote.Route[0].Label())
	assert.Equal(t, "500000", *quote.Route[0].FeeAmountNative)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Attempts.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestFetchQuote_RetryBound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		resp := okResponse()
		resp.OutAmount = ""
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, sleeper, m := newTestClient(t, server.URL)

	quote, err := client.FetchQuote(context.Background(), request())
	assert.Nil(t, quote)
	require.ErrorIs(t, err, ErrNoQuote)

	var attemptErr *AttemptError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, NoRouteAvailable, attemptErr.Kind)
	assert.Equal(t, 3, attemptErr.Attempt)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{DefaultRetryDelay, DefaultRetryDelay}, sleeper.delays)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Attempts.WithLabelValues(metrics.OutcomeNoRoute)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Retries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Exhausted))
}

func TestFetchQuote_ExhaustionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(QuoteResponse{Error: "Could not find any route"})
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := NewClient(WithQuoteURL(server.URL), WithLogger(zap.New(core)))
	client.sleep = (&recordingSleeper{}).sleep

	_, err := client.FetchQuote(context.Background(), request())
	require.ErrorIs(t, err, ErrNoQuote)

	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	exhausted := logs.FilterMessage("Quote unavailable after retries").All()
	require.Len(t, exhausted, 1)
	assert.Equal(t, zapcore.WarnLevel, exhausted[0].Level)
}

func TestFetchQuote_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limited"}`))
		case 2:
			json.NewEncoder(w).Encode(QuoteResponse{Error: "Could not find any route"})
		default:
			json.NewEncoder(w).Encode(okResponse())
		}
	}))
	defer server.Close()

	client, sleeper, m := newTestClient(t, server.URL)

	quote, err := client.FetchQuote(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "150250000", quote.OutAmountNative)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, sleeper.delays, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Attempts.WithLabelValues(metrics.OutcomeService)))
}

func TestFetchQuote_StopsOnFirstSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(okResponse())
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL)
	req := request()
	req.MaxAttempts = 5

	_, err := client.FetchQuote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchQuote_MalformedOutAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := okResponse()
		resp.OutAmount = "not-a-number"
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, sleeper, _ := newTestClient(t, server.URL)
	req := request()
	req.MaxAttempts = 2

	_, err := client.FetchQuote(context.Background(), req)
	require.ErrorIs(t, err, ErrNoQuote)

	var attemptErr *AttemptError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, NoRouteAvailable, attemptErr.Kind)
	assert.Len(t, sleeper.delays, 1)
}

func TestFetchQuote_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, sleeper, m := newTestClient(t, url)

	_, err := client.FetchQuote(context.Background(), request())
	require.ErrorIs(t, err, ErrNoQuote)

	var attemptErr *AttemptError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, TransportFailure, attemptErr.Kind)
	assert.Len(t, sleeper.delays, 2)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Attempts.WithLabelValues(metrics.OutcomeTransport)))
}

func TestFetchQuote_DefaultAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL)
	req := request()
	req.MaxAttempts = 0

	_, err := client.FetchQuote(context.Background(), req)
	require.ErrorIs(t, err, ErrNoQuote)
	assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
}

func TestFetchQuote_InvalidRequest(t *testing.T) {
	client, _, _ := newTestClient(t, "http://127.0.0.1:0")

	req := request()
	req.Amount = big.NewInt(0)
	_, err := client.FetchQuote(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, errors.Is(err, ErrNoQuote))

	req = request()
	req.OutputMint = ""
	_, err = client.FetchQuote(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFetchQuote_CancelledDuringDelay(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(WithQuoteURL(server.URL), WithRetryDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	client.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := client.FetchQuote(ctx, request())
	require.ErrorIs(t, err, ErrNoQuote)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestToQuote_OptionalFields(t *testing.T) {
	resp := QuoteResponse{
		OutAmount: "1",
		RoutePlan: []RoutePlanStep{{
			SwapInfo: SwapInfo{InputMint: solMint, OutputMint: usdcMint, InAmount: "1", OutAmount: "1"},
			Percent:  100,
		}},
	}

	q := resp.ToQuote()
	require.Len(t, q.Route, 1)
	assert.Nil(t, q.Route[0].VenueLabel)
	assert.Nil(t, q.Route[0].FeeAmountNative)
	assert.Nil(t, q.Route[0].FeeMint)
	assert.False(t, q.Route[0].HasFee())
	assert.Equal(t, "unknown", q.Route[0].Label())
}

func TestFailureKindString(t *testing.T) {
	assert.Equal(t, "transport failure", TransportFailure.String())
	assert.Equal(t, "service error", ServiceError.String())
	assert.Equal(t, "no route available", NoRouteAvailable.String())
	assert.Equal(t, "unknown failure", FailureKind(0).String())
}
