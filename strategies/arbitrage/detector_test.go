package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/solarb/jupiter"
	"github.com/michaelpento.lv/solarb/types"
	"github.com/michaelpento.lv/solarb/utils/metrics"
	"github.com/michaelpento.lv/solarb/utils/testutils"
)

// scriptedFetcher answers each call with the next scripted response
type scriptedFetcher struct {
	responses []scripted
	requests  []jupiter.QuoteRequest
}

type scripted struct {
	quote *types.Quote
	err   error
}

func (f *scriptedFetcher) FetchQuote(ctx context.Context, req jupiter.QuoteRequest) (*types.Quote, error) {
	f.requests = append(f.requests, req)
	if len(f.requests) > len(f.responses) {
		return nil, fmt.Errorf("unexpected request %d", len(f.requests))
	}
	r := f.responses[len(f.requests)-1]
	return r.quote, r.err
}

func quoteOut(in, out, outAmount string, legs ...types.RouteLeg) *types.Quote {
	return &types.Quote{
		InputMint:       in,
		OutputMint:      out,
		OutAmountNative: outAmount,
		Route:           legs,
		ContextSlot:     1,
	}
}

func noQuote() scripted {
	return scripted{err: fmt.Errorf("%w: test", jupiter.ErrNoQuote)}
}

func newTestDetector(t *testing.T, f QuoteFetcher) (*Detector, *metrics.ArbitrageMetrics) {
	t.Helper()
	m := metrics.NewArbitrageMetrics(prometheus.NewRegistry(), "test")
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := NewDetector(f, newCalculator(),
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(m),
		WithSlippageBps(75),
		WithMaxAttempts(2),
		WithClock(func() time.Time { return fixed }),
	)
	return d, m
}

func TestEvaluateCycle_InclusiveThreshold(t *testing.T) {
	f := &scriptedFetcher{responses: []scripted{
		{quote: quoteOut(sol.Address, usdc.Address, "150000000", testutils.FeeLeg("300000", usdc.Address))},
		{quote: quoteOut(usdc.Address, sol.Address, "1005000000", testutils.FeeLeg("200000", usdc.Address))},
	}}
	d, m := newTestDetector(t, f)

	opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, big.NewInt(1_000_000_000), opp.StartAmountNative)
	assert.Equal(t, big.NewInt(150_000_000), opp.MiddleAmountNative)
	assert.Equal(t, big.NewInt(1_005_000_000), opp.FinalAmountNative)
	assert.Equal(t, big.NewInt(5_000_000), opp.ProfitAmountNative)
	assert.True(t, decimal.RequireFromString("0.5").Equal(opp.ProfitPercent))
	assert.True(t, decimal.RequireFromString("0.5").Equal(opp.TotalFeesStable))
	assert.Equal(t, "0.005", opp.ProfitAmount().String())
	assert.Equal(t, "150", opp.MiddleAmount().String())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), opp.DetectedAt)
	assert.Same(t, f.responses[0].quote, opp.FirstQuote)
	assert.Same(t, f.responses[1].quote, opp.SecondQuote)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Cycles.WithLabelValues(metrics.ResultOpportunity)))
}

func TestEvaluateCycle_BelowThreshold(t *testing.T) {
	f := &scriptedFetcher{responses: []scripted{
		{quote: quoteOut(sol.Address, usdc.Address, "150000000")},
		{quote: quoteOut(usdc.Address, sol.Address, "1004900000")},
	}}
	d, m := newTestDetector(t, f)

	opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Nil(t, opp)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Cycles.WithLabelValues(metrics.ResultBelowThreshold)))
	assert.Equal(t, 0.49, testutil.ToFloat64(m.LastProfitPercent))
}

func TestEvaluateCycle_LossWithZeroThreshold(t *testing.T) {
	f := &scriptedFetcher{responses: []scripted{
		{quote: quoteOut(sol.Address, usdc.Address, "150000000")},
		{quote: quoteOut(usdc.Address, sol.Address, "999000000")},
	}}
	d, _ := newTestDetector(t, f)

	opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestEvaluateCycle_LegRequests(t *testing.T) {
	f := &scriptedFetcher{responses: []scripted{
		{quote: quoteOut(sol.Address, usdc.Address, "123456789")},
		{quote: quoteOut(usdc.Address, sol.Address, "2000000000")},
	}}
	d, _ := newTestDetector(t, f)

	_, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.RequireFromString("1.5"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, f.requests, 2)

	first, second := f.requests[0], f.requests[1]
	assert.Equal(t, sol.Address, first.InputMint)
	assert.Equal(t, usdc.Address, first.OutputMint)
	assert.Equal(t, "1500000000", first.Amount.String())
	assert.Equal(t, uint16(75), first.SlippageBps)
	assert.Equal(t, 2, first.MaxAttempts)

	assert.Equal(t, usdc.Address, second.InputMint)
	assert.Equal(t, sol.Address, second.OutputMint)
	assert.Equal(t, "123456789", second.Amount.String())
}

func TestEvaluateCycle_NoQuote(t *testing.T) {
	t.Run("first leg", func(t *testing.T) {
		f := &scriptedFetcher{responses: []scripted{noQuote()}}
		d, m := newTestDetector(t, f)

		opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.Zero)
		require.NoError(t, err)
		assert.Nil(t, opp)
		assert.Len(t, f.requests, 1)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Cycles.WithLabelValues(metrics.ResultNoQuote)))
	})

	t.Run("second leg", func(t *testing.T) {
		f := &scriptedFetcher{responses: []scripted{
			{quote: quoteOut(sol.Address, usdc.Address, "150000000")},
			noQuote(),
		}}
		d, _ := newTestDetector(t, f)

		opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.Zero)
		require.NoError(t, err)
		assert.Nil(t, opp)
		assert.Len(t, f.requests, 2)
	})

	t.Run("malformed middle amount", func(t *testing.T) {
		f := &scriptedFetcher{responses: []scripted{
			{quote: quoteOut(sol.Address, usdc.Address, "abc")},
		}}
		d, _ := newTestDetector(t, f)

		opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.Zero)
		require.NoError(t, err)
		assert.Nil(t, opp)
		assert.Len(t, f.requests, 1)
	})

	t.Run("zero middle amount", func(t *testing.T) {
		f := &scriptedFetcher{responses: []scripted{
			{quote: quoteOut(sol.Address, usdc.Address, "0")},
		}}
		d, _ := newTestDetector(t, f)

		opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.Zero)
		require.NoError(t, err)
		assert.Nil(t, opp)
		assert.Len(t, f.requests, 1)
	})
}

func TestEvaluateCycle_FetcherError(t *testing.T) {
	boom := errors.New("boom")
	f := &scriptedFetcher{responses: []scripted{{err: boom}}}
	d, _ := newTestDetector(t, f)

	opp, err := d.EvaluateCycle(context.Background(), sol, usdc, decimal.NewFromInt(1), decimal.Zero)
	assert.Nil(t, opp)
	assert.ErrorIs(t, err, boom)
}

func TestEvaluateCycle_InvalidCycle(t *testing.T) {
	tests := []struct {
		name   string
		start  types.TokenInfo
		middle types.TokenInfo
		amount decimal.Decimal
		min    decimal.Decimal
	}{
		{"zero amount", sol, usdc, decimal.Zero, decimal.Zero},
		{"negative amount", sol, usdc, decimal.NewFromInt(-1), decimal.Zero},
		{"negative threshold", sol, usdc, decimal.NewFromInt(1), decimal.NewFromInt(-1)},
		{"below one native unit", sol, usdc, decimal.RequireFromString("0.0000000001"), decimal.Zero},
		{"same token", sol, sol, decimal.NewFromInt(1), decimal.Zero},
		{"missing address", types.TokenInfo{Symbol: "X"}, usdc, decimal.NewFromInt(1), decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{}
			d, _ := newTestDetector(t, f)

			_, err := d.EvaluateCycle(context.Background(), tt.start, tt.middle, tt.amount, tt.min)
			assert.ErrorIs(t, err, ErrInvalidCycle)
			assert.Empty(t, f.requests)
		})
	}
}

func TestNewDetectorDefaults(t *testing.T) {
	d := NewDetector(&scriptedFetcher{}, nil)
	assert.Equal(t, uint16(jupiter.DefaultSlippageBps), d.slippageBps)
	assert.Equal(t, jupiter.DefaultMaxAttempts, d.maxAttempts)
	assert.NotNil(t, d.Fees())
	assert.NotNil(t, d.logger)
}
