package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/jupiter"
	"github.com/michaelpento.lv/solarb/types"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/utils/math"
	"github.com/michaelpento.lv/solarb/utils/metrics"
)

// ErrInvalidCycle is returned when the cycle parameters can never be evaluated
var ErrInvalidCycle = errors.New("invalid arbitrage cycle")

// QuoteFetcher is the quote source used by the detector
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, req jupiter.QuoteRequest) (*types.Quote, error)
}

// Detector evaluates start -> middle -> start round trips
type Detector struct {
	quotes      QuoteFetcher
	fees        *FeeCalculator
	slippageBps uint16
	maxAttempts int
	logger      *zap.Logger
	metrics     *metrics.ArbitrageMetrics
	now         func() time.Time
}

// DetectorOption configures Detector
type DetectorOption func(*Detector)

func WithSlippageBps(bps uint16) DetectorOption {
	return func(d *Detector) {
		d.slippageBps = bps
	}
}

func WithMaxAttempts(n int) DetectorOption {
	return func(d *Detector) {
		d.maxAttempts = n
	}
}

func WithLogger(logger *zap.Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.ArbitrageMetrics) DetectorOption {
	return func(d *Detector) {
		d.metrics = m
	}
}

// WithClock overrides the timestamp source for detected opportunities
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a new arbitrage detector
func NewDetector(quotes QuoteFetcher, fees *FeeCalculator, opts ...DetectorOption) *Detector {
	d := &Detector{
		quotes:      quotes,
		fees:        fees,
		slippageBps: jupiter.DefaultSlippageBps,
		maxAttempts: jupiter.DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = utils.OrNop(d.logger)
	if d.metrics == nil {
		d.metrics = metrics.NewArbitrageMetrics(prometheus.NewRegistry(), metrics.DefaultNamespace)
	}
	if d.fees == nil {
		d.fees = NewFeeCalculator(nil, nil)
	}
	return d
}

// Fees returns the calculator used to total route fees
func (d *Detector) Fees() *FeeCalculator {
	return d.fees
}

// EvaluateCycle quotes start -> middle and middle -> start and returns the
// opportunity when the profit percentage is at least minProfitPercent.
//
// A nil opportunity with a nil error means no opportunity: either a leg had
// no quote or the cycle fell below the threshold. Errors other than
// ErrInvalidCycle come from the quote source.
func (d *Detector) EvaluateCycle(ctx context.Context, start, middle types.TokenInfo, startAmountHuman, minProfitPercent decimal.Decimal) (*types.ArbitrageOpportunity, error) {
	if start.Address == "" || middle.Address == "" {
		return nil, fmt.Errorf("%w: token addresses are required", ErrInvalidCycle)
	}
	if start.Address == middle.Address {
		return nil, fmt.Errorf("%w: start and middle token are both %s", ErrInvalidCycle, start.Symbol)
	}
	if !startAmountHuman.IsPositive() {
		return nil, fmt.Errorf("%w: start amount must be positive, got %s", ErrInvalidCycle, startAmountHuman)
	}
	if minProfitPercent.IsNegative() {
		return nil, fmt.Errorf("%w: minimum profit must not be negative, got %s", ErrInvalidCycle, minProfitPercent)
	}

	startNative := math.ToNative(startAmountHuman, start.Decimals)
	if startNative.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s %s is below one native unit", ErrInvalidCycle, startAmountHuman, start.Symbol)
	}

	began := time.Now()
	defer func() {
		d.metrics.EvaluationTime.Observe(time.Since(began).Seconds())
	}()

	logger := d.logger.With(
		zap.String("cycle", fmt.Sprintf("%s -> %s -> %s", start.Symbol, middle.Symbol, start.Symbol)))

	first, middleNative, err := d.leg(ctx, logger, start, middle, startNative)
	if err != nil || first == nil {
		return nil, err
	}
	if middleNative.Sign() <= 0 {
		logger.Info("First leg returned a zero amount, skipping cycle")
		d.metrics.Cycles.WithLabelValues(metrics.ResultNoQuote).Inc()
		return nil, nil
	}

	second, finalNative, err := d.leg(ctx, logger, middle, start, middleNative)
	if err != nil || second == nil {
		return nil, err
	}

	profitNative := math.ProfitAmount(startNative, finalNative)
	profitPercent := math.ProfitPercent(startNative, finalNative)
	totalFees := d.fees.AggregateFees(first).Add(d.fees.AggregateFees(second))

	pf, _ := profitPercent.Float64()
	d.metrics.ProfitPercent.Observe(pf)
	d.metrics.LastProfitPercent.Set(pf)

	fields := []zap.Field{
		zap.String("start_amount", start.ToHuman(startNative).String()),
		zap.String("middle_amount", middle.ToHuman(middleNative).String()),
		zap.String("final_amount", start.ToHuman(finalNative).String()),
		zap.String("profit", start.ToHuman(profitNative).String()),
		zap.String("profit_percent", profitPercent.StringFixed(4)),
		zap.String("fees_stable", totalFees.String()),
	}

	if !math.MeetsThreshold(startNative, finalNative, minProfitPercent) {
		d.metrics.Cycles.WithLabelValues(metrics.ResultBelowThreshold).Inc()
		logger.Info("Cycle below profit threshold",
			append(fields, zap.String("min_profit_percent", minProfitPercent.String()))...)
		return nil, nil
	}

	d.metrics.Cycles.WithLabelValues(metrics.ResultOpportunity).Inc()
	logger.Info("Arbitrage opportunity detected", fields...)

	return &types.ArbitrageOpportunity{
		StartToken:         start,
		MiddleToken:        middle,
		StartAmountNative:  startNative,
		MiddleAmountNative: middleNative,
		FinalAmountNative:  finalNative,
		ProfitAmountNative: profitNative,
		ProfitPercent:      profitPercent,
		TotalFeesStable:    totalFees,
		FirstQuote:         first,
		SecondQuote:        second,
		DetectedAt:         d.now(),
	}, nil
}

// leg fetches one quote and parses its output amount. A nil quote with a nil
// error means the leg had no usable quote.
func (d *Detector) leg(ctx context.Context, logger *zap.Logger, in, out types.TokenInfo, amount *big.Int) (*types.Quote, *big.Int, error) {
	quote, err := d.quotes.FetchQuote(ctx, jupiter.QuoteRequest{
		InputMint:   in.Address,
		OutputMint:  out.Address,
		Amount:      amount,
		SlippageBps: d.slippageBps,
		MaxAttempts: d.maxAttempts,
	})
	if errors.Is(err, jupiter.ErrNoQuote) {
		logger.Info("No quote available, skipping cycle",
			zap.String("input", in.Symbol),
			zap.String("output", out.Symbol))
		d.metrics.Cycles.WithLabelValues(metrics.ResultNoQuote).Inc()
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("quote %s -> %s: %w", in.Symbol, out.Symbol, err)
	}

	outAmount, ok := quote.OutAmount()
	if !ok {
		logger.Info("Quote has no usable output amount, skipping cycle",
			zap.String("input", in.Symbol),
			zap.String("output", out.Symbol),
			zap.String("out_amount", quote.OutAmountNative))
		d.metrics.Cycles.WithLabelValues(metrics.ResultNoQuote).Inc()
		return nil, nil, nil
	}

	logger.Debug("Leg quoted",
		zap.String("input", in.Symbol),
		zap.String("output", out.Symbol),
		zap.String("in_amount", in.ToHuman(amount).String()),
		zap.String("out_amount", out.ToHuman(outAmount).String()),
		zap.Int("route_legs", len(quote.Route)))

	return quote, outAmount, nil
}
