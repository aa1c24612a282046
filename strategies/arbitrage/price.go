package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/jupiter"
	"github.com/michaelpento.lv/solarb/types"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/utils/math"
)

// DefaultPriceHistory is the number of prices a PriceWatcher keeps
const DefaultPriceHistory = 10

// PricePoint is one observed exchange rate
type PricePoint struct {
	Iteration int
	Quote     *types.Quote
	// Price is the output received per one unit of input, in human units
	Price         decimal.Decimal
	HasPrevious   bool
	ChangePercent decimal.Decimal
	ObservedAt    time.Time
}

// PriceWatcher quotes a single pair and tracks how its price moves. It
// satisfies the monitor loop's evaluator so that a watch reuses the loop
// cadence; it never reports an opportunity.
type PriceWatcher struct {
	quotes      QuoteFetcher
	slippageBps uint16
	maxAttempts int
	size        int
	onPrice     func(PricePoint)
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.Mutex
	prices []PricePoint
	seen   int
}

// PriceWatcherOption configures PriceWatcher
type PriceWatcherOption func(*PriceWatcher)

func WithPriceSlippageBps(bps uint16) PriceWatcherOption {
	return func(w *PriceWatcher) {
		w.slippageBps = bps
	}
}

func WithPriceMaxAttempts(n int) PriceWatcherOption {
	return func(w *PriceWatcher) {
		w.maxAttempts = n
	}
}

// WithPriceHistory sets how many prices are kept; non-positive keeps the default
func WithPriceHistory(n int) PriceWatcherOption {
	return func(w *PriceWatcher) {
		if n > 0 {
			w.size = n
		}
	}
}

func WithPriceLogger(logger *zap.Logger) PriceWatcherOption {
	return func(w *PriceWatcher) {
		w.logger = logger
	}
}

func WithPriceClock(now func() time.Time) PriceWatcherOption {
	return func(w *PriceWatcher) {
		w.now = now
	}
}

// NewPriceWatcher creates a watcher calling onPrice for every quoted price
func NewPriceWatcher(quotes QuoteFetcher, onPrice func(PricePoint), opts ...PriceWatcherOption) *PriceWatcher {
	w := &PriceWatcher{
		quotes:      quotes,
		slippageBps: jupiter.DefaultSlippageBps,
		maxAttempts: jupiter.DefaultMaxAttempts,
		size:        DefaultPriceHistory,
		onPrice:     onPrice,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// EvaluateCycle quotes in -> out for amountHuman and records the price.
// The threshold is ignored and the result is always nil.
func (w *PriceWatcher) EvaluateCycle(ctx context.Context, in, out types.TokenInfo, amountHuman, _ decimal.Decimal) (*types.ArbitrageOpportunity, error) {
	native := math.ToNative(amountHuman, in.Decimals)
	if native.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %s %s is below one native unit", ErrInvalidCycle, amountHuman, in.Symbol)
	}

	q, err := w.quotes.FetchQuote(ctx, jupiter.QuoteRequest{
		InputMint:   in.Address,
		OutputMint:  out.Address,
		Amount:      native,
		SlippageBps: w.slippageBps,
		MaxAttempts: w.maxAttempts,
	})
	if errors.Is(err, jupiter.ErrNoQuote) {
		w.logger.Warn("No price available", zap.String("pair", in.Symbol+"/"+out.Symbol))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quote %s -> %s: %w", in.Symbol, out.Symbol, err)
	}

	outNative, ok := q.OutAmount()
	if !ok || outNative.Sign() <= 0 {
		w.logger.Warn("Quote has no usable output amount", zap.String("out_amount", q.OutAmountNative))
		return nil, nil
	}

	p := w.record(q, out.ToHuman(outNative).DivRound(in.ToHuman(native), int32(out.Decimals)))
	w.logger.Info("Price observed",
		zap.String("pair", in.Symbol+"/"+out.Symbol),
		zap.String("price", p.Price.String()),
		zap.String("change_percent", p.ChangePercent.String()))

	if w.onPrice != nil {
		w.onPrice(p)
	}
	return nil, nil
}

func (w *PriceWatcher) record(q *types.Quote, price decimal.Decimal) PricePoint {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seen++
	p := PricePoint{Iteration: w.seen, Quote: q, Price: price, ObservedAt: w.now()}
	if n := len(w.prices); n > 0 {
		prev := w.prices[n-1].Price
		p.HasPrevious = true
		if !prev.IsZero() {
			p.ChangePercent = price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
		}
	}

	w.prices = append(w.prices, p)
	if len(w.prices) > w.size {
		w.prices = w.prices[len(w.prices)-w.size:]
	}
	return p
}

// Prices returns the kept prices, oldest first
func (w *PriceWatcher) Prices() []PricePoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]PricePoint(nil), w.prices...)
}
