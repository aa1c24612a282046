package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/types"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/utils/metrics"
)

// ErrAlreadyRunning is returned by Run while another Run is active
var ErrAlreadyRunning = errors.New("monitor loop already running")

// Evaluator evaluates one arbitrage cycle
type Evaluator interface {
	EvaluateCycle(ctx context.Context, start, middle types.TokenInfo, startAmountHuman, minProfitPercent decimal.Decimal) (*types.ArbitrageOpportunity, error)
}

// State is the phase the loop is currently in
type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateReporting
	StateWaiting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateReporting:
		return "reporting"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the loop parameters
type Config struct {
	// Interval is the nominal time between the starts of consecutive passes
	Interval time.Duration
	// MaxIterations stops the loop after that many passes; 0 runs until cancelled
	MaxIterations int

	StartToken       types.TokenInfo
	MiddleToken      types.TokenInfo
	StartAmount      decimal.Decimal
	MinProfitPercent decimal.Decimal

	HistorySize int
}

func (c Config) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max iterations must not be negative, got %d", c.MaxIterations)
	}
	return nil
}

// Loop drives an Evaluator on a fixed cadence.
//
// Each pass waits Interval minus the time the evaluation took, floored at
// zero. Cancellation is observed only between passes and during the wait: an
// evaluation that has started always runs to completion, so stopping can take
// up to one full evaluation.
type Loop struct {
	cfg       Config
	evaluator Evaluator
	history   *History
	logger    *zap.Logger
	metrics   *metrics.ArbitrageMetrics

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	running    atomic.Bool
	state      atomic.Int32
	iterations atomic.Int64
	failures   atomic.Int64
}

// Option configures Loop
type Option func(*Loop)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.ArbitrageMetrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithClock replaces the time source and the wait timer
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(l *Loop) {
		l.now = now
		l.after = after
	}
}

// NewLoop creates a monitor loop
func NewLoop(cfg Config, evaluator Evaluator, opts ...Option) (*Loop, error) {
	if evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor config: %w", err)
	}

	history, err := NewHistory(cfg.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("create history: %w", err)
	}

	l := &Loop{
		cfg:       cfg,
		evaluator: evaluator,
		history:   history,
		now:       time.Now,
		after:     time.After,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = utils.OrNop(l.logger)
	if l.metrics == nil {
		l.metrics = metrics.NewArbitrageMetrics(prometheus.NewRegistry(), metrics.DefaultNamespace)
	}
	return l, nil
}

// Run evaluates the configured cycle until ctx is cancelled or MaxIterations
// passes have completed, calling onOpportunity for every opportunity found.
// It returns nil on a normal stop.
func (l *Loop) Run(ctx context.Context, onOpportunity func(*types.ArbitrageOpportunity)) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)
	defer l.setState(StateStopped)

	l.iterations.Store(0)
	l.failures.Store(0)

	l.logger.Info("Monitor started",
		zap.String("start_token", l.cfg.StartToken.Symbol),
		zap.String("middle_token", l.cfg.MiddleToken.Symbol),
		zap.String("start_amount", l.cfg.StartAmount.String()),
		zap.String("min_profit_percent", l.cfg.MinProfitPercent.String()),
		zap.Duration("interval", l.cfg.Interval),
		zap.Int("max_iterations", l.cfg.MaxIterations))

	for {
		if ctx.Err() != nil {
			l.logger.Info("Monitor cancelled", zap.Int64("iterations", l.iterations.Load()))
			return nil
		}

		began := l.now()
		n := l.iterations.Add(1)
		l.runIteration(ctx, n, onOpportunity)
		l.metrics.Iterations.Inc()

		if l.cfg.MaxIterations > 0 && n >= int64(l.cfg.MaxIterations) {
			l.logger.Info("Monitor reached iteration limit", zap.Int64("iterations", n))
			return nil
		}
		if ctx.Err() != nil {
			l.logger.Info("Monitor cancelled", zap.Int64("iterations", n))
			return nil
		}

		wait := l.cfg.Interval - l.now().Sub(began)
		if wait < 0 {
			wait = 0
		}

		l.setState(StateWaiting)
		l.logger.Debug("Waiting for next iteration", zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			l.logger.Info("Monitor cancelled", zap.Int64("iterations", n))
			return nil
		case <-l.after(wait):
		}
	}
}

// runIteration performs one pass. Errors and panics end the pass only.
func (l *Loop) runIteration(ctx context.Context, n int64, onOpportunity func(*types.ArbitrageOpportunity)) {
	defer func() {
		if r := recover(); r != nil {
			l.failures.Add(1)
			l.metrics.IterationFailures.Inc()
			l.logger.Error("Iteration panicked",
				zap.Int64("iteration", n),
				zap.Any("panic", r))
		}
	}()

	l.setState(StateEvaluating)
	l.logger.Debug("Evaluating cycle", zap.Int64("iteration", n))

	opp, err := l.evaluator.EvaluateCycle(context.WithoutCancel(ctx),
		l.cfg.StartToken, l.cfg.MiddleToken, l.cfg.StartAmount, l.cfg.MinProfitPercent)
	if err != nil {
		l.failures.Add(1)
		l.metrics.IterationFailures.Inc()
		l.logger.Error("Iteration failed", zap.Int64("iteration", n), zap.Error(err))
		return
	}
	if opp == nil {
		return
	}

	l.history.Add(opp)
	if onOpportunity != nil {
		l.setState(StateReporting)
		onOpportunity(opp)
	}
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// State returns the current phase
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Iterations returns the number of passes started by the current or last run
func (l *Loop) Iterations() int64 {
	return l.iterations.Load()
}

// Failures returns the number of failed passes of the current or last run
func (l *Loop) Failures() int64 {
	return l.failures.Load()
}

// History returns the rolling window of detected opportunities
func (l *Loop) History() *History {
	return l.history
}

// Config returns the loop parameters
func (l *Loop) Config() Config {
	return l.cfg
}
