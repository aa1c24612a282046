package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/report"
	"github.com/michaelpento.lv/solarb/strategies/arbitrage"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/utils/metrics"
	"github.com/michaelpento.lv/solarb/utils/monitor"
)

var monitorFlags struct {
	interval    int
	iterations  int
	profit      float64
	amount      float64
	slippage    uint16
	retries     int
	start       string
	middle      string
	metricsAddr string
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Continuously check the configured cycle for arbitrage",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyMonitorFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runMonitor(cmd.Context(), cmd)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	f := monitorCmd.Flags()
	f.IntVarP(&monitorFlags.interval, "interval", "i", 5, "seconds between the starts of consecutive checks")
	f.IntVarP(&monitorFlags.iterations, "iterations", "n", 0, "number of checks to run (0 = until interrupted)")
	f.Float64VarP(&monitorFlags.profit, "profit", "p", 0.5, "minimum profit percentage")
	f.Float64VarP(&monitorFlags.amount, "amount", "a", 1, "start amount in human units of the start token")
	f.Uint16Var(&monitorFlags.slippage, "slippage", 50, "slippage tolerance in basis points")
	f.IntVar(&monitorFlags.retries, "retries", 3, "quote attempts per leg")
	f.StringVar(&monitorFlags.start, "start", "SOL", "start token symbol")
	f.StringVar(&monitorFlags.middle, "middle", "USDC", "middle token symbol")
	f.StringVar(&monitorFlags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
}

// applyMonitorFlags lets explicitly set flags override the loaded config
func applyMonitorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("interval") {
		cfg.Monitor.Interval = time.Duration(monitorFlags.interval) * time.Second
	}
	if f.Changed("iterations") {
		cfg.Monitor.MaxIterations = monitorFlags.iterations
	}
	if f.Changed("profit") {
		cfg.Monitor.MinProfitPercent = monitorFlags.profit
	}
	if f.Changed("amount") {
		cfg.Monitor.StartAmount = monitorFlags.amount
	}
	if f.Changed("slippage") {
		cfg.Jupiter.SlippageBps = monitorFlags.slippage
	}
	if f.Changed("retries") {
		cfg.Jupiter.MaxAttempts = monitorFlags.retries
	}
	if f.Changed("start") {
		cfg.Tokens.Start = monitorFlags.start
	}
	if f.Changed("middle") {
		cfg.Tokens.Middle = monitorFlags.middle
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = monitorFlags.metricsAddr
	}
}

func runMonitor(ctx context.Context, cmd *cobra.Command) error {
	log := utils.GetLogger()

	start, err := cfg.StartToken()
	if err != nil {
		return err
	}
	middle, err := cfg.MiddleToken()
	if err != nil {
		return err
	}
	fees, err := newFeeCalculator()
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	arbMetrics := metrics.NewArbitrageMetrics(reg, metrics.DefaultNamespace)

	detector := arbitrage.NewDetector(newQuoteClient(log, reg), fees,
		arbitrage.WithSlippageBps(cfg.Jupiter.SlippageBps),
		arbitrage.WithMaxAttempts(cfg.Jupiter.MaxAttempts),
		arbitrage.WithLogger(log.Named("arbitrage")),
		arbitrage.WithMetrics(arbMetrics),
	)

	loop, err := monitor.NewLoop(monitor.Config{
		Interval:         cfg.Monitor.Interval,
		MaxIterations:    cfg.Monitor.MaxIterations,
		StartToken:       start,
		MiddleToken:      middle,
		StartAmount:      cfg.StartAmount(),
		MinProfitPercent: cfg.MinProfitPercent(),
		HistorySize:      cfg.Monitor.HistorySize,
	}, detector,
		monitor.WithLogger(log.Named("monitor")),
		monitor.WithMetrics(arbMetrics),
	)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		stop := serveMetrics(log, cfg.Metrics.ListenAddr, reg)
		defer stop()
	}

	lc := loop.Config()
	printer := report.NewPrinter(cmd.OutOrStdout(), fees)
	printer.Banner(report.RunInfo{
		StartToken:       lc.StartToken,
		MiddleToken:      lc.MiddleToken,
		StartAmount:      lc.StartAmount,
		MinProfitPercent: lc.MinProfitPercent,
		Interval:         lc.Interval,
		MaxIterations:    lc.MaxIterations,
		SlippageBps:      cfg.Jupiter.SlippageBps,
		MaxAttempts:      cfg.Jupiter.MaxAttempts,
	})

	if err := loop.Run(ctx, printer.Opportunity); err != nil {
		return err
	}

	printer.Summary(loop.Iterations(), arbMetrics.Snapshot(), loop.History().Recent())
	return nil
}

// serveMetrics exposes reg on addr until the returned stop func is called
func serveMetrics(log *zap.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
}
