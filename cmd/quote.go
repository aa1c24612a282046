package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/jupiter"
	"github.com/michaelpento.lv/solarb/report"
	"github.com/michaelpento.lv/solarb/strategies/arbitrage"
	"github.com/michaelpento.lv/solarb/types"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/utils/math"
	"github.com/michaelpento.lv/solarb/utils/metrics"
	"github.com/michaelpento.lv/solarb/utils/monitor"
)

var quoteFlags struct {
	in         string
	out        string
	amount     float64
	slippage   uint16
	retries    int
	watch      bool
	interval   time.Duration
	iterations int
	history    int
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Fetch and display a swap quote, or watch its price with --watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		in, err := cfg.Token(quoteFlags.in)
		if err != nil {
			return err
		}
		out, err := cfg.Token(quoteFlags.out)
		if err != nil {
			return err
		}
		amount := decimal.NewFromFloat(quoteFlags.amount)
		native := math.ToNative(amount, in.Decimals)
		if native.Sign() <= 0 {
			return fmt.Errorf("amount %s %s is below one native unit", amount, in.Symbol)
		}

		fees, err := newFeeCalculator()
		if err != nil {
			return err
		}
		if quoteFlags.watch {
			return runPriceWatch(cmd, log, in, out, amount, fees)
		}

		client := newQuoteClient(log, metrics.NewRegistry())
		started := time.Now()
		quote, err := client.FetchQuote(cmd.Context(), jupiter.QuoteRequest{
			InputMint:   in.Address,
			OutputMint:  out.Address,
			Amount:      native,
			SlippageBps: quoteFlags.slippage,
			MaxAttempts: quoteFlags.retries,
		})
		if errors.Is(err, jupiter.ErrNoQuote) {
			fmt.Fprintf(cmd.OutOrStdout(), "No quote available for %s -> %s\n", in.Symbol, out.Symbol)
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("Quote fetched", zap.Duration("elapsed", time.Since(started)))

		report.NewPrinter(cmd.OutOrStdout(), fees).Quote(quote, in, out)
		fmt.Fprintf(cmd.OutOrStdout(), "Request took %s\n", time.Since(started).Round(time.Millisecond))
		return nil
	},
}

// runPriceWatch quotes in -> out on the monitor loop cadence and prints
// every price with its change against the previous one
func runPriceWatch(cmd *cobra.Command, log *zap.Logger, in, out types.TokenInfo, amount decimal.Decimal, fees *arbitrage.FeeCalculator) error {
	reg := metrics.NewRegistry()
	printer := report.NewPrinter(cmd.OutOrStdout(), fees)

	watcher := arbitrage.NewPriceWatcher(newQuoteClient(log, reg),
		func(pt arbitrage.PricePoint) { printer.Price(pt, in, out) },
		arbitrage.WithPriceSlippageBps(quoteFlags.slippage),
		arbitrage.WithPriceMaxAttempts(quoteFlags.retries),
		arbitrage.WithPriceHistory(quoteFlags.history),
		arbitrage.WithPriceLogger(log.Named("price")),
	)

	loop, err := monitor.NewLoop(monitor.Config{
		Interval:      quoteFlags.interval,
		MaxIterations: quoteFlags.iterations,
		StartToken:    in,
		MiddleToken:   out,
		StartAmount:   amount,
		HistorySize:   quoteFlags.history,
	}, watcher,
		monitor.WithLogger(log.Named("monitor")),
		monitor.WithMetrics(metrics.NewArbitrageMetrics(reg, metrics.DefaultNamespace)),
	)
	if err != nil {
		return err
	}

	lc := loop.Config()
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s %s -> %s every %s\n", lc.StartAmount, lc.StartToken.Symbol, lc.MiddleToken.Symbol, lc.Interval)
	if err := loop.Run(cmd.Context(), nil); err != nil {
		return err
	}

	printer.Prices(watcher.Prices(), in, out)
	return nil
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	f := quoteCmd.Flags()
	f.StringVar(&quoteFlags.in, "in", "SOL", "input token symbol")
	f.StringVar(&quoteFlags.out, "out", "USDC", "output token symbol")
	f.Float64VarP(&quoteFlags.amount, "amount", "a", 1, "input amount in human units")
	f.Uint16Var(&quoteFlags.slippage, "slippage", jupiter.DefaultSlippageBps, "slippage tolerance in basis points")
	f.IntVar(&quoteFlags.retries, "retries", jupiter.DefaultMaxAttempts, "quote attempts")
	f.BoolVarP(&quoteFlags.watch, "watch", "w", false, "keep quoting and print price changes")
	f.DurationVar(&quoteFlags.interval, "interval", 5*time.Second, "time between the starts of consecutive quotes in watch mode")
	f.IntVarP(&quoteFlags.iterations, "iterations", "n", 0, "number of quotes in watch mode (0 = until interrupted)")
	f.IntVar(&quoteFlags.history, "history", arbitrage.DefaultPriceHistory, "number of prices kept in watch mode")
}
