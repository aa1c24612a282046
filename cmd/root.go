package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/config"
	"github.com/michaelpento.lv/solarb/jupiter"
	"github.com/michaelpento.lv/solarb/strategies/arbitrage"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/utils/metrics"
)

var (
	cfgFile string
	debug   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "solarb",
	Short: "Round-trip arbitrage detector for Solana swap quotes",
	Long: `solarb polls the Jupiter quote API for a start -> middle -> start token
cycle and reports round trips whose quoted profit meets a minimum percentage.
It only detects opportunities; it never signs or sends transactions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.CleanupLogger()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFile+" when present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if debug {
		loaded.Log.Debug = true
	}
	cfg = loaded

	utils.InitLoggerWithOptions(utils.LoggerOptions{
		Debug:       cfg.Log.Debug,
		OutputPaths: cfg.Log.OutputPaths,
	})
	return nil
}

// newQuoteClient builds the Jupiter client from the jupiter config section
func newQuoteClient(log *zap.Logger, reg prometheus.Registerer) *jupiter.Client {
	j := cfg.Jupiter
	return jupiter.NewClient(
		jupiter.WithQuoteURL(j.QuoteURL),
		jupiter.WithTimeout(j.RequestTimeout),
		jupiter.WithRetryDelay(j.RetryDelay),
		jupiter.WithRateLimit(j.RateLimit.RequestsPerSecond, j.RateLimit.BurstSize),
		jupiter.WithLogger(log.Named("jupiter")),
		jupiter.WithMetrics(metrics.NewQuoteMetrics(reg, metrics.DefaultNamespace)),
	)
}

// newFeeCalculator prices fees in the configured stable tokens
func newFeeCalculator() (*arbitrage.FeeCalculator, error) {
	stable, err := cfg.StableTokens()
	if err != nil {
		return nil, fmt.Errorf("resolve stable tokens: %w", err)
	}
	return arbitrage.NewFeeCalculator(stable, cfg.Tokens.Known), nil
}
