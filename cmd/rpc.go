package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/config"
	"github.com/michaelpento.lv/solarb/solana"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/wallet"
)

var rpcFlags struct {
	cluster string
	address string
}

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Check connectivity to a Solana RPC node",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		ctx := cmd.Context()

		endpoint, err := cfg.RPCEndpoint()
		if cmd.Flags().Changed("cluster") {
			endpoint, err = config.ClusterEndpoint(rpcFlags.cluster)
		}
		if err != nil {
			return err
		}

		client := solana.NewRPCClient(endpoint, solana.WithLogger(log.Named("rpc")))
		log.Info("Solana RPC initialized", zap.String("endpoint", endpoint))

		t := tablewriter.NewWriter(cmd.OutOrStdout())
		t.SetHeader([]string{"Check", "Result"})
		t.SetAutoWrapText(false)
		t.SetAutoFormatHeaders(false)
		t.Append([]string{"Endpoint", endpoint})

		if !client.IsConnected(ctx) {
			t.Append([]string{"Connected", "no"})
			t.Render()
			return fmt.Errorf("cannot reach %s", endpoint)
		}
		t.Append([]string{"Connected", "yes"})

		if version, err := client.GetVersion(ctx); err == nil {
			t.Append([]string{"Node version", version})
		} else {
			log.Warn("getVersion failed", zap.Error(err))
		}
		if slot, err := client.GetSlot(ctx); err == nil {
			t.Append([]string{"Slot", fmt.Sprintf("%d", slot)})
		} else {
			log.Warn("getSlot failed", zap.Error(err))
		}
		if latency, err := client.Ping(ctx); err == nil {
			t.Append([]string{"Ping", latency.String()})
		}
		if hash, err := client.GetLatestBlockhash(ctx); err == nil {
			t.Append([]string{"Latest blockhash", hash})
		} else {
			log.Warn("getLatestBlockhash failed", zap.Error(err))
		}

		address := rpcFlags.address
		if address == "" {
			if k, err := wallet.Load(cfg.Solana.WalletPath); err == nil {
				address = k.PublicKey()
			}
		}
		if address != "" {
			balance, err := client.GetBalance(ctx, address)
			if err != nil {
				return fmt.Errorf("get balance: %w", err)
			}
			t.Append([]string{"Address", address})
			t.Append([]string{"Balance", balance.String() + " SOL"})
		}

		t.Append([]string{"Estimated tx fee", fmt.Sprintf("%d lamports (%s SOL)",
			solana.EstimatedTransactionFee, solana.LamportsToSOL(solana.EstimatedTransactionFee))})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rpcCmd)

	rpcCmd.Flags().StringVar(&rpcFlags.cluster, "cluster", "", "cluster to query: mainnet-beta, devnet, testnet or localnet")
	rpcCmd.Flags().StringVar(&rpcFlags.address, "address", "", "account to show the balance of (default is the saved wallet)")
}
