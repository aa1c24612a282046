package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/solarb/config"
	"github.com/michaelpento.lv/solarb/utils"
	"github.com/michaelpento.lv/solarb/wallet"
)

var walletPath string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the local keypair file",
}

var walletSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the secret key from " + config.EnvWalletSecret + " to the wallet file",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := config.GetRequiredEnv(config.EnvWalletSecret)
		if err != nil {
			return err
		}
		k, err := wallet.FromBase58(secret)
		if err != nil {
			return err
		}
		return saveWallet(cmd, k)
	},
}

var walletNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new keypair and save it to the wallet file",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := wallet.Generate()
		if err != nil {
			return err
		}
		return saveWallet(cmd, k)
	},
}

var walletShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the public key of the wallet file",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := wallet.Load(resolveWalletPath())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Public key: %s\n", k.PublicKey())
		return nil
	},
}

func saveWallet(cmd *cobra.Command, k *wallet.Keypair) error {
	path := resolveWalletPath()
	if err := wallet.Save(k, path); err != nil {
		return err
	}
	utils.GetLogger().Info("Wallet saved", zap.String("path", path), zap.String("public_key", k.PublicKey()))
	fmt.Fprintf(cmd.OutOrStdout(), "Public key: %s\nSaved to: %s\n", k.PublicKey(), path)
	return nil
}

func resolveWalletPath() string {
	if walletPath != "" {
		return walletPath
	}
	return cfg.Solana.WalletPath
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletSaveCmd, walletNewCmd, walletShowCmd)
	walletCmd.PersistentFlags().StringVar(&walletPath, "path", "", "wallet file (default is solana.wallet_path)")
}
