package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stellar-swap/config"
	"stellar-swap/pkg/order"
)

var rootCmd = &cobra.Command{
	Use:   "stellar-swap",
	Short: "A CLI for trust-minimized cross-chain swaps using hashed-timelock escrows",
	Long: `stellar-swap creates and resolves cross-chain token swaps between Stellar,
EVM, and Solana chains. Funds move through hashed-timelock escrows: the buyer
commits to a secret, both sides lock funds against the commitment, and
revealing the secret on one chain unlocks both legs. Large orders can be
split into Merkle-committed partial fills.

Examples:
  stellar-swap order 100000000 XLM on stellar to USDC on base --buyer GBUYER...
  stellar-swap resolve 0x1234...abcd
  stellar-swap orders
  stellar-swap status 0x1234...abcd
  stellar-swap tokens`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

// openStore loads the order store from the configured snapshot path.
func openStore(cfg *config.Config) (*order.Store, error) {
	return order.NewStore(cfg.StorePath)
}

// newLogger builds the coordinator logger honoring --verbose.
func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
