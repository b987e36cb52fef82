package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stellar-swap/config"
	"stellar-swap/pkg/order"
)

var filterChain string

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens"},
	Short:   "List configured chains and tokens",
	Long: `List the chains and tokens this installation can swap between, as
configured in .stellar-swap.yaml.

Examples:
  stellar-swap tokens
  stellar-swap tokens --chain stellar`,
	Run: runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by blockchain")
}

func runTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	registry := order.NewRegistry(cfg.ChainIDs(), cfg.TokenTables())

	chains := registry.Chains()
	if filterChain != "" {
		chains = []string{strings.ToLower(filterChain)}
	}
	sort.Strings(chains)

	if jsonOutput {
		output := make(map[string][]string, len(chains))
		for _, chain := range chains {
			output[chain] = registry.Tokens(chain)
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(chains) == 0 {
		fmt.Println("\nNo chains configured. Add them to .stellar-swap.yaml.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      CONFIGURED TOKENS")
	fmt.Println(strings.Repeat("=", 70))

	total := 0
	for _, chain := range chains {
		chainID, err := registry.ChainID(chain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		color.Cyan("\n%s (chain id %d)", strings.ToUpper(chain), chainID)
		fmt.Println(strings.Repeat("-", 70))

		symbols := registry.Tokens(chain)
		sort.Strings(symbols)
		for _, symbol := range symbols {
			tokenID, _ := registry.TokenID(chain, symbol)
			if len(tokenID) > 50 {
				tokenID = tokenID[:47] + "..."
			}
			fmt.Printf("  %-10s  %s\n", color.YellowString(symbol), color.HiBlackString(tokenID))
			total++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", total, len(chains))
}
