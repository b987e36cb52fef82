package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stellar-swap/config"
	"stellar-swap/pkg/chain"
	"stellar-swap/pkg/escrow"
	"stellar-swap/pkg/order"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <order-id>",
	Short: "Check the status of an order and its escrows",
	Long: `Show an order's lifecycle status and, for each escrow it created, the
current on-chain state and window phase.

Examples:
  stellar-swap status 0x1234...abcd
  stellar-swap status 0x1234...abcd --watch
  stellar-swap status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	id := common.HexToHash(args[0])
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	chains := chain.NewManager(cfg)

	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}

		fmt.Printf("\nWatching order %s\n", color.CyanString(id.Hex()))
		fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

		ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
		defer ticker.Stop()

		checkOrderStatus(store, chains, id, false)
		for range ticker.C {
			checkOrderStatus(store, chains, id, false)
		}
		return
	}

	checkOrderStatus(store, chains, id, jsonOutput)
}

func checkOrderStatus(store *order.Store, chains *chain.Manager, id common.Hash, jsonOutput bool) {
	ord, err := store.Get(id)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Reading escrow state..."
		s.Start()
	}

	dest := readEscrowState(chains, ord.DestChain, ord.DestEscrowAddr)
	source := readEscrowState(chains, ord.SourceChain, ord.SourceEscrowAddr)

	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		output := map[string]interface{}{
			"order":         ord.ToSummary(),
			"source_escrow": source,
			"dest_escrow":   dest,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ORDER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Order ID:   %s\n", color.CyanString(ord.ID.Hex()))
	fmt.Printf("  Status:     %s\n", coloredOrderStatus(ord.Status))
	fmt.Printf("  Swap:       %s %s on %s -> %s %s on %s\n",
		ord.SourceAmount, ord.SourceToken, ord.SourceChain,
		ord.DestAmount, ord.DestToken, ord.DestChain)

	displayEscrowState("Destination escrow", ord.DestEscrowAddr, dest)
	displayEscrowState("Source escrow", ord.SourceEscrowAddr, source)

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func readEscrowState(chains *chain.Manager, chainName, address string) *escrow.Escrow {
	if address == "" {
		return nil
	}

	adapter, err := chains.AdapterFor(chainName)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snapshot, err := adapter.ReadEscrow(ctx, address)
	if err != nil {
		return nil
	}
	return snapshot
}

func displayEscrowState(label, address string, snapshot *escrow.Escrow) {
	if address == "" {
		return
	}

	fmt.Printf("\n  %s: %s\n", label, color.CyanString(address))
	if snapshot == nil {
		fmt.Printf("    (unreadable)\n")
		return
	}

	phase := snapshot.Windows.PhaseAt(time.Now().Unix())
	fmt.Printf("    State:  %s\n", coloredEscrowState(snapshot.State))
	fmt.Printf("    Phase:  %s\n", phase)
	if snapshot.PartialFill {
		fmt.Printf("    Fills:  %d of %d leaves consumed\n", len(snapshot.ConsumedLeaves), snapshot.TotalParts)
	}
}

func coloredEscrowState(state escrow.State) string {
	text := strings.ToUpper(string(state))
	switch state {
	case escrow.StateWithdrawn:
		return color.GreenString(text)
	case escrow.StateCancelled:
		return color.MagentaString(text)
	default:
		return color.YellowString(text)
	}
}
