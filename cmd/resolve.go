package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stellar-swap/config"
	"stellar-swap/pkg/chain"
	"stellar-swap/pkg/resolver"
)

var (
	resolveTimeout int
	resolveCancel  bool
	resolveRescue  bool
	resolveParts   []string
	resolveDryRun  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <order-id>",
	Short: "Run the resolver workflow for an order",
	Long: `Drive an order through its escrow workflow: create the destination escrow,
wait for the withdrawal window, and finalize both legs. Partial-fill orders
stop after escrow creation; settle their leaves with --part.

With --cancel the order is recovered through the cancellation path instead.
With --rescue a stuck source escrow is swept once the rescue delay has
elapsed. With --dry-run all chains are replaced by a shared in-memory chain.

Examples:
  stellar-swap resolve 0x1234...abcd
  stellar-swap resolve 0x1234...abcd --part 0:3000000 --part 1:3000000
  stellar-swap resolve 0x1234...abcd --cancel
  stellar-swap resolve 0x1234...abcd --rescue
  stellar-swap resolve 0x1234...abcd --dry-run`,
	Args: cobra.ExactArgs(1),
	Run:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().IntVar(&resolveTimeout, "timeout", 3600, "Workflow timeout in seconds")
	resolveCmd.Flags().BoolVar(&resolveCancel, "cancel", false, "Recover the order through cancellation")
	resolveCmd.Flags().BoolVar(&resolveRescue, "rescue", false, "Sweep a stuck source escrow after the rescue delay")
	resolveCmd.Flags().StringArrayVar(&resolveParts, "part", nil, "Partial fill leaf as <index>:<amount> (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveDryRun, "dry-run", false, "Run against an in-memory chain")
}

func runResolve(cmd *cobra.Command, args []string) {
	id := common.HexToHash(args[0])
	verbose, _ := cmd.Flags().GetBool("verbose")

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
	if resolveDryRun {
		mem := chain.NewMemoryChain()
		mem.SetRescueDelay(cfg.RescueDelay)
		chains = chain.NewMemoryManager(cfg, mem)
	}

	coordinator := resolver.NewCoordinator(store, chains, cfg, newLogger(verbose))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(resolveTimeout)*time.Second)
	defer cancel()

	switch {
	case resolveCancel:
		err = coordinator.Cancel(ctx, id)
	case resolveRescue:
		err = coordinator.Rescue(ctx, id)
	case len(resolveParts) > 0:
		var parts []resolver.PartFill
		parts, err = parsePartFills(resolveParts)
		if err == nil {
			err = coordinator.WithdrawParts(ctx, id, parts)
		}
	default:
		err = coordinator.Execute(ctx, id)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ord, err := store.Get(id)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	color.Green("\nOrder %s is now %s\n", id.Hex(), ord.Status)
	if ord.DestEscrowAddr != "" {
		fmt.Printf("  Destination escrow: %s\n", color.CyanString(ord.DestEscrowAddr))
	}
	if len(ord.FilledParts) > 0 {
		fmt.Printf("  Filled parts:       %v (total %s)\n", ord.FilledParts, ord.FilledAmountTotal)
	}
	fmt.Println()
}

// parsePartFills parses repeated "<index>:<amount>" flags.
func parsePartFills(raw []string) ([]resolver.PartFill, error) {
	parts := make([]resolver.PartFill, 0, len(raw))
	for _, entry := range raw {
		fields := strings.SplitN(entry, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid part %q, expected <index>:<amount>", entry)
		}

		var index int
		if _, err := fmt.Sscanf(fields[0], "%d", &index); err != nil {
			return nil, fmt.Errorf("invalid part index %q: %w", fields[0], err)
		}

		amount, ok := new(big.Int).SetString(fields[1], 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("invalid part amount %q", fields[1])
		}

		parts = append(parts, resolver.PartFill{Index: index, Amount: amount})
	}
	return parts, nil
}
