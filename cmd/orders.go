package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stellar-swap/config"
	"stellar-swap/pkg/order"
)

var filterStatus string

var ordersCmd = &cobra.Command{
	Use:     "orders",
	Aliases: []string{"list", "ls"},
	Short:   "List stored swap orders",
	Long: `List the orders in the local store, newest first.

Examples:
  stellar-swap orders
  stellar-swap orders --status escrowed
  stellar-swap orders show 0x1234...abcd`,
	Run: runOrders,
}

var ordersShowCmd = &cobra.Command{
	Use:   "show <order-id>",
	Short: "Show one order in full",
	Args:  cobra.ExactArgs(1),
	Run:   runOrdersShow,
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersShowCmd)

	ordersCmd.Flags().StringVar(&filterStatus, "status", "", "Filter by status (created, submitted, escrowed, completed, cancelled, failed)")
}

func runOrders(cmd *cobra.Command, args []string) {
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

	var orders []*order.Order
	if filterStatus != "" {
		orders = store.ListByStatus(order.Status(filterStatus))
	} else {
		orders = store.List()
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Created.After(orders[j].Created)
	})

	if jsonOutput {
		summaries := make([]*order.Summary, 0, len(orders))
		for _, ord := range orders {
			summaries = append(summaries, ord.ToSummary())
		}
		jsonData, _ := json.MarshalIndent(summaries, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(orders) == 0 {
		fmt.Println("\nNo orders found.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                                    ORDERS")
	fmt.Println(strings.Repeat("=", 90))

	for _, ord := range orders {
		fill := ""
		if ord.PartialFill {
			fill = fmt.Sprintf(" (%d parts)", ord.Partial.Parts())
		}
		fmt.Printf("\n  %s\n", color.CyanString(ord.ID.Hex()))
		fmt.Printf("    %s %s on %s -> %s %s on %s%s\n",
			ord.SourceAmount, color.YellowString(ord.SourceToken), ord.SourceChain,
			ord.DestAmount, color.YellowString(ord.DestToken), ord.DestChain, fill)
		fmt.Printf("    %s  created %s\n",
			coloredOrderStatus(ord.Status), ord.Created.Format("2006-01-02 15:04:05"))
	}

	fmt.Printf("\n%s\n\nTotal: %d orders\n\n", strings.Repeat("=", 90), len(orders))
}

func runOrdersShow(cmd *cobra.Command, args []string) {
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

	ord, err := store.Get(common.HexToHash(args[0]))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		// The full order carries secret material; only summaries leave
		// through JSON output.
		jsonData, _ := json.MarshalIndent(ord.ToSummary(), "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayOrder(ord)
	fmt.Printf("  Status:            %s\n", coloredOrderStatus(ord.Status))
	if ord.SourceEscrowAddr != "" {
		fmt.Printf("  Source escrow:     %s\n", color.CyanString(ord.SourceEscrowAddr))
	}
	if ord.DestEscrowAddr != "" {
		fmt.Printf("  Dest escrow:       %s\n", color.CyanString(ord.DestEscrowAddr))
	}
	if len(ord.FilledParts) > 0 {
		fmt.Printf("  Filled parts:      %v (total %s)\n", ord.FilledParts, ord.FilledAmountTotal)
	}
	if ord.ErrorMessage != "" {
		fmt.Printf("  Error:             %s\n", color.RedString(ord.ErrorMessage))
	}
	fmt.Println()
}

func coloredOrderStatus(status order.Status) string {
	text := strings.ToUpper(string(status))
	switch status {
	case order.StatusCompleted:
		return color.GreenString(text)
	case order.StatusCreated, order.StatusSubmitted, order.StatusEscrowed:
		return color.YellowString(text)
	case order.StatusFailed:
		return color.RedString(text)
	case order.StatusCancelled:
		return color.MagentaString(text)
	default:
		return text
	}
}
