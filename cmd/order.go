package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stellar-swap/config"
	"stellar-swap/pkg/client"
	"stellar-swap/pkg/commitment"
	"stellar-swap/pkg/escrow"
	"stellar-swap/pkg/order"
	"stellar-swap/pkg/parser"
)

var (
	fromChain  string
	toChain    string
	buyerAddr  string
	destAmount string
	orderParts int
	noConfirm  bool
	submit     bool
)

var orderCmd = &cobra.Command{
	Use:   "order <amount> <source-token> on <chain> to <dest-token> on <chain>",
	Short: "Create a swap order and its secret commitment",
	Long: `Create a cross-chain swap order. This generates the secret material,
publishes only its commitment, derives the escrow time windows, and stores the
order locally. Amounts are in the token's smallest unit.

The secrets never leave the local order store. With --submit the order's
economic terms are announced to the resolver relay; the commitment and the
timing fields are not part of that payload.

Examples:
  # Single fill
  stellar-swap order 100000000 XLM on stellar to USDC on base --buyer GBUYER... --dest-amount 12000000

  # Partial fill split into 4 parts
  stellar-swap order 100000000 XLM on stellar to USDC on base --buyer GBUYER... --dest-amount 12000000 --parts 4

  # Create and announce to the relay
  stellar-swap order 100000000 XLM on stellar to USDC on base --buyer GBUYER... --dest-amount 12000000 --submit --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runOrder,
}

func init() {
	rootCmd.AddCommand(orderCmd)

	orderCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source blockchain (optional if given in the command)")
	orderCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination blockchain (optional if given in the command)")
	orderCmd.Flags().StringVar(&buyerAddr, "buyer", "", "Buyer address (REQUIRED - receives the destination tokens)")
	orderCmd.Flags().StringVar(&destAmount, "dest-amount", "", "Destination amount in smallest units (REQUIRED)")
	orderCmd.Flags().IntVar(&orderParts, "parts", 0, "Split the order into N Merkle-committed partial fills (N >= 2)")
	orderCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	orderCmd.Flags().BoolVar(&submit, "submit", false, "Announce the order to the resolver relay")
}

func runOrder(cmd *cobra.Command, args []string) {
	// Parse the command
	commandStr := strings.Join(args, " ")
	swapReq, err := parser.ParseSwapCommand(commandStr)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if fromChain != "" {
		swapReq.SourceChain = strings.ToLower(fromChain)
	}
	if toChain != "" {
		swapReq.DestChain = strings.ToLower(toChain)
	}
	swapReq.BuyerAddr = buyerAddr
	swapReq.Parts = orderParts

	if err := parser.ValidateSwapRequest(swapReq); err != nil {
		printError(err)
		os.Exit(1)
	}
	if swapReq.BuyerAddr == "" {
		printError(fmt.Errorf("buyer address is required. Use --buyer to specify where you want to receive the tokens"))
		os.Exit(1)
	}
	if destAmount == "" {
		printError(fmt.Errorf("destination amount is required. Use --dest-amount in the destination token's smallest units"))
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	registry := order.NewRegistry(cfg.ChainIDs(), cfg.TokenTables())
	if _, err := registry.TokenID(swapReq.SourceChain, swapReq.SourceToken); err != nil {
		printError(err)
		os.Exit(1)
	}
	if _, err := registry.TokenID(swapReq.DestChain, swapReq.DestToken); err != nil {
		printError(err)
		os.Exit(1)
	}

	srcAmount, ok := new(big.Int).SetString(swapReq.Amount, 10)
	if !ok || srcAmount.Sign() <= 0 {
		printError(fmt.Errorf("invalid source amount: %s (smallest units expected)", swapReq.Amount))
		os.Exit(1)
	}
	dstAmount, ok := new(big.Int).SetString(destAmount, 10)
	if !ok || dstAmount.Sign() <= 0 {
		printError(fmt.Errorf("invalid destination amount: %s (smallest units expected)", destAmount))
		os.Exit(1)
	}

	ord, err := buildOrder(cfg, swapReq.SourceChain, swapReq.DestChain, swapReq.SourceToken, swapReq.DestToken,
		swapReq.BuyerAddr, srcAmount, dstAmount, orderParts)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if err := store.Create(ord); err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(ord.ToSummary(), "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayOrder(ord)
	}

	if !submit {
		if !jsonOutput {
			fmt.Println("Order stored locally. Announce it to the relay with:")
			color.Cyan("  stellar-swap order ... --submit\n")
		}
		return
	}

	if !noConfirm && !jsonOutput {
		if !confirmSubmission() {
			fmt.Println("\nSubmission cancelled; order remains stored locally.")
			return
		}
	}

	if err := submitOrder(cfg, registry, store, ord, jsonOutput); err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		printSuccess("Order announced to the relay.")
		fmt.Println("Track it with:")
		color.Cyan("  stellar-swap status %s\n", ord.ID.Hex())
	}
}

// buildOrder generates the commitment material, lays out the source escrow
// windows from the configured offsets, and derives the order id.
func buildOrder(cfg *config.Config, srcChain, dstChain, srcToken, dstToken, buyer string,
	srcAmount, dstAmount *big.Int, parts int) (*order.Order, error) {

	now := time.Now()

	ord := &order.Order{
		Buyer:        buyer,
		Created:      now,
		SourceChain:  srcChain,
		DestChain:    dstChain,
		SourceToken:  strings.ToUpper(srcToken),
		DestToken:    strings.ToUpper(dstToken),
		SourceAmount: srcAmount,
		DestAmount:   dstAmount,
		Status:       order.StatusCreated,
		Windows: escrow.Windows{
			WithdrawalStart:         now.Unix() + cfg.Windows.WithdrawalDelay,
			PublicWithdrawalStart:   now.Unix() + cfg.Windows.PublicWithdrawalDelay,
			CancellationStart:       now.Unix() + cfg.Windows.CancellationDelay,
			PublicCancellationStart: now.Unix() + cfg.Windows.PublicCancellationDelay,
		},
	}

	if parts >= 2 {
		partial, err := commitment.GeneratePartial(parts)
		if err != nil {
			return nil, err
		}
		ord.Partial = partial
		ord.PartialFill = true
		ord.Commitment = partial.Root
	} else {
		secret, digest, err := commitment.GenerateSingle()
		if err != nil {
			return nil, err
		}
		ord.Secret = &secret
		ord.Commitment = digest
	}

	ord.Nonce = order.CreationNonce(now)
	ord.ID = order.ComputeID(ord.Commitment, buyer, srcAmount, ord.Nonce)

	if err := ord.Validate(); err != nil {
		return nil, err
	}
	return ord, nil
}

// submitOrder quotes the pair for the relay's market_price field and posts
// the order's economic terms.
func submitOrder(cfg *config.Config, registry *order.Registry, store *order.Store, ord *order.Order, jsonOutput bool) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching market price..."
		s.Start()
	}

	pricer := client.NewPricer(cfg.OneClickToken)
	priceReq := ord.ToSubmissionRequest()
	price, err := pricer.MarketPrice(&priceReq)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		return fmt.Errorf("failed to get market price: %w", err)
	}

	sub, err := ord.ToSubmission(registry, price.Price, cfg.Slippage)
	if err != nil {
		return err
	}

	if !jsonOutput {
		s.Suffix = " Submitting to relay..."
		s.Start()
	}

	relay := client.NewRelayClient(cfg.RelayURL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if ord.PartialFill {
		err = relay.SubmitPartialFill(ctx, sub)
	} else {
		err = relay.SubmitCreate(ctx, sub)
	}
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		return err
	}

	ord.Status = order.StatusSubmitted
	return store.Update(ord)
}

func displayOrder(ord *order.Order) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP ORDER")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Order ID:          %s\n", color.CyanString(ord.ID.Hex()))
	fmt.Printf("  From:              %s %s on %s\n", ord.SourceAmount, color.YellowString(ord.SourceToken), ord.SourceChain)
	fmt.Printf("  To:                %s %s on %s\n", ord.DestAmount, color.YellowString(ord.DestToken), ord.DestChain)
	fmt.Printf("  Commitment:        %s\n", color.HiBlackString(ord.Commitment.Hex()))
	if ord.PartialFill {
		fmt.Printf("  Partial Fill:      %d parts\n", ord.Partial.Parts())
	}
	fmt.Printf("  Withdrawal opens:  %s\n", time.Unix(ord.Windows.WithdrawalStart, 0).Format("2006-01-02 15:04:05"))
	fmt.Printf("  Cancellation at:   %s\n", time.Unix(ord.Windows.CancellationStart, 0).Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmSubmission() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nAnnounce this order to the relay? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
