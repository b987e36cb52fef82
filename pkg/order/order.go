package order

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stellar-swap/pkg/commitment"
	"stellar-swap/pkg/escrow"
	"stellar-swap/pkg/types"
)

// Status defines the current state of an order's swap attempt.
type Status string

const (
	StatusCreated   Status = "created"   // Commitment generated, order stored locally
	StatusSubmitted Status = "submitted" // Announced to the relay
	StatusEscrowed  Status = "escrowed"  // Destination escrow confirmed on-chain
	StatusCompleted Status = "completed" // Both legs withdrawn
	StatusCancelled Status = "cancelled" // Recovered via the cancellation path
	StatusFailed    Status = "failed"    // Fatal error before any escrow reached terminal state
)

// Terminal reports whether the order has finished its lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Order represents one swap intent. It is created once by the buyer at
// commitment time and immutable afterwards except for Status; the secrets it
// carries never leave the local store.
type Order struct {
	// Identity
	ID      common.Hash `json:"id"`
	Buyer   string      `json:"buyer"`
	Nonce   uint64      `json:"nonce"`
	Created time.Time   `json:"created"`

	// Swap parameters
	SourceChain  string   `json:"source_chain"`
	DestChain    string   `json:"dest_chain"`
	SourceToken  string   `json:"source_token"`
	DestToken    string   `json:"dest_token"`
	SourceAmount *big.Int `json:"source_amount"`
	DestAmount   *big.Int `json:"dest_amount"`

	// Commitment material
	Commitment  common.Hash                   `json:"commitment"`
	Secret      *commitment.Secret            `json:"secret,omitempty"`
	Partial     *commitment.PartialCommitment `json:"partial,omitempty"`
	PartialFill bool                          `json:"partial_fill"`

	// Source escrow windows agreed at creation time
	Windows escrow.Windows `json:"windows"`

	// Lifecycle tracking
	Status            Status `json:"status"`
	SourceEscrowAddr  string `json:"source_escrow_addr,omitempty"`
	DestEscrowAddr    string `json:"dest_escrow_addr,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	FilledParts       []int  `json:"filled_parts,omitempty"`
	FilledAmountTotal string `json:"filled_amount_total,omitempty"`
}

// Validate checks that the order is well-formed enough to act on: amounts
// positive, commitment present, windows ordered, and the commitment variant
// consistent with the partial-fill flag.
func (o *Order) Validate() error {
	if o.Buyer == "" {
		return fmt.Errorf("buyer address is required")
	}
	if o.SourceChain == "" || o.DestChain == "" {
		return fmt.Errorf("source and destination chains are required")
	}
	if o.SourceToken == "" || o.DestToken == "" {
		return fmt.Errorf("source and destination tokens are required")
	}
	if o.SourceAmount == nil || o.SourceAmount.Sign() <= 0 {
		return fmt.Errorf("source amount must be greater than 0")
	}
	if o.DestAmount == nil || o.DestAmount.Sign() <= 0 {
		return fmt.Errorf("destination amount must be greater than 0")
	}
	if o.Commitment == (common.Hash{}) {
		return fmt.Errorf("commitment is required")
	}
	if o.PartialFill {
		if o.Partial == nil || o.Partial.Parts() < 2 {
			return fmt.Errorf("partial fill order requires a multi-secret commitment")
		}
		if o.Partial.Root != o.Commitment {
			return fmt.Errorf("commitment does not match merkle root")
		}
	} else {
		if o.Secret == nil {
			return fmt.Errorf("single fill order requires a secret")
		}
		if o.Secret.Hash() != o.Commitment {
			return fmt.Errorf("commitment does not match secret hash")
		}
	}
	if err := o.Windows.Validate(); err != nil {
		return err
	}
	return nil
}

// ToSubmissionRequest returns the swap parameters in the shape the pricer
// quotes.
func (o *Order) ToSubmissionRequest() types.SwapRequest {
	return types.SwapRequest{
		Amount:      o.SourceAmount.String(),
		SourceToken: o.SourceToken,
		DestToken:   o.DestToken,
		SourceChain: o.SourceChain,
		DestChain:   o.DestChain,
		BuyerAddr:   o.Buyer,
		Parts:       o.parts(),
	}
}

func (o *Order) parts() int {
	if o.Partial != nil {
		return o.Partial.Parts()
	}
	return 0
}

// ToSubmission builds the relay payload for this order. Only the economic
// terms go out; the commitment, secrets, and windows stay local.
func (o *Order) ToSubmission(registry *Registry, marketPrice string, slippage int) (*types.OrderSubmission, error) {
	srcChainID, err := registry.ChainID(o.SourceChain)
	if err != nil {
		return nil, err
	}
	dstChainID, err := registry.ChainID(o.DestChain)
	if err != nil {
		return nil, err
	}
	srcToken, err := registry.TokenID(o.SourceChain, o.SourceToken)
	if err != nil {
		return nil, err
	}
	dstToken, err := registry.TokenID(o.DestChain, o.DestToken)
	if err != nil {
		return nil, err
	}

	return &types.OrderSubmission{
		OrderID:      o.ID.Hex(),
		BuyerAddress: o.Buyer,
		SrcChainID:   srcChainID,
		DstChainID:   dstChainID,
		SrcToken:     srcToken,
		DstToken:     dstToken,
		SrcAmount:    o.SourceAmount.String(),
		DstAmount:    o.DestAmount.String(),
		MarketPrice:  marketPrice,
		Slippage:     slippage,
	}, nil
}

// Summary provides a simplified view of an order for listing.
type Summary struct {
	ID           common.Hash `json:"id"`
	SourceChain  string      `json:"source_chain"`
	DestChain    string      `json:"dest_chain"`
	SourceToken  string      `json:"source_token"`
	DestToken    string      `json:"dest_token"`
	SourceAmount *big.Int    `json:"source_amount"`
	DestAmount   *big.Int    `json:"dest_amount"`
	PartialFill  bool        `json:"partial_fill"`
	Status       Status      `json:"status"`
	Created      time.Time   `json:"created"`
}

// ToSummary converts an Order to a Summary.
func (o *Order) ToSummary() *Summary {
	return &Summary{
		ID:           o.ID,
		SourceChain:  o.SourceChain,
		DestChain:    o.DestChain,
		SourceToken:  o.SourceToken,
		DestToken:    o.DestToken,
		SourceAmount: o.SourceAmount,
		DestAmount:   o.DestAmount,
		PartialFill:  o.PartialFill,
		Status:       o.Status,
		Created:      o.Created,
	}
}
