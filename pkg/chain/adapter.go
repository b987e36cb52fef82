package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stellar-swap/pkg/escrow"
)

var (
	// ErrNetworkFailure marks transient transport or chain-availability
	// faults. Callers retry these with backoff.
	ErrNetworkFailure = errors.New("chain network failure")

	// ErrInsufficientFunds is fatal for the current attempt and surfaced to
	// the caller instead of being retried blindly.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// EscrowParams describes the escrow a caller wants created. Windows are
// fixed before submission and never mutated afterwards. SecurityDeposit is
// posted by the creator in the chain's native unit and returned to whoever
// finalizes the escrow; nil means no deposit.
type EscrowParams struct {
	Recipient       string
	Token           string
	Amount          *big.Int
	Commitment      common.Hash
	Windows         escrow.Windows
	SecurityDeposit *big.Int
	PartialFill     bool
	TotalParts      int
}

// Deposit returns the security deposit, treating nil as zero.
func (p EscrowParams) Deposit() *big.Int {
	if p.SecurityDeposit == nil {
		return big.NewInt(0)
	}
	return p.SecurityDeposit
}

// Adapter is the capability surface one chain exposes to the coordinator:
// create an escrow, finalize it one way or the other, and read it back.
// Every call may block on network latency and block confirmation, so all
// take a context. Implementations are bound to a single funded account on
// their chain; the contract on the far side is the final arbiter of every
// transition.
type Adapter interface {
	// CreateEscrow submits the escrow-creation transaction and returns the
	// new escrow's address once the transaction has been accepted.
	CreateEscrow(ctx context.Context, params EscrowParams) (string, error)

	// AwaitConfirmation blocks until the escrow at address is confirmed and
	// readable, or the context expires.
	AwaitConfirmation(ctx context.Context, address string) error

	// Withdraw reveals the secret against a single-fill escrow.
	Withdraw(ctx context.Context, address string, secret []byte) error

	// WithdrawWithProof reveals one leaf secret of a partial-fill escrow
	// together with its Merkle inclusion proof.
	WithdrawWithProof(ctx context.Context, address string, secret []byte, proof []common.Hash, leafIndex int) error

	// Cancel returns the escrowed funds to the creator.
	Cancel(ctx context.Context, address string) error

	// Rescue sweeps a stuck escrow after the rescue delay has elapsed past
	// the public cancellation window.
	Rescue(ctx context.Context, address string) error

	// ReadEscrow returns the current on-chain snapshot of the escrow.
	ReadEscrow(ctx context.Context, address string) (*escrow.Escrow, error)
}
