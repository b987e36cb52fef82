package chain

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stellar-swap/pkg/commitment"
	"stellar-swap/pkg/escrow"
)

// MemoryChain is an in-process chain implementing the full escrow contract
// semantics: window-gated withdrawals and cancellations, terminal-state
// rejection, partial-fill leaf consumption, and the post-deadline rescue
// path. It backs coordinator tests and the CLI's --dry-run mode.
type MemoryChain struct {
	mu          sync.Mutex
	escrows     map[string]*memEscrow
	counter     int
	nowFunc     func() int64
	rescueDelay int64
}

type memEscrow struct {
	escrow.Escrow
	consumed map[int]bool
}

// NewMemoryChain creates an empty chain running on the wall clock.
func NewMemoryChain() *MemoryChain {
	return &MemoryChain{
		escrows:     make(map[string]*memEscrow),
		nowFunc:     func() int64 { return time.Now().Unix() },
		rescueDelay: int64(7 * 24 * time.Hour / time.Second),
	}
}

// SetNowFunc overrides the chain's clock, so tests can walk escrows through
// their phases deterministically.
func (mc *MemoryChain) SetNowFunc(now func() int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.nowFunc = now
}

// SetRescueDelay overrides the delay after public cancellation at which the
// rescue path opens.
func (mc *MemoryChain) SetRescueDelay(seconds int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.rescueDelay = seconds
}

// Adapter returns an Adapter bound to the given account. The account is the
// caller identity the chain uses for private-window gating.
func (mc *MemoryChain) Adapter(account string) Adapter {
	return &memoryAdapter{chain: mc, account: account}
}

func (mc *MemoryChain) now() int64 {
	return mc.nowFunc()
}

type memoryAdapter struct {
	chain   *MemoryChain
	account string
}

func (a *memoryAdapter) CreateEscrow(_ context.Context, params EscrowParams) (string, error) {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return "", fmt.Errorf("escrow amount must be greater than 0")
	}
	if err := params.Windows.Validate(); err != nil {
		return "", err
	}
	if params.PartialFill && params.TotalParts < 2 {
		return "", fmt.Errorf("%w: partial escrow requires at least 2 parts", commitment.ErrInvalidPartsCount)
	}

	mc := a.chain
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.counter++
	address := fmt.Sprintf("mem-escrow-%d", mc.counter)

	mc.escrows[address] = &memEscrow{
		Escrow: escrow.Escrow{
			Address:     address,
			Recipient:   params.Recipient,
			Creator:     a.account,
			Token:       params.Token,
			Amount:      new(big.Int).Set(params.Amount),
			Commitment:  params.Commitment,
			Windows:     params.Windows,
			State:       escrow.StateCreated,
			PartialFill: params.PartialFill,
			TotalParts:  params.TotalParts,
		},
		consumed: make(map[int]bool),
	}

	return address, nil
}

func (a *memoryAdapter) AwaitConfirmation(_ context.Context, address string) error {
	a.chain.mu.Lock()
	defer a.chain.mu.Unlock()

	if _, ok := a.chain.escrows[address]; !ok {
		return fmt.Errorf("escrow %s not found", address)
	}
	return nil
}

func (a *memoryAdapter) Withdraw(_ context.Context, address string, secret []byte) error {
	mc := a.chain
	mc.mu.Lock()
	defer mc.mu.Unlock()

	esc, err := mc.lookup(address)
	if err != nil {
		return err
	}
	if esc.State.Terminal() {
		return fmt.Errorf("%w: escrow %s is %s", escrow.ErrAlreadyFinalized, address, esc.State)
	}
	if err := mc.checkWithdrawalWindow(esc, a.account); err != nil {
		return err
	}

	digest := common.Hash(sha256.Sum256(secret))
	if digest != esc.Commitment {
		return fmt.Errorf("%w: escrow %s", escrow.ErrCommitmentMismatch, address)
	}

	esc.State = escrow.StateWithdrawn
	return nil
}

func (a *memoryAdapter) WithdrawWithProof(_ context.Context, address string, secret []byte, proof []common.Hash, leafIndex int) error {
	mc := a.chain
	mc.mu.Lock()
	defer mc.mu.Unlock()

	esc, err := mc.lookup(address)
	if err != nil {
		return err
	}
	if esc.State.Terminal() {
		return fmt.Errorf("%w: escrow %s is %s", escrow.ErrAlreadyFinalized, address, esc.State)
	}
	if !esc.PartialFill {
		return fmt.Errorf("escrow %s is not a partial fill escrow", address)
	}
	if err := mc.checkWithdrawalWindow(esc, a.account); err != nil {
		return err
	}
	if esc.consumed[leafIndex] {
		return fmt.Errorf("%w: escrow %s leaf %d", escrow.ErrLeafAlreadyConsumed, address, leafIndex)
	}

	leaf := common.Hash(sha256.Sum256(secret))
	if !commitment.Verify(leaf, leafIndex, proof, esc.Commitment) {
		return fmt.Errorf("%w: escrow %s leaf %d", escrow.ErrCommitmentMismatch, address, leafIndex)
	}

	esc.consumed[leafIndex] = true
	esc.ConsumedLeaves = append(esc.ConsumedLeaves, leafIndex)
	if len(esc.consumed) == esc.TotalParts {
		esc.State = escrow.StateWithdrawn
	}
	return nil
}

func (a *memoryAdapter) Cancel(_ context.Context, address string) error {
	mc := a.chain
	mc.mu.Lock()
	defer mc.mu.Unlock()

	esc, err := mc.lookup(address)
	if err != nil {
		return err
	}
	if esc.State.Terminal() {
		return fmt.Errorf("%w: escrow %s is %s", escrow.ErrAlreadyFinalized, address, esc.State)
	}

	now := mc.now()
	switch esc.Windows.PhaseAt(now) {
	case escrow.PhasePrivateCancellation:
		if a.account != esc.Creator {
			return fmt.Errorf("%w: only creator may cancel before %d", escrow.ErrWindowViolation, esc.Windows.PublicCancellationStart)
		}
	case escrow.PhasePublicCancellation:
		// anyone
	default:
		return fmt.Errorf("%w: cancellation opens at %d, now %d", escrow.ErrWindowViolation, esc.Windows.CancellationStart, now)
	}

	esc.State = escrow.StateCancelled
	return nil
}

func (a *memoryAdapter) Rescue(_ context.Context, address string) error {
	mc := a.chain
	mc.mu.Lock()
	defer mc.mu.Unlock()

	esc, err := mc.lookup(address)
	if err != nil {
		return err
	}
	if esc.State.Terminal() {
		return fmt.Errorf("%w: escrow %s is %s", escrow.ErrAlreadyFinalized, address, esc.State)
	}

	now := mc.now()
	available := esc.Windows.PublicCancellationStart + mc.rescueDelay
	if now < available {
		return fmt.Errorf("%w: rescue opens at %d, now %d", escrow.ErrWindowViolation, available, now)
	}
	if a.account != esc.Recipient {
		return fmt.Errorf("%w: only recipient may rescue", escrow.ErrWindowViolation)
	}

	esc.State = escrow.StateWithdrawn
	return nil
}

func (a *memoryAdapter) ReadEscrow(_ context.Context, address string) (*escrow.Escrow, error) {
	mc := a.chain
	mc.mu.Lock()
	defer mc.mu.Unlock()

	esc, err := mc.lookup(address)
	if err != nil {
		return nil, err
	}

	snapshot := esc.Escrow
	snapshot.Amount = new(big.Int).Set(esc.Amount)
	snapshot.ConsumedLeaves = append([]int(nil), esc.ConsumedLeaves...)
	return &snapshot, nil
}

func (mc *MemoryChain) lookup(address string) (*memEscrow, error) {
	esc, ok := mc.escrows[address]
	if !ok {
		return nil, fmt.Errorf("escrow %s not found", address)
	}
	return esc, nil
}

func (mc *MemoryChain) checkWithdrawalWindow(esc *memEscrow, caller string) error {
	now := mc.now()
	switch esc.Windows.PhaseAt(now) {
	case escrow.PhasePrivateWithdrawal:
		if caller != esc.Recipient {
			return fmt.Errorf("%w: only recipient may withdraw before %d", escrow.ErrWindowViolation, esc.Windows.PublicWithdrawalStart)
		}
		return nil
	case escrow.PhasePublicWithdrawal:
		return nil
	default:
		return fmt.Errorf("%w: withdrawal window is [%d,%d), now %d",
			escrow.ErrWindowViolation, esc.Windows.WithdrawalStart, esc.Windows.CancellationStart, now)
	}
}
