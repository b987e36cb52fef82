package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the lifecycle state of an on-chain escrow. Withdrawn and
// Cancelled are terminal; the chain contract is the final arbiter and
// rejects any transition out of them.
type State string

const (
	StateCreated   State = "created"
	StateWithdrawn State = "withdrawn"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateWithdrawn || s == StateCancelled
}

// Escrow is the locally held view of one hashed-timelock escrow. The escrow
// itself is owned by the chain it is deployed on; this snapshot carries the
// reference (Address) plus the fields needed to interact with it.
type Escrow struct {
	Address    string      `json:"address"`
	Recipient  string      `json:"recipient"`
	Creator    string      `json:"creator"`
	Token      string      `json:"token"`
	Amount     *big.Int    `json:"amount"`
	Commitment common.Hash `json:"commitment"`
	Windows    Windows     `json:"windows"`
	State      State       `json:"state"`

	// Partial-fill bookkeeping. ConsumedLeaves mirrors the contract's
	// per-index withdrawal tracking.
	PartialFill    bool  `json:"partial_fill"`
	TotalParts     int   `json:"total_parts,omitempty"`
	ConsumedLeaves []int `json:"consumed_leaves,omitempty"`
}

// LeafConsumed reports whether the given leaf index has already been
// withdrawn from this escrow.
func (e *Escrow) LeafConsumed(index int) bool {
	for _, i := range e.ConsumedLeaves {
		if i == index {
			return true
		}
	}
	return false
}
