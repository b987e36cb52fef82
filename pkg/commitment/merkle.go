package commitment

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Tree is a binary Merkle tree over a fixed leaf sequence. Level 0 holds the
// leaves; each parent is keccak256(left || right) over adjacent children,
// left to right. A level with an odd node count duplicates its last node to
// form the final pair, so the same leaf sequence always rebuilds to the same
// root.
type Tree struct {
	levels [][]common.Hash
}

// NewTree builds the tree bottom-up from the given leaves. The leaf slice is
// copied, so callers may reuse theirs.
func NewTree(leaves []common.Hash) *Tree {
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)

	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left // odd node pairs with itself
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}
}

// Root returns the tree root. For a single-leaf tree the root is the leaf.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Depth returns the number of hashing levels above the leaves.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Proof returns the sibling hashes for the leaf at index, ordered from the
// leaf level up to (but excluding) the root. When the node at some level is
// the odd one that was paired with itself, its own hash is pushed as the
// sibling, so every proof verifies against the root exactly as the tree was
// built.
func (t *Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= t.LeafCount() {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", index, t.LeafCount())
	}

	proof := make([]common.Hash, 0, t.Depth())
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		proof = append(proof, level[sibling])
		index /= 2
	}

	return proof, nil
}

// Verify recomputes the root from a leaf, its index and an inclusion proof.
// At each level the running hash goes on the right when the index is odd,
// on the left otherwise, then the index halves. Returns true iff the
// recomputed root equals the expected one.
func Verify(leaf common.Hash, index int, proof []common.Hash, root common.Hash) bool {
	if index < 0 {
		return false
	}

	node := leaf
	for _, sibling := range proof {
		if index%2 == 1 {
			node = hashPair(sibling, node)
		} else {
			node = hashPair(node, sibling)
		}
		index /= 2
	}

	return node == root
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}
