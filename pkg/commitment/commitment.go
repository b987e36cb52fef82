package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SecretSize is the length in bytes of every swap secret.
const SecretSize = 32

// ErrInvalidPartsCount is returned when a partial commitment is requested
// with fewer than two parts. Single-fill orders use GenerateSingle instead.
var ErrInvalidPartsCount = fmt.Errorf("partial fill requires at least 2 parts")

// Secret is the 32-byte preimage whose disclosure authorizes withdrawal.
// It stays with its generator until deliberately revealed on-chain.
type Secret [SecretSize]byte

// Bytes returns the secret as a byte slice.
func (s Secret) Bytes() []byte {
	return s[:]
}

// Hash returns the SHA-256 digest of the secret. For single-fill orders this
// digest is the published commitment; for partial fills it is a Merkle leaf.
func (s Secret) Hash() common.Hash {
	return common.Hash(sha256.Sum256(s[:]))
}

// NewSecret draws 32 bytes from the system CSPRNG.
func NewSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return Secret{}, fmt.Errorf("failed to read entropy source: %w", err)
	}
	return s, nil
}

// GenerateSingle produces a fresh secret and its commitment for a full-fill
// order. The commitment is safe to publish; the secret is not.
func GenerateSingle() (Secret, common.Hash, error) {
	secret, err := NewSecret()
	if err != nil {
		return Secret{}, common.Hash{}, err
	}
	return secret, secret.Hash(), nil
}

// PartialCommitment holds the full secret material for a partial-fill order:
// n independent secrets, their SHA-256 leaf hashes, the Merkle tree built
// over the leaves, and the root published as the order's commitment. It is
// constructed once and never mutated; proofs are derived from the tree with
// pure functions.
type PartialCommitment struct {
	Secrets []Secret
	Leaves  []common.Hash
	Tree    *Tree
	Root    common.Hash
}

// GeneratePartial draws n independent secrets and commits to them under a
// single Merkle root. Fails with ErrInvalidPartsCount when n <= 1.
func GeneratePartial(n int) (*PartialCommitment, error) {
	if n <= 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPartsCount, n)
	}

	secrets := make([]Secret, n)
	leaves := make([]common.Hash, n)
	for i := 0; i < n; i++ {
		secret, err := NewSecret()
		if err != nil {
			return nil, err
		}
		secrets[i] = secret
		leaves[i] = secret.Hash()
	}

	tree := NewTree(leaves)

	return &PartialCommitment{
		Secrets: secrets,
		Leaves:  leaves,
		Tree:    tree,
		Root:    tree.Root(),
	}, nil
}

// Parts returns the number of leaf secrets in the commitment.
func (pc *PartialCommitment) Parts() int {
	return len(pc.Secrets)
}

// ProofFor returns the inclusion proof for the leaf at the given index.
func (pc *PartialCommitment) ProofFor(index int) ([]common.Hash, error) {
	return pc.Tree.Proof(index)
}
