package commitment_test

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stellar-swap/pkg/commitment"
)

func testLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := 0; i < n; i++ {
		leaves[i] = common.Hash(sha256.Sum256([]byte(fmt.Sprintf("leaf-%d", i))))
	}
	return leaves
}

func TestMerkleInclusion(t *testing.T) {
	for n := 2; n <= 16; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			leaves := testLeaves(n)
			tree := commitment.NewTree(leaves)
			root := tree.Root()

			for i := 0; i < n; i++ {
				proof, err := tree.Proof(i)
				require.NoError(t, err)
				require.True(t, commitment.Verify(leaves[i], i, proof, root), "leaf %d of %d", i, n)
			}
		})
	}
}

func TestMerkleNonInclusion(t *testing.T) {
	leaves := testLeaves(8)
	tree := commitment.NewTree(leaves)
	root := tree.Root()

	for i := 0; i < len(leaves); i++ {
		proof, err := tree.Proof(i)
		require.NoError(t, err)

		// Flipping any single bit in the leaf must break verification
		flipped := leaves[i]
		flipped[i%32] ^= 1 << uint(i%8)
		require.False(t, commitment.Verify(flipped, i, proof, root), "flipped leaf %d", i)
	}
}

func TestMerkleWrongIndexFails(t *testing.T) {
	leaves := testLeaves(4)
	tree := commitment.NewTree(leaves)
	root := tree.Root()

	proof, err := tree.Proof(1)
	require.NoError(t, err)
	require.False(t, commitment.Verify(leaves[1], 2, proof, root))
	require.False(t, commitment.Verify(leaves[1], -1, proof, root))
}

func TestMerkleRootDeterministic(t *testing.T) {
	leaves := testLeaves(7)
	a := commitment.NewTree(leaves)
	b := commitment.NewTree(leaves)
	require.Equal(t, a.Root(), b.Root())

	// Proof extraction does not perturb the tree
	_, err := a.Proof(3)
	require.NoError(t, err)
	_, err = a.Proof(0)
	require.NoError(t, err)
	require.Equal(t, b.Root(), a.Root())

	// A different leaf order commits to a different root
	swapped := testLeaves(7)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	require.NotEqual(t, a.Root(), commitment.NewTree(swapped).Root())
}

func TestMerkleOddNodeDuplication(t *testing.T) {
	leaves := testLeaves(3)
	tree := commitment.NewTree(leaves)

	require.Equal(t, 2, tree.Depth())
	require.Equal(t, 3, tree.LeafCount())
	require.Equal(t, tree.Root(), commitment.NewTree(leaves).Root())

	// The duplicated last leaf gets itself as its level-0 sibling and its
	// proof round-trips like any other
	proof, err := tree.Proof(2)
	require.NoError(t, err)
	require.Len(t, proof, 2)
	require.Equal(t, leaves[2], proof[0])
	require.True(t, commitment.Verify(leaves[2], 2, proof, tree.Root()))
}

func TestMerkleProofIndexOutOfRange(t *testing.T) {
	tree := commitment.NewTree(testLeaves(4))

	_, err := tree.Proof(-1)
	require.Error(t, err)
	_, err = tree.Proof(4)
	require.Error(t, err)
}

func TestMerkleSingleLeafTree(t *testing.T) {
	leaves := testLeaves(1)
	tree := commitment.NewTree(leaves)

	require.Equal(t, leaves[0], tree.Root())
	require.Equal(t, 0, tree.Depth())

	proof, err := tree.Proof(0)
	require.NoError(t, err)
	require.Empty(t, proof)
	require.True(t, commitment.Verify(leaves[0], 0, proof, tree.Root()))
}
