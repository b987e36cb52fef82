package commitment_test

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stellar-swap/pkg/commitment"
)

func TestGenerateSingle(t *testing.T) {
	secret, digest, err := commitment.GenerateSingle()
	require.NoError(t, err)
	require.NotEqual(t, commitment.Secret{}, secret)

	expected := sha256.Sum256(secret.Bytes())
	require.Equal(t, common.Hash(expected), digest)

	// Hashing is deterministic across repeated calls
	require.Equal(t, digest, secret.Hash())
	require.Equal(t, digest, secret.Hash())
}

func TestGenerateSingleUniqueSecrets(t *testing.T) {
	a, _, err := commitment.GenerateSingle()
	require.NoError(t, err)
	b, _, err := commitment.GenerateSingle()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGeneratePartial(t *testing.T) {
	pc, err := commitment.GeneratePartial(4)
	require.NoError(t, err)
	require.Equal(t, 4, pc.Parts())
	require.Len(t, pc.Leaves, 4)

	for i, secret := range pc.Secrets {
		require.Equal(t, secret.Hash(), pc.Leaves[i])
	}
	require.Equal(t, pc.Tree.Root(), pc.Root)

	// Every leaf proves against the published root
	for i := 0; i < pc.Parts(); i++ {
		proof, err := pc.ProofFor(i)
		require.NoError(t, err)
		require.True(t, commitment.Verify(pc.Leaves[i], i, proof, pc.Root))
	}
}

func TestGeneratePartialRejectsTooFewParts(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		_, err := commitment.GeneratePartial(n)
		require.ErrorIs(t, err, commitment.ErrInvalidPartsCount, "n=%d", n)
	}
}

func TestPartialCommitmentJSONRoundTrip(t *testing.T) {
	pc, err := commitment.GeneratePartial(3)
	require.NoError(t, err)

	data, err := json.Marshal(pc)
	require.NoError(t, err)

	var restored commitment.PartialCommitment
	require.NoError(t, json.Unmarshal(data, &restored))

	require.Equal(t, pc.Secrets, restored.Secrets)
	require.Equal(t, pc.Root, restored.Root)
	require.NotNil(t, restored.Tree)

	// The rebuilt tree still produces working proofs
	proof, err := restored.ProofFor(2)
	require.NoError(t, err)
	require.True(t, commitment.Verify(restored.Leaves[2], 2, proof, restored.Root))
}

func TestPartialCommitmentUnmarshalRejectsTamperedRoot(t *testing.T) {
	pc, err := commitment.GeneratePartial(2)
	require.NoError(t, err)

	data, err := json.Marshal(pc)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	tampered, _ := json.Marshal(common.HexToHash("0xdeadbeef"))
	raw["root"] = tampered
	data, err = json.Marshal(raw)
	require.NoError(t, err)

	var restored commitment.PartialCommitment
	err = json.Unmarshal(data, &restored)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match")
}
