package commitment

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MarshalText encodes the secret as lowercase hex, so secrets survive the
// local order store without leaving the machine in any other form.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s[:])), nil
}

// UnmarshalText decodes a hex-encoded secret.
func (s *Secret) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid secret encoding: %w", err)
	}
	if len(raw) != SecretSize {
		return fmt.Errorf("invalid secret length: %d", len(raw))
	}
	copy(s[:], raw)
	return nil
}

type partialCommitmentJSON struct {
	Secrets []Secret      `json:"secrets"`
	Leaves  []common.Hash `json:"leaves"`
	Root    common.Hash   `json:"root"`
}

// MarshalJSON stores secrets, leaves and root; the tree is rebuilt on load.
func (pc *PartialCommitment) MarshalJSON() ([]byte, error) {
	return json.Marshal(partialCommitmentJSON{
		Secrets: pc.Secrets,
		Leaves:  pc.Leaves,
		Root:    pc.Root,
	})
}

// UnmarshalJSON restores the commitment and deterministically rebuilds the
// Merkle tree from the stored leaves, verifying the root still matches.
func (pc *PartialCommitment) UnmarshalJSON(data []byte) error {
	var raw partialCommitmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Leaves) != len(raw.Secrets) {
		return fmt.Errorf("leaf count %d does not match secret count %d", len(raw.Leaves), len(raw.Secrets))
	}

	tree := NewTree(raw.Leaves)
	if tree.Root() != raw.Root {
		return fmt.Errorf("stored root %s does not match rebuilt tree root %s", raw.Root, tree.Root())
	}

	pc.Secrets = raw.Secrets
	pc.Leaves = raw.Leaves
	pc.Tree = tree
	pc.Root = raw.Root
	return nil
}
