package order

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// domainTag binds order ids to this protocol so they cannot collide with
// hashes derived elsewhere from the same commitment.
const domainTag = "CROSS_CHAIN_SWAP"

// ComputeID derives the deterministic order identifier. It is a pure
// function of its inputs: the same (commitment, buyer, amount, nonce) always
// yields the same id. The nonce folds a coarse creation timestamp into the
// commitment label as defense-in-depth against reuse of the same secret
// material; it is not a cryptographic uniqueness guarantee. Ids are opaque
// and compared byte for byte.
func ComputeID(c common.Hash, buyer string, sourceAmount *big.Int, nonce uint64) common.Hash {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	label := crypto.Keccak256Hash(c[:], nonceBytes[:])

	return crypto.Keccak256Hash(
		label[:],
		[]byte(buyer),
		[]byte(domainTag),
		sourceAmount.Bytes(),
		c[:],
	)
}

// CreationNonce buckets a creation time into minutes. Two submissions of the
// same order in the same minute share a nonce; a later resubmission gets a
// new one and therefore a new id.
func CreationNonce(t time.Time) uint64 {
	return uint64(t.Unix() / 60)
}

// Registry is the immutable lookup table mapping chain names to chain ids
// and (chain, token symbol) pairs to on-chain token identifiers. It is built
// once from configuration and injected wherever chain or token resolution is
// needed, never mutated.
type Registry struct {
	chains map[string]int64
	tokens map[string]map[string]string
}

// NewRegistry copies the provided tables so later config mutation cannot
// leak into the registry. Chain and token names are lowercased, symbols
// uppercased.
func NewRegistry(chains map[string]int64, tokens map[string]map[string]string) *Registry {
	r := &Registry{
		chains: make(map[string]int64, len(chains)),
		tokens: make(map[string]map[string]string, len(tokens)),
	}
	for name, id := range chains {
		r.chains[strings.ToLower(name)] = id
	}
	for chain, symbols := range tokens {
		m := make(map[string]string, len(symbols))
		for symbol, tokenID := range symbols {
			m[strings.ToUpper(symbol)] = tokenID
		}
		r.tokens[strings.ToLower(chain)] = m
	}
	return r
}

// ChainID resolves a chain name to its numeric chain id.
func (r *Registry) ChainID(chain string) (int64, error) {
	id, ok := r.chains[strings.ToLower(chain)]
	if !ok {
		return 0, fmt.Errorf("chain '%s' not configured", chain)
	}
	return id, nil
}

// TokenID resolves a token symbol on a chain to its on-chain identifier.
func (r *Registry) TokenID(chain, symbol string) (string, error) {
	symbols, ok := r.tokens[strings.ToLower(chain)]
	if !ok {
		return "", fmt.Errorf("chain '%s' not configured", chain)
	}
	tokenID, ok := symbols[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("token '%s' not configured on chain '%s'", symbol, chain)
	}
	return tokenID, nil
}

// Chains returns the configured chain names.
func (r *Registry) Chains() []string {
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	return names
}

// Tokens returns the configured token symbols for a chain.
func (r *Registry) Tokens(chain string) []string {
	symbols := make([]string, 0)
	for symbol := range r.tokens[strings.ToLower(chain)] {
		symbols = append(symbols, symbol)
	}
	return symbols
}
