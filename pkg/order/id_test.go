package order_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stellar-swap/pkg/order"
)

func TestComputeIDDeterministic(t *testing.T) {
	c := common.HexToHash("0x0102030405060708091011121314151617181920212223242526272829303132")
	amount := big.NewInt(1_000_000)

	a := order.ComputeID(c, "buyer.near", amount, 42)
	b := order.ComputeID(c, "buyer.near", amount, 42)
	require.Equal(t, a, b)
	require.NotEqual(t, common.Hash{}, a)
}

func TestComputeIDSensitiveToEveryInput(t *testing.T) {
	c := common.HexToHash("0xaa")
	amount := big.NewInt(500)
	base := order.ComputeID(c, "buyer", amount, 1)

	require.NotEqual(t, base, order.ComputeID(common.HexToHash("0xbb"), "buyer", amount, 1))
	require.NotEqual(t, base, order.ComputeID(c, "other", amount, 1))
	require.NotEqual(t, base, order.ComputeID(c, "buyer", big.NewInt(501), 1))
	require.NotEqual(t, base, order.ComputeID(c, "buyer", amount, 2))
}

func TestCreationNonceMinuteBuckets(t *testing.T) {
	at := time.Unix(1_700_000_040, 0)

	require.Equal(t, order.CreationNonce(at), order.CreationNonce(at.Add(10*time.Second)))
	require.NotEqual(t, order.CreationNonce(at), order.CreationNonce(at.Add(60*time.Second)))
}

func TestRegistryLookups(t *testing.T) {
	r := order.NewRegistry(
		map[string]int64{"Stellar": 100, "base": 8453},
		map[string]map[string]string{
			"Stellar": {"xlm": "native", "USDC": "USDC:GA5Z"},
		},
	)

	// Chain names are case-insensitive, symbols normalize to upper case
	id, err := r.ChainID("stellar")
	require.NoError(t, err)
	require.Equal(t, int64(100), id)
	id, err = r.ChainID("BASE")
	require.NoError(t, err)
	require.Equal(t, int64(8453), id)

	tokenID, err := r.TokenID("STELLAR", "Xlm")
	require.NoError(t, err)
	require.Equal(t, "native", tokenID)

	_, err = r.ChainID("solana")
	require.Error(t, err)
	_, err = r.TokenID("stellar", "ETH")
	require.Error(t, err)
	_, err = r.TokenID("base", "USDC")
	require.Error(t, err)

	require.ElementsMatch(t, []string{"XLM", "USDC"}, r.Tokens("stellar"))
	require.ElementsMatch(t, []string{"stellar", "base"}, r.Chains())
}
