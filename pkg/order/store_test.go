package order_test

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stellar-swap/pkg/commitment"
	"stellar-swap/pkg/escrow"
	"stellar-swap/pkg/order"
)

func newTestOrder(t *testing.T) *order.Order {
	t.Helper()
	secret, digest, err := commitment.GenerateSingle()
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	ord := &order.Order{
		Buyer:        "buyer.addr",
		Nonce:        order.CreationNonce(now),
		Created:      now,
		SourceChain:  "stellar",
		DestChain:    "base",
		SourceToken:  "XLM",
		DestToken:    "USDC",
		SourceAmount: big.NewInt(10_000_000),
		DestAmount:   big.NewInt(1_250_000),
		Commitment:   digest,
		Secret:       &secret,
		Windows: escrow.Windows{
			WithdrawalStart:         now.Unix() + 300,
			PublicWithdrawalStart:   now.Unix() + 600,
			CancellationStart:       now.Unix() + 900,
			PublicCancellationStart: now.Unix() + 1200,
		},
		Status: order.StatusCreated,
	}
	ord.ID = order.ComputeID(digest, ord.Buyer, ord.SourceAmount, ord.Nonce)
	require.NoError(t, ord.Validate())
	return ord
}

func TestStoreCreateAndGet(t *testing.T) {
	store := order.NewMemoryStore()
	ord := newTestOrder(t)

	require.NoError(t, store.Create(ord))
	require.True(t, store.Exists(ord.ID))
	require.Equal(t, 1, store.Count())

	got, err := store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, ord.ID, got.ID)

	// Duplicate ids are rejected
	err = store.Create(ord)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestStoreUpdateTerminalGuard(t *testing.T) {
	store := order.NewMemoryStore()
	ord := newTestOrder(t)
	require.NoError(t, store.Create(ord))

	ord.Status = order.StatusCompleted
	require.NoError(t, store.Update(ord))

	// A terminal order accepts an idempotent rewrite of the same status
	ord.ErrorMessage = "noted after the fact"
	require.NoError(t, store.Update(ord))

	ord.Status = order.StatusCancelled
	err := store.Update(ord)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already completed")
}

func TestStoreListByStatus(t *testing.T) {
	store := order.NewMemoryStore()

	a := newTestOrder(t)
	b := newTestOrder(t)
	b.Status = order.StatusSubmitted
	require.NoError(t, store.Create(a))
	require.NoError(t, store.Create(b))

	require.Len(t, store.List(), 2)
	created := store.ListByStatus(order.StatusCreated)
	require.Len(t, created, 1)
	require.Equal(t, a.ID, created[0].ID)
	require.Empty(t, store.ListByStatus(order.StatusCompleted))
}

func TestStoreAcquireRelease(t *testing.T) {
	store := order.NewMemoryStore()
	ord := newTestOrder(t)
	require.NoError(t, store.Create(ord))

	got, err := store.Acquire(ord.ID)
	require.NoError(t, err)
	require.Equal(t, ord.ID, got.ID)

	_, err = store.Acquire(ord.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "in flight")

	store.Release(ord.ID)
	_, err = store.Acquire(ord.ID)
	require.NoError(t, err)

	_, err = store.Acquire(order.ComputeID(ord.Commitment, "other", big.NewInt(1), 9))
	require.Error(t, err)
}

func TestStorePersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")

	store, err := order.NewStore(path)
	require.NoError(t, err)

	single := newTestOrder(t)
	require.NoError(t, store.Create(single))

	pc, err := commitment.GeneratePartial(4)
	require.NoError(t, err)
	partial := newTestOrder(t)
	partial.Secret = nil
	partial.Partial = pc
	partial.PartialFill = true
	partial.Commitment = pc.Root
	partial.ID = order.ComputeID(pc.Root, partial.Buyer, partial.SourceAmount, partial.Nonce+1)
	require.NoError(t, partial.Validate())
	require.NoError(t, store.Create(partial))

	reopened, err := order.NewStore(path)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Count())

	got, err := reopened.Get(single.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Secret)
	require.Equal(t, *single.Secret, *got.Secret)
	require.Equal(t, single.Commitment, got.Commitment)
	require.Equal(t, single.Windows, got.Windows)
	require.Equal(t, 0, single.SourceAmount.Cmp(got.SourceAmount))

	// The partial commitment survives with a working tree
	got, err = reopened.Get(partial.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Partial)
	require.Equal(t, pc.Secrets, got.Partial.Secrets)
	require.Equal(t, pc.Root, got.Partial.Root)
	proof, err := got.Partial.ProofFor(3)
	require.NoError(t, err)
	require.True(t, commitment.Verify(got.Partial.Leaves[3], 3, proof, got.Partial.Root))

	require.NoError(t, got.Validate())
}
