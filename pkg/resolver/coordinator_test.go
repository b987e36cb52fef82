package resolver_test

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"stellar-swap/config"
	"stellar-swap/pkg/chain"
	"stellar-swap/pkg/commitment"
	"stellar-swap/pkg/escrow"
	"stellar-swap/pkg/order"
	"stellar-swap/pkg/resolver"
)

const resolverAccount = "resolver"

func testConfig() *config.Config {
	return &config.Config{
		SafetyMargin: 50,
		Chains: map[string]config.ChainConfig{
			"src": {
				ChainID:        1,
				Family:         "memory",
				FactoryAddress: resolverAccount,
				Tokens:         map[string]string{"XLM": "native"},
			},
			"dst": {
				ChainID:        2,
				Family:         "memory",
				FactoryAddress: resolverAccount,
				Tokens:         map[string]string{"USDC": "usdc-token"},
			},
		},
	}
}

// testHarness wires a coordinator, its store, and a shared in-memory chain to
// one mutable clock.
type testHarness struct {
	store *order.Store
	mem   *chain.MemoryChain
	coord *resolver.Coordinator
	now   int64
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, wrap func(resolver.AdapterProvider) resolver.AdapterProvider) *testHarness {
	t.Helper()

	h := &testHarness{
		store: order.NewMemoryStore(),
		mem:   chain.NewMemoryChain(),
		now:   50,
	}
	h.mem.SetNowFunc(func() int64 { return h.now })

	cfg := testConfig()
	var chains resolver.AdapterProvider = chain.NewMemoryManager(cfg, h.mem)
	if wrap != nil {
		chains = wrap(chains)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	h.coord = resolver.NewCoordinator(h.store, chains, cfg, log)
	h.coord.SetNowFunc(func() int64 { return h.now })
	h.coord.SetRetryPolicy(resolver.DefaultMaxRetries, time.Millisecond)
	h.coord.SetPollInterval(time.Millisecond)
	return h
}

func (h *testHarness) newOrder(t *testing.T, parts int) *order.Order {
	t.Helper()

	ord := &order.Order{
		Buyer:        "buyer.addr",
		Nonce:        7,
		Created:      time.Unix(0, 0),
		SourceChain:  "src",
		DestChain:    "dst",
		SourceToken:  "XLM",
		DestToken:    "USDC",
		SourceAmount: big.NewInt(10_000),
		DestAmount:   big.NewInt(4_000),
		Windows: escrow.Windows{
			WithdrawalStart:         100,
			PublicWithdrawalStart:   200,
			CancellationStart:       300,
			PublicCancellationStart: 400,
		},
		Status: order.StatusCreated,
	}

	if parts >= 2 {
		pc, err := commitment.GeneratePartial(parts)
		require.NoError(t, err)
		ord.Partial = pc
		ord.PartialFill = true
		ord.Commitment = pc.Root
	} else {
		secret, digest, err := commitment.GenerateSingle()
		require.NoError(t, err)
		ord.Secret = &secret
		ord.Commitment = digest
	}

	ord.ID = order.ComputeID(ord.Commitment, ord.Buyer, ord.SourceAmount, ord.Nonce)
	require.NoError(t, ord.Validate())
	require.NoError(t, h.store.Create(ord))
	return ord
}

// createSourceEscrow simulates the buyer locking the source leg before the
// resolver acts.
func (h *testHarness) createSourceEscrow(t *testing.T, ord *order.Order) {
	t.Helper()

	params := chain.EscrowParams{
		Recipient:  resolverAccount,
		Token:      "native",
		Amount:     ord.SourceAmount,
		Commitment: ord.Commitment,
		Windows:    ord.Windows,
	}
	if ord.PartialFill {
		params.PartialFill = true
		params.TotalParts = ord.Partial.Parts()
	}

	addr, err := h.mem.Adapter(ord.Buyer).CreateEscrow(context.Background(), params)
	require.NoError(t, err)
	ord.SourceEscrowAddr = addr
	require.NoError(t, h.store.Update(ord))
}

func (h *testHarness) readEscrow(t *testing.T, addr string) *escrow.Escrow {
	t.Helper()
	snapshot, err := h.mem.Adapter(resolverAccount).ReadEscrow(context.Background(), addr)
	require.NoError(t, err)
	return snapshot
}

func TestExecuteSingleFill(t *testing.T) {
	h := newHarness(t)
	ord := h.newOrder(t, 1)
	h.createSourceEscrow(t, ord)
	h.now = 200

	require.NoError(t, h.coord.Execute(context.Background(), ord.ID))

	got, err := h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, got.Status)
	require.NotEmpty(t, got.DestEscrowAddr)

	// Both legs are withdrawn, the destination escrow pays the buyer
	dst := h.readEscrow(t, got.DestEscrowAddr)
	require.Equal(t, escrow.StateWithdrawn, dst.State)
	require.Equal(t, ord.Buyer, dst.Recipient)
	require.Equal(t, "usdc-token", dst.Token)
	require.Equal(t, 0, ord.DestAmount.Cmp(dst.Amount))

	src := h.readEscrow(t, got.SourceEscrowAddr)
	require.Equal(t, escrow.StateWithdrawn, src.State)
}

func TestExecuteDerivesSafeDestinationWindows(t *testing.T) {
	h := newHarness(t)
	ord := h.newOrder(t, 1)
	h.now = 200

	require.NoError(t, h.coord.Execute(context.Background(), ord.ID))

	got, err := h.store.Get(ord.ID)
	require.NoError(t, err)
	dst := h.readEscrow(t, got.DestEscrowAddr)

	require.NoError(t, escrow.CheckDestinationSafety(ord.Windows, dst.Windows.CancellationStart, 50))
	require.GreaterOrEqual(t, dst.Windows.CancellationStart, ord.Windows.PublicWithdrawalStart+50)
}

func TestExecuteMissedWindowCancels(t *testing.T) {
	h := newHarness(t)
	ord := h.newOrder(t, 1)
	h.now = 600

	require.NoError(t, h.coord.Execute(context.Background(), ord.ID))

	got, err := h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCancelled, got.Status)
	require.Equal(t, escrow.StateCancelled, h.readEscrow(t, got.DestEscrowAddr).State)
}

func TestExecuteRejectsInflightOrder(t *testing.T) {
	h := newHarness(t)
	ord := h.newOrder(t, 1)
	h.now = 200

	_, err := h.store.Acquire(ord.ID)
	require.NoError(t, err)
	defer h.store.Release(ord.ID)

	err = h.coord.Execute(context.Background(), ord.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "in flight")
}

func TestWithdrawParts(t *testing.T) {
	h := newHarness(t)
	ord := h.newOrder(t, 4)
	h.createSourceEscrow(t, ord)
	h.now = 200
	ctx := context.Background()

	// Partial-fill orders stop at the escrow, leaves settle separately
	require.NoError(t, h.coord.Execute(ctx, ord.ID))
	got, err := h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusEscrowed, got.Status)

	require.NoError(t, h.coord.WithdrawParts(ctx, ord.ID, []resolver.PartFill{
		{Index: 0, Amount: big.NewInt(1000)},
		{Index: 1, Amount: big.NewInt(1000)},
	}))

	got, err = h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusEscrowed, got.Status)
	require.ElementsMatch(t, []int{0, 1}, got.FilledParts)
	require.Equal(t, "2000", got.FilledAmountTotal)
	require.ElementsMatch(t, []int{0, 1}, h.readEscrow(t, got.DestEscrowAddr).ConsumedLeaves)

	// Each destination leaf withdrawal claims the matching source leaf
	require.ElementsMatch(t, []int{0, 1}, h.readEscrow(t, got.SourceEscrowAddr).ConsumedLeaves)

	// A replayed leaf rejects the whole batch before touching the chain
	err = h.coord.WithdrawParts(ctx, ord.ID, []resolver.PartFill{{Index: 1, Amount: big.NewInt(1000)}})
	require.ErrorIs(t, err, escrow.ErrLeafAlreadyConsumed)

	// So does an aggregate fill beyond the order amount
	err = h.coord.WithdrawParts(ctx, ord.ID, []resolver.PartFill{{Index: 2, Amount: big.NewInt(3000)}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds order amount")

	got, err = h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Len(t, got.FilledParts, 2)

	// Settling the remaining leaves completes the order
	require.NoError(t, h.coord.WithdrawParts(ctx, ord.ID, []resolver.PartFill{
		{Index: 2, Amount: big.NewInt(1000)},
		{Index: 3, Amount: big.NewInt(1000)},
	}))

	got, err = h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, got.Status)
	require.Equal(t, "4000", got.FilledAmountTotal)
	require.Equal(t, escrow.StateWithdrawn, h.readEscrow(t, got.DestEscrowAddr).State)

	// Both legs are fully settled, nothing stays locked on the source chain
	src := h.readEscrow(t, got.SourceEscrowAddr)
	require.Equal(t, escrow.StateWithdrawn, src.State)
	require.ElementsMatch(t, []int{0, 1, 2, 3}, src.ConsumedLeaves)
}

func TestWithdrawPartsRejectsSingleFillOrder(t *testing.T) {
	h := newHarness(t)
	ord := h.newOrder(t, 1)
	h.now = 200

	err := h.coord.WithdrawParts(context.Background(), ord.ID, []resolver.PartFill{{Index: 0, Amount: big.NewInt(1)}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a partial fill order")
}

func TestCancelRecoversEscrowedOrder(t *testing.T) {
	h := newHarness(t)
	ord := h.newOrder(t, 4)
	h.now = 200
	ctx := context.Background()

	require.NoError(t, h.coord.Execute(ctx, ord.ID))

	// The buyer never fills; once the cancellation window opens the resolver
	// reclaims the destination escrow.
	h.now = 600
	require.NoError(t, h.coord.Cancel(ctx, ord.ID))

	got, err := h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCancelled, got.Status)
	require.Equal(t, escrow.StateCancelled, h.readEscrow(t, got.DestEscrowAddr).State)

	// Cancellation is terminal for the workflow
	err = h.coord.Cancel(ctx, ord.ID)
	require.Error(t, err)
}

func TestRescueSweepsStuckSourceEscrow(t *testing.T) {
	h := newHarness(t)
	h.mem.SetRescueDelay(100)
	ord := h.newOrder(t, 1)
	h.createSourceEscrow(t, ord)
	ctx := context.Background()

	// Before the delay the chain refuses
	h.now = 499
	err := h.coord.Rescue(ctx, ord.ID)
	require.ErrorIs(t, err, escrow.ErrWindowViolation)

	h.now = 500
	require.NoError(t, h.coord.Rescue(ctx, ord.ID))

	require.Equal(t, escrow.StateWithdrawn, h.readEscrow(t, ord.SourceEscrowAddr).State)
	got, err := h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, got.Status)
}

type flakyProvider struct {
	inner    resolver.AdapterProvider
	failures int
	attempts int
}

func (p *flakyProvider) AdapterFor(name string) (chain.Adapter, error) {
	adapter, err := p.inner.AdapterFor(name)
	if err != nil {
		return nil, err
	}
	return &flakyAdapter{Adapter: adapter, provider: p}, nil
}

type flakyAdapter struct {
	chain.Adapter
	provider *flakyProvider
}

func (a *flakyAdapter) CreateEscrow(ctx context.Context, params chain.EscrowParams) (string, error) {
	a.provider.attempts++
	if a.provider.failures > 0 {
		a.provider.failures--
		return "", fmt.Errorf("%w: rpc timeout", chain.ErrNetworkFailure)
	}
	return a.Adapter.CreateEscrow(ctx, params)
}

func TestExecuteRetriesNetworkFailure(t *testing.T) {
	flaky := &flakyProvider{failures: 2}
	h := newHarnessWith(t, func(inner resolver.AdapterProvider) resolver.AdapterProvider {
		flaky.inner = inner
		return flaky
	})
	ord := h.newOrder(t, 1)
	h.now = 200

	require.NoError(t, h.coord.Execute(context.Background(), ord.ID))
	require.Equal(t, 3, flaky.attempts)

	got, err := h.store.Get(ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, got.Status)
}

func TestExecuteDoesNotRetryFatalErrors(t *testing.T) {
	flaky := &flakyProvider{failures: 0}
	h := newHarnessWith(t, func(inner resolver.AdapterProvider) resolver.AdapterProvider {
		flaky.inner = inner
		return &fatalProvider{flaky: flaky, inner: inner}
	})
	ord := h.newOrder(t, 1)
	h.now = 200

	err := h.coord.Execute(context.Background(), ord.ID)
	require.ErrorIs(t, err, chain.ErrInsufficientFunds)
	require.Equal(t, 1, flaky.attempts)

	got, getErr := h.store.Get(ord.ID)
	require.NoError(t, getErr)
	require.Equal(t, order.StatusFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "insufficient")
}

type fatalProvider struct {
	flaky *flakyProvider
	inner resolver.AdapterProvider
}

func (p *fatalProvider) AdapterFor(name string) (chain.Adapter, error) {
	adapter, err := p.inner.AdapterFor(name)
	if err != nil {
		return nil, err
	}
	return &fatalAdapter{Adapter: adapter, provider: p}, nil
}

type fatalAdapter struct {
	chain.Adapter
	provider *fatalProvider
}

func (a *fatalAdapter) CreateEscrow(context.Context, chain.EscrowParams) (string, error) {
	a.provider.flaky.attempts++
	return "", fmt.Errorf("%w: balance below escrow amount", chain.ErrInsufficientFunds)
}
