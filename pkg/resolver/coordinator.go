package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"stellar-swap/config"
	"stellar-swap/pkg/chain"
	"stellar-swap/pkg/escrow"
	"stellar-swap/pkg/order"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 5 * time.Second
	DefaultPollInterval = time.Second
)

// AdapterProvider resolves chain names to adapters. *chain.Manager is the
// production implementation.
type AdapterProvider interface {
	AdapterFor(chain string) (chain.Adapter, error)
}

// Coordinator drives the resolver side of a swap sequentially: it creates the
// destination escrow, waits for the withdrawal window, and finalizes both
// legs. One workflow owns an order at a time; ownership is arbitrated by the
// store. Network faults are retried with backoff, cryptographic and timing
// violations terminate the workflow, and a missed withdrawal window falls
// back to cancellation recovery.
type Coordinator struct {
	store    *order.Store
	chains   AdapterProvider
	cfg      *config.Config
	registry *order.Registry
	log      *logrus.Logger

	nowFunc      func() int64
	maxRetries   int
	retryBackoff time.Duration
	pollInterval time.Duration
}

// PartFill names one leaf of a partial-fill order and the amount its
// withdrawal settles.
type PartFill struct {
	Index  int
	Amount *big.Int
}

// NewCoordinator creates a coordinator over the given store and chains. A nil
// logger falls back to the standard logrus logger.
func NewCoordinator(store *order.Store, chains AdapterProvider, cfg *config.Config, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		store:        store,
		chains:       chains,
		cfg:          cfg,
		registry:     order.NewRegistry(cfg.ChainIDs(), cfg.TokenTables()),
		log:          log,
		nowFunc:      func() int64 { return time.Now().Unix() },
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
		pollInterval: DefaultPollInterval,
	}
}

// SetNowFunc overrides the coordinator's clock for deterministic tests.
func (c *Coordinator) SetNowFunc(now func() int64) {
	c.nowFunc = now
}

// SetRetryPolicy overrides the network-failure retry budget and backoff.
func (c *Coordinator) SetRetryPolicy(maxRetries int, backoff time.Duration) {
	c.maxRetries = maxRetries
	c.retryBackoff = backoff
}

// SetPollInterval overrides how often window waits re-check the clock.
func (c *Coordinator) SetPollInterval(interval time.Duration) {
	c.pollInterval = interval
}

// Execute runs the swap workflow for an order: validate, derive safe
// destination windows, create and confirm the destination escrow, then for
// single-fill orders withdraw both legs once the window opens. Partial-fill
// orders stop at StatusEscrowed; their leaves settle through WithdrawParts.
// If the withdrawal window has already closed, Execute recovers through the
// cancellation path instead.
func (c *Coordinator) Execute(ctx context.Context, id common.Hash) error {
	ord, err := c.store.Acquire(id)
	if err != nil {
		return err
	}
	defer c.store.Release(id)

	if ord.Status.Terminal() {
		return fmt.Errorf("order %s is already %s", id.Hex(), ord.Status)
	}
	if err := ord.Validate(); err != nil {
		return c.fail(ord, fmt.Errorf("order validation failed: %w", err))
	}

	dstWindows := escrow.DestinationWindows(ord.Windows, c.cfg.SafetyMargin)
	if err := escrow.CheckDestinationSafety(ord.Windows, dstWindows.CancellationStart, c.cfg.SafetyMargin); err != nil {
		return c.fail(ord, err)
	}

	dst, err := c.chains.AdapterFor(ord.DestChain)
	if err != nil {
		return c.fail(ord, err)
	}

	if ord.DestEscrowAddr == "" {
		if err := c.createDestEscrow(ctx, ord, dst, dstWindows); err != nil {
			return err
		}
	}

	if ord.PartialFill {
		// Leaves settle individually as the buyer's fills arrive.
		return nil
	}

	return c.settleSingleFill(ctx, ord, dst, dstWindows)
}

func (c *Coordinator) createDestEscrow(ctx context.Context, ord *order.Order, dst chain.Adapter, dstWindows escrow.Windows) error {
	tokenID, err := c.registry.TokenID(ord.DestChain, ord.DestToken)
	if err != nil {
		return c.fail(ord, err)
	}

	params := chain.EscrowParams{
		Recipient:       ord.Buyer,
		Token:           tokenID,
		Amount:          ord.DestAmount,
		Commitment:      ord.Commitment,
		Windows:         dstWindows,
		SecurityDeposit: big.NewInt(c.cfg.SecurityDeposit),
		PartialFill:     ord.PartialFill,
		TotalParts:      c.totalParts(ord),
	}

	var addr string
	err = c.withRetry(ctx, "create destination escrow", ord.ID, func() error {
		var createErr error
		addr, createErr = dst.CreateEscrow(ctx, params)
		return createErr
	})
	if err != nil {
		return c.fail(ord, fmt.Errorf("failed to create destination escrow: %w", err))
	}

	err = c.withRetry(ctx, "confirm destination escrow", ord.ID, func() error {
		return dst.AwaitConfirmation(ctx, addr)
	})
	if err != nil {
		return c.fail(ord, fmt.Errorf("destination escrow %s not confirmed: %w", addr, err))
	}

	ord.DestEscrowAddr = addr
	ord.Status = order.StatusEscrowed
	if err := c.store.Update(ord); err != nil {
		return err
	}

	c.event(ord.ID, "EscrowCreated").WithFields(logrus.Fields{
		"escrow": addr,
		"chain":  ord.DestChain,
	}).Info("destination escrow confirmed")
	return nil
}

func (c *Coordinator) settleSingleFill(ctx context.Context, ord *order.Order, dst chain.Adapter, dstWindows escrow.Windows) error {
	now := c.nowFunc()
	if !dstWindows.CanWithdraw(now) && dstWindows.PhaseAt(now) != escrow.PhaseLocked {
		// Window already closed; the only recovery left is cancellation.
		return c.cancelDest(ctx, ord, dst, dstWindows)
	}

	if err := c.waitUntil(ctx, dstWindows.WithdrawalStart); err != nil {
		return err
	}

	if err := c.withdrawLeg(ctx, dst, ord.DestEscrowAddr, ord.Secret.Bytes(), ord.ID); err != nil {
		if errors.Is(err, escrow.ErrWindowViolation) {
			return c.cancelDest(ctx, ord, dst, dstWindows)
		}
		return c.fail(ord, fmt.Errorf("destination withdrawal failed: %w", err))
	}
	c.event(ord.ID, "Withdrawn").WithField("escrow", ord.DestEscrowAddr).Info("destination leg withdrawn")

	// The secret is public once the destination withdrawal lands, so the
	// source leg can be claimed with the same preimage.
	if ord.SourceEscrowAddr != "" {
		src, err := c.chains.AdapterFor(ord.SourceChain)
		if err != nil {
			return c.fail(ord, err)
		}
		if err := c.withdrawLeg(ctx, src, ord.SourceEscrowAddr, ord.Secret.Bytes(), ord.ID); err != nil {
			return c.fail(ord, fmt.Errorf("source withdrawal failed: %w", err))
		}
		c.event(ord.ID, "Withdrawn").WithField("escrow", ord.SourceEscrowAddr).Info("source leg withdrawn")
	} else {
		c.event(ord.ID, "Withdrawn").Warn("no source escrow recorded, skipping source leg")
	}

	ord.Status = order.StatusCompleted
	return c.store.Update(ord)
}

// withdrawLeg submits a withdrawal, retrying network faults. Before every
// resubmission the escrow is re-read: a prior attempt may already have
// landed, and a duplicate reveal must not be treated as a failure.
func (c *Coordinator) withdrawLeg(ctx context.Context, adapter chain.Adapter, address string, secret []byte, id common.Hash) error {
	return c.withRetry(ctx, "withdraw", id, func() error {
		snapshot, err := adapter.ReadEscrow(ctx, address)
		if err == nil && snapshot.State == escrow.StateWithdrawn {
			return nil
		}
		return adapter.Withdraw(ctx, address, secret)
	})
}

// withdrawLeaf submits one leaf withdrawal, retrying network faults. Like
// withdrawLeg, the escrow is re-read before every resubmission so an already
// consumed leaf counts as success rather than a duplicate reveal.
func (c *Coordinator) withdrawLeaf(ctx context.Context, adapter chain.Adapter, address string, secret []byte, proof []common.Hash, index int, id common.Hash) error {
	return c.withRetry(ctx, "withdraw part", id, func() error {
		snapshot, err := adapter.ReadEscrow(ctx, address)
		if err == nil && snapshot.LeafConsumed(index) {
			return nil
		}
		return adapter.WithdrawWithProof(ctx, address, secret, proof, index)
	})
}

// WithdrawParts settles the named leaves of a partial-fill order. Each part
// withdraws one leaf secret from the destination escrow with its inclusion
// proof, then claims the matching source leaf with the now-public secret;
// the aggregate settled amount may never exceed the order's destination
// amount, and a leaf index is accepted at most once.
func (c *Coordinator) WithdrawParts(ctx context.Context, id common.Hash, parts []PartFill) error {
	ord, err := c.store.Acquire(id)
	if err != nil {
		return err
	}
	defer c.store.Release(id)

	if !ord.PartialFill {
		return fmt.Errorf("order %s is not a partial fill order", id.Hex())
	}
	if ord.Status.Terminal() {
		return fmt.Errorf("order %s is already %s", id.Hex(), ord.Status)
	}
	if ord.DestEscrowAddr == "" {
		return fmt.Errorf("order %s has no destination escrow yet", id.Hex())
	}

	filled := make(map[int]bool, len(ord.FilledParts))
	for _, index := range ord.FilledParts {
		filled[index] = true
	}

	total := big.NewInt(0)
	if ord.FilledAmountTotal != "" {
		parsed, ok := new(big.Int).SetString(ord.FilledAmountTotal, 10)
		if !ok {
			return fmt.Errorf("order %s has corrupt filled total: %s", id.Hex(), ord.FilledAmountTotal)
		}
		total = parsed
	}

	// Reject the whole batch before touching the chain: replayed leaves and
	// aggregate overfill are caller mistakes, not partial successes.
	requested := new(big.Int).Set(total)
	for _, part := range parts {
		if part.Index < 0 || part.Index >= ord.Partial.Parts() {
			return fmt.Errorf("leaf index %d out of range [0,%d)", part.Index, ord.Partial.Parts())
		}
		if filled[part.Index] {
			return fmt.Errorf("%w: leaf %d", escrow.ErrLeafAlreadyConsumed, part.Index)
		}
		if part.Amount == nil || part.Amount.Sign() <= 0 {
			return fmt.Errorf("part %d amount must be greater than 0", part.Index)
		}
		filled[part.Index] = true
		requested.Add(requested, part.Amount)
	}
	if requested.Cmp(ord.DestAmount) > 0 {
		return fmt.Errorf("aggregate fill %s exceeds order amount %s", requested, ord.DestAmount)
	}

	dst, err := c.chains.AdapterFor(ord.DestChain)
	if err != nil {
		return err
	}

	var src chain.Adapter
	if ord.SourceEscrowAddr != "" {
		src, err = c.chains.AdapterFor(ord.SourceChain)
		if err != nil {
			return err
		}
	}

	if err := c.waitUntil(ctx, ord.Windows.WithdrawalStart); err != nil {
		return err
	}

	for _, part := range parts {
		proof, err := ord.Partial.ProofFor(part.Index)
		if err != nil {
			return err
		}
		secret := ord.Partial.Secrets[part.Index]

		if err := c.withdrawLeaf(ctx, dst, ord.DestEscrowAddr, secret.Bytes(), proof, part.Index, id); err != nil {
			return c.fail(ord, fmt.Errorf("leaf %d withdrawal failed: %w", part.Index, err))
		}

		// The leaf secret is public once the destination withdrawal lands,
		// so the matching source leaf can be claimed with the same proof.
		if src != nil {
			if err := c.withdrawLeaf(ctx, src, ord.SourceEscrowAddr, secret.Bytes(), proof, part.Index, id); err != nil {
				return c.fail(ord, fmt.Errorf("leaf %d source withdrawal failed: %w", part.Index, err))
			}
		}

		total.Add(total, part.Amount)
		ord.FilledParts = append(ord.FilledParts, part.Index)
		ord.FilledAmountTotal = total.String()
		if err := c.store.Update(ord); err != nil {
			return err
		}

		c.event(id, "Withdrawn").WithFields(logrus.Fields{
			"escrow": ord.DestEscrowAddr,
			"leaf":   part.Index,
			"amount": part.Amount.String(),
		}).Info("partial fill leaf withdrawn")
	}

	if len(ord.FilledParts) == ord.Partial.Parts() {
		ord.Status = order.StatusCompleted
		if err := c.store.Update(ord); err != nil {
			return err
		}
	}
	return nil
}

// Rescue sweeps a stuck source escrow after the rescue delay has elapsed
// past its public cancellation window. The source escrow pays the resolver,
// so this is the recovery of last resort for an order whose destination leg
// settled but whose source withdrawal never landed.
func (c *Coordinator) Rescue(ctx context.Context, id common.Hash) error {
	ord, err := c.store.Acquire(id)
	if err != nil {
		return err
	}
	defer c.store.Release(id)

	if ord.SourceEscrowAddr == "" {
		return fmt.Errorf("order %s has no source escrow to rescue", id.Hex())
	}

	src, err := c.chains.AdapterFor(ord.SourceChain)
	if err != nil {
		return err
	}

	err = c.withRetry(ctx, "rescue", id, func() error {
		snapshot, readErr := src.ReadEscrow(ctx, ord.SourceEscrowAddr)
		if readErr == nil && snapshot.State == escrow.StateWithdrawn {
			return nil
		}
		return src.Rescue(ctx, ord.SourceEscrowAddr)
	})
	if err != nil {
		return err
	}

	c.event(id, "Rescued").WithField("escrow", ord.SourceEscrowAddr).Info("source escrow rescued")

	if !ord.Status.Terminal() {
		ord.Status = order.StatusCompleted
		return c.store.Update(ord)
	}
	return nil
}

// Cancel recovers an order through the cancellation path once the
// destination escrow's cancellation window is open.
func (c *Coordinator) Cancel(ctx context.Context, id common.Hash) error {
	ord, err := c.store.Acquire(id)
	if err != nil {
		return err
	}
	defer c.store.Release(id)

	if ord.Status.Terminal() {
		return fmt.Errorf("order %s is already %s", id.Hex(), ord.Status)
	}
	if ord.DestEscrowAddr == "" {
		return fmt.Errorf("order %s has no destination escrow to cancel", id.Hex())
	}

	dst, err := c.chains.AdapterFor(ord.DestChain)
	if err != nil {
		return err
	}

	snapshot, err := dst.ReadEscrow(ctx, ord.DestEscrowAddr)
	if err != nil {
		return err
	}
	return c.cancelDest(ctx, ord, dst, snapshot.Windows)
}

func (c *Coordinator) cancelDest(ctx context.Context, ord *order.Order, dst chain.Adapter, dstWindows escrow.Windows) error {
	if err := c.waitUntil(ctx, dstWindows.CancellationStart); err != nil {
		return err
	}

	err := c.withRetry(ctx, "cancel", ord.ID, func() error {
		snapshot, readErr := dst.ReadEscrow(ctx, ord.DestEscrowAddr)
		if readErr == nil && snapshot.State == escrow.StateCancelled {
			return nil
		}
		return dst.Cancel(ctx, ord.DestEscrowAddr)
	})
	if err != nil {
		return c.fail(ord, fmt.Errorf("cancellation failed: %w", err))
	}

	ord.Status = order.StatusCancelled
	if err := c.store.Update(ord); err != nil {
		return err
	}

	c.event(ord.ID, "Cancelled").WithField("escrow", ord.DestEscrowAddr).Info("destination escrow cancelled")
	return nil
}

// withRetry runs fn, retrying only network failures with exponential backoff
// up to the configured budget. Every other error kind is surfaced as is.
func (c *Coordinator) withRetry(ctx context.Context, op string, id common.Hash, fn func() error) error {
	var err error
	backoff := c.retryBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.event(id, "Retry").WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
			}).Warn("retrying after network failure")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err = fn()
		if err == nil || !errors.Is(err, chain.ErrNetworkFailure) {
			return err
		}
	}
	return err
}

// waitUntil blocks until the coordinator's clock reaches ts or the context
// expires.
func (c *Coordinator) waitUntil(ctx context.Context, ts int64) error {
	for c.nowFunc() < ts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil
}

func (c *Coordinator) totalParts(ord *order.Order) int {
	if ord.Partial != nil {
		return ord.Partial.Parts()
	}
	return 0
}

func (c *Coordinator) fail(ord *order.Order, err error) error {
	ord.Status = order.StatusFailed
	ord.ErrorMessage = err.Error()
	if updateErr := c.store.Update(ord); updateErr != nil {
		c.event(ord.ID, "OrderFailed").WithError(updateErr).Error("failed to persist failure")
	}
	c.event(ord.ID, "OrderFailed").WithError(err).Error("workflow terminated")
	return err
}

func (c *Coordinator) event(id common.Hash, event string) *logrus.Entry {
	return c.log.WithFields(logrus.Fields{
		"order": id.Hex(),
		"event": event,
	})
}
