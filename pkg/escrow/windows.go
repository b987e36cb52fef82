package escrow

import (
	"fmt"
	"time"
)

// Phase identifies which action an escrow admits at a given moment.
type Phase string

const (
	PhaseLocked              Phase = "locked"
	PhasePrivateWithdrawal   Phase = "private_withdrawal"
	PhasePublicWithdrawal    Phase = "public_withdrawal"
	PhasePrivateCancellation Phase = "private_cancellation"
	PhasePublicCancellation  Phase = "public_cancellation"
)

// Windows carries the four timestamps (unix seconds) that drive an escrow's
// phase state machine. They must be non-decreasing:
//
//	WithdrawalStart <= PublicWithdrawalStart <= CancellationStart <= PublicCancellationStart
type Windows struct {
	WithdrawalStart         int64 `json:"withdrawal_start"`
	PublicWithdrawalStart   int64 `json:"public_withdrawal_start"`
	CancellationStart       int64 `json:"cancellation_start"`
	PublicCancellationStart int64 `json:"public_cancellation_start"`
}

// DefaultPublicCancellationDelay is applied when a destination escrow is
// created without an explicit public cancellation timestamp: it opens one
// hour after private cancellation.
const DefaultPublicCancellationDelay = int64(time.Hour / time.Second)

// Validate checks the non-decreasing ordering invariant. Any violation is
// reported as ErrWindowViolation with the offending pair named.
func (w Windows) Validate() error {
	if w.WithdrawalStart > w.PublicWithdrawalStart {
		return fmt.Errorf("%w: withdrawal start %d after public withdrawal start %d",
			ErrWindowViolation, w.WithdrawalStart, w.PublicWithdrawalStart)
	}
	if w.PublicWithdrawalStart > w.CancellationStart {
		return fmt.Errorf("%w: public withdrawal start %d after cancellation start %d",
			ErrWindowViolation, w.PublicWithdrawalStart, w.CancellationStart)
	}
	if w.CancellationStart > w.PublicCancellationStart {
		return fmt.Errorf("%w: cancellation start %d after public cancellation start %d",
			ErrWindowViolation, w.CancellationStart, w.PublicCancellationStart)
	}
	return nil
}

// PhaseAt returns the phase the escrow is in at unix time now.
func (w Windows) PhaseAt(now int64) Phase {
	switch {
	case now < w.WithdrawalStart:
		return PhaseLocked
	case now < w.PublicWithdrawalStart:
		return PhasePrivateWithdrawal
	case now < w.CancellationStart:
		return PhasePublicWithdrawal
	case now < w.PublicCancellationStart:
		return PhasePrivateCancellation
	default:
		return PhasePublicCancellation
	}
}

// CanWithdraw reports whether now falls in either withdrawal phase.
func (w Windows) CanWithdraw(now int64) bool {
	p := w.PhaseAt(now)
	return p == PhasePrivateWithdrawal || p == PhasePublicWithdrawal
}

// CanCancel reports whether now falls in either cancellation phase.
func (w Windows) CanCancel(now int64) bool {
	p := w.PhaseAt(now)
	return p == PhasePrivateCancellation || p == PhasePublicCancellation
}

// CheckDestinationSafety enforces the cross-chain ordering invariant: the
// destination escrow's cancellation window must not open until the source
// escrow's public withdrawal window has been open for at least margin
// seconds. Otherwise the resolver could reclaim its destination funds while
// the buyer still has a guaranteed claim on the source side.
func CheckDestinationSafety(src Windows, dstCancellationStart int64, margin int64) error {
	if dstCancellationStart < src.PublicWithdrawalStart+margin {
		return fmt.Errorf("%w: destination cancellation %d before source public withdrawal %d + margin %ds",
			ErrUnsafeWindowOrdering, dstCancellationStart, src.PublicWithdrawalStart, margin)
	}
	return nil
}

// DestinationWindows derives destination-escrow windows from the source
// escrow's, shifted so the safety invariant holds with the given margin.
// The destination opens for withdrawal when the source does, but cannot be
// cancelled until margin seconds after the source's secret has gone public.
func DestinationWindows(src Windows, margin int64) Windows {
	cancellation := src.PublicWithdrawalStart + margin
	if src.CancellationStart > cancellation {
		cancellation = src.CancellationStart
	}
	return Windows{
		WithdrawalStart:         src.WithdrawalStart,
		PublicWithdrawalStart:   src.PublicWithdrawalStart,
		CancellationStart:       cancellation,
		PublicCancellationStart: cancellation + DefaultPublicCancellationDelay,
	}
}
