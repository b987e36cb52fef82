package escrow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stellar-swap/pkg/escrow"
)

func validWindows() escrow.Windows {
	return escrow.Windows{
		WithdrawalStart:         100,
		PublicWithdrawalStart:   200,
		CancellationStart:       300,
		PublicCancellationStart: 400,
	}
}

func TestWindowsValidate(t *testing.T) {
	require.NoError(t, validWindows().Validate())

	// Equal timestamps are allowed, the ordering is non-strict
	flat := escrow.Windows{WithdrawalStart: 50, PublicWithdrawalStart: 50, CancellationStart: 50, PublicCancellationStart: 50}
	require.NoError(t, flat.Validate())

	cases := []struct {
		name string
		w    escrow.Windows
	}{
		{"withdrawal after public withdrawal", escrow.Windows{WithdrawalStart: 201, PublicWithdrawalStart: 200, CancellationStart: 300, PublicCancellationStart: 400}},
		{"public withdrawal after cancellation", escrow.Windows{WithdrawalStart: 100, PublicWithdrawalStart: 301, CancellationStart: 300, PublicCancellationStart: 400}},
		{"cancellation after public cancellation", escrow.Windows{WithdrawalStart: 100, PublicWithdrawalStart: 200, CancellationStart: 401, PublicCancellationStart: 400}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.w.Validate(), escrow.ErrWindowViolation)
		})
	}
}

func TestPhaseAtBoundaries(t *testing.T) {
	w := validWindows()

	require.Equal(t, escrow.PhaseLocked, w.PhaseAt(99))
	require.Equal(t, escrow.PhasePrivateWithdrawal, w.PhaseAt(100))
	require.Equal(t, escrow.PhasePrivateWithdrawal, w.PhaseAt(199))
	require.Equal(t, escrow.PhasePublicWithdrawal, w.PhaseAt(200))
	require.Equal(t, escrow.PhasePublicWithdrawal, w.PhaseAt(299))
	require.Equal(t, escrow.PhasePrivateCancellation, w.PhaseAt(300))
	require.Equal(t, escrow.PhasePrivateCancellation, w.PhaseAt(399))
	require.Equal(t, escrow.PhasePublicCancellation, w.PhaseAt(400))
	require.Equal(t, escrow.PhasePublicCancellation, w.PhaseAt(100_000))
}

func TestCanWithdrawCanCancel(t *testing.T) {
	w := validWindows()

	require.False(t, w.CanWithdraw(99))
	require.True(t, w.CanWithdraw(100))
	require.True(t, w.CanWithdraw(299))
	require.False(t, w.CanWithdraw(300))

	require.False(t, w.CanCancel(299))
	require.True(t, w.CanCancel(300))
	require.True(t, w.CanCancel(400))
}

func TestCheckDestinationSafety(t *testing.T) {
	src := validWindows()
	const margin = 50

	// Exactly at the margin is safe
	require.NoError(t, escrow.CheckDestinationSafety(src, 250, margin))
	require.NoError(t, escrow.CheckDestinationSafety(src, 300, margin))

	err := escrow.CheckDestinationSafety(src, 249, margin)
	require.ErrorIs(t, err, escrow.ErrUnsafeWindowOrdering)
}

func TestDestinationWindows(t *testing.T) {
	src := validWindows()
	const margin = 50

	dst := escrow.DestinationWindows(src, margin)
	require.NoError(t, dst.Validate())
	require.NoError(t, escrow.CheckDestinationSafety(src, dst.CancellationStart, margin))
	require.Equal(t, src.WithdrawalStart, dst.WithdrawalStart)
	require.Equal(t, src.PublicWithdrawalStart, dst.PublicWithdrawalStart)
	require.Equal(t, int64(300), dst.CancellationStart)
	require.Equal(t, int64(300)+escrow.DefaultPublicCancellationDelay, dst.PublicCancellationStart)

	// A wide margin pushes the destination cancellation past the source's
	wide := escrow.DestinationWindows(src, 500)
	require.Equal(t, int64(700), wide.CancellationStart)
	require.NoError(t, wide.Validate())
	require.NoError(t, escrow.CheckDestinationSafety(src, wide.CancellationStart, 500))
}
