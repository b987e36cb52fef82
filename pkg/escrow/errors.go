package escrow

import "errors"

var (
	// ErrCommitmentMismatch means the presented secret or proof does not
	// hash to the escrow's stored commitment. Retrying with the same input
	// cannot succeed.
	ErrCommitmentMismatch = errors.New("secret does not match escrow commitment")

	// ErrWindowViolation means an action was attempted outside its
	// permitted phase, or an escrow's window timestamps are malformed.
	ErrWindowViolation = errors.New("action outside permitted time window")

	// ErrUnsafeWindowOrdering means a destination escrow's cancellation
	// window would open before the source escrow's public withdrawal window
	// safely closes. This is a protocol-breaking bug and fails escrow
	// creation.
	ErrUnsafeWindowOrdering = errors.New("destination cancellation opens before source withdrawal safely closes")

	// ErrAlreadyFinalized means the escrow has reached a terminal state and
	// rejects all further transitions.
	ErrAlreadyFinalized = errors.New("escrow already finalized")

	// ErrLeafAlreadyConsumed means a partial-fill withdrawal reused a leaf
	// index that was already withdrawn.
	ErrLeafAlreadyConsumed = errors.New("partial fill leaf index already consumed")
)
