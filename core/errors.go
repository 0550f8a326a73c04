package core

import "errors"

// Sentinel errors forming the failure taxonomy of the quest core. Callers
// classify with errors.Is; sites wrap these with fmt.Errorf("%w: ...") to
// attach detail.
var (
	// ErrInvalidArgument marks malformed input rejected before any state change.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks an unknown quest, reward, or progress record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a disallowed state move, such as claiming a
	// quest that is still in progress.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDuplicationLimit marks an assignment attempt beyond the quest's
	// duplication limit.
	ErrDuplicationLimit = errors.New("duplication limit reached")

	// ErrConflict marks a compare-and-swap write that lost a race; the
	// operation may be retried from a fresh read.
	ErrConflict = errors.New("state changed concurrently")

	// ErrUpstreamUnavailable marks a catalog or wallet call that failed or
	// timed out before any grant was attempted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrSettlementFailed marks a grant call that failed after the record
	// already advanced to claimed. The record keeps settlement=failed until
	// reconciliation succeeds.
	ErrSettlementFailed = errors.New("settlement failed")
)
