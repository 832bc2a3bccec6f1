package port

import "context"

// GateStore is the timestamp-ordered membership backing an admission gate.
// Each gate owns two sets, waiting and active, scored by unix milliseconds.
// Implementations must perform each call as one atomic server-side operation.
type GateStore interface {
	// EnqueueWaiting inserts the member into the waiting set with the given
	// score. No-op if the member is already waiting or active.
	EnqueueWaiting(ctx context.Context, gate, member string, score int64) error

	// Heartbeat refreshes the member's active-set score and reports whether
	// the member is active. When oneShot is set, an active member is removed
	// instead of refreshed (single-use ticket).
	Heartbeat(ctx context.Context, gate, member string, score int64, oneShot bool) (active bool, err error)

	// WaitingRank returns the member's 1-based position in the waiting set,
	// or -1 if the member is not waiting.
	WaitingRank(ctx context.Context, gate, member string) (int64, error)

	// PromoteOldest moves up to count oldest-scored waiting members into the
	// active set with the given score, returning the promoted members. When
	// capacity is positive, count is recomputed inside the same atomic
	// operation as capacity minus the current active size, so concurrent
	// promoters cannot push the active set past the capacity.
	PromoteOldest(ctx context.Context, gate string, count, capacity, score int64) ([]string, error)

	// EvictStale removes active members whose score is older than the given
	// threshold, returning how many were evicted.
	EvictStale(ctx context.Context, gate string, olderThan int64) (int64, error)

	// Remove deletes the member from both sets.
	Remove(ctx context.Context, gate, member string) error

	// ActiveCount returns the size of the active set.
	ActiveCount(ctx context.Context, gate string) (int64, error)
}
