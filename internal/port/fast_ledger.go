package port

import "context"

// FastLedger is the low-latency counter store used for synchronous
// reservation checks. All mutation happens through single-round-trip atomic
// server-side operations; callers never read-modify-write.
type FastLedger interface {
	// TryDecrement atomically checks and subtracts qty from the item's
	// counter. Returns ok=false without mutating state when the counter is
	// missing or would go negative; remaining is the post-decrement value
	// when ok.
	TryDecrement(ctx context.Context, itemID string, qty int) (remaining int, ok bool, err error)

	// Restore unconditionally adds qty back. Compensation only; best effort.
	Restore(ctx context.Context, itemID string, qty int) error

	// SetStock overwrites the counter (seeding and drift reconciliation).
	SetStock(ctx context.Context, itemID string, qty int) error

	// GetStock reads the counter; ok=false when the key is absent.
	GetStock(ctx context.Context, itemID string) (qty int, ok bool, err error)
}
