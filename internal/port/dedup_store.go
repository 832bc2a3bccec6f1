package port

import "context"

// DedupStore answers "seen before?" for idempotency keys with a bounded
// retention window.
type DedupStore interface {
	// MarkSeen records the key if absent. Returns false if the key was
	// already present (duplicate).
	MarkSeen(ctx context.Context, key string) (bool, error)

	// Forget releases a previously marked key, re-arming it for a retry.
	Forget(ctx context.Context, key string) error
}
