package domain

import "time"

// Stock is the durable per-item quantity record. The relational store is the
// source of truth; the fast ledger is reconciled against it, never the other
// way around.
type Stock struct {
	ItemID    string
	Quantity  int
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReservationItem is one (item, quantity) pair of a reservation attempt.
type ReservationItem struct {
	ItemID   string
	Quantity int
}

// Remaining reports the fast-ledger value left after a successful decrement.
type Remaining struct {
	ItemID    string
	Remaining int
}
