package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hqv2816/stockgate/internal/core/domain"
	"github.com/hqv2816/stockgate/internal/port"
)

var ErrOutOfStock = errors.New("out of stock")

// ReservationCoordinator claims quantities across one or more items with
// all-or-nothing semantics: sequential atomic decrements, unwound through an
// explicit compensation list when any item comes up short.
type ReservationCoordinator struct {
	ledger port.FastLedger
	logger *slog.Logger
}

func NewReservationCoordinator(ledger port.FastLedger, logger *slog.Logger) *ReservationCoordinator {
	return &ReservationCoordinator{ledger: ledger, logger: logger}
}

// Reserve decrements every item in caller-supplied order. On the first
// insufficiency (or ledger error) all prior decrements of this attempt are
// restored and ErrOutOfStock (or the error) is returned; no item is left
// partially consumed.
func (c *ReservationCoordinator) Reserve(ctx context.Context, items []domain.ReservationItem) ([]domain.Remaining, error) {
	applied := make([]domain.ReservationItem, 0, len(items))
	remaining := make([]domain.Remaining, 0, len(items))

	for _, item := range items {
		left, ok, err := c.ledger.TryDecrement(ctx, item.ItemID, item.Quantity)
		if err != nil {
			c.compensate(ctx, applied)
			return nil, fmt.Errorf("decrement %s: %w", item.ItemID, err)
		}
		if !ok {
			c.compensate(ctx, applied)
			return nil, ErrOutOfStock
		}

		applied = append(applied, item)
		remaining = append(remaining, domain.Remaining{ItemID: item.ItemID, Remaining: left})
	}

	return remaining, nil
}

// Release restores all items of a previously successful reservation. Used
// when a downstream step fails after Reserve returned success.
func (c *ReservationCoordinator) Release(ctx context.Context, items []domain.ReservationItem) {
	c.compensate(ctx, items)
}

// compensate restores already-applied decrements. A restore failure is not
// retried; blind retries on an already-degraded path risk double-correction,
// so the anomaly is escalated for manual reconciliation instead.
func (c *ReservationCoordinator) compensate(ctx context.Context, items []domain.ReservationItem) {
	for _, item := range items {
		if err := c.ledger.Restore(ctx, item.ItemID, item.Quantity); err != nil {
			c.logger.Error("compensation restore failed",
				"critical", true,
				"item_id", item.ItemID,
				"quantity", item.Quantity,
				"err", err,
			)
		}
	}
}
