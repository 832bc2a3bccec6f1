package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hqv2816/stockgate/internal/core/domain"
	"github.com/hqv2816/stockgate/internal/idgen"
	"github.com/hqv2816/stockgate/internal/port"
)

var (
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidOrderState = errors.New("invalid order state")
)

// OrderService is the order-flow collaborator: it claims stock through the
// reservation coordinator, persists the order, and on confirmation hands the
// consumption facts to the propagator. Payment itself stays external.
type OrderService struct {
	reservations *ReservationCoordinator
	ledger       port.LedgerStore
	dedup        port.DedupStore
	propagator   *Propagator
	logger       *slog.Logger
	now          func() time.Time
}

func NewOrderService(reservations *ReservationCoordinator, ledger port.LedgerStore, dedup port.DedupStore, propagator *Propagator, logger *slog.Logger) *OrderService {
	return &OrderService{
		reservations: reservations,
		ledger:       ledger,
		dedup:        dedup,
		propagator:   propagator,
		logger:       logger,
		now:          time.Now,
	}
}

// PlaceOrder reserves every line against the fast ledger and persists a
// pending order. A persistence failure releases the reservation before
// returning.
func (s *OrderService) PlaceOrder(ctx context.Context, requestID, userID string, items []domain.ReservationItem) (*domain.Order, error) {
	fresh, err := s.dedup.MarkSeen(ctx, "request:"+requestID)
	if err != nil {
		return nil, fmt.Errorf("request dedup: %w", err)
	}
	if !fresh {
		return nil, ErrDuplicateRequest
	}

	if _, err := s.reservations.Reserve(ctx, items); err != nil {
		s.forgetRequest(ctx, requestID)
		return nil, err
	}

	orderID, err := idgen.Generate("ord-")
	if err != nil {
		s.reservations.Release(ctx, items)
		s.forgetRequest(ctx, requestID)
		return nil, err
	}

	now := s.now()
	order := domain.Order{
		ID:        orderID,
		UserID:    userID,
		Status:    domain.OrderStatusPending,
		Lines:     toOrderLines(items),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ledger.CreateOrder(ctx, order); err != nil {
		s.reservations.Release(ctx, items)
		s.forgetRequest(ctx, requestID)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	return &order, nil
}

// forgetRequest releases the request dedup key after a failed attempt so a
// retry with the same request id sees the real outcome instead of a
// duplicate-request rejection.
func (s *OrderService) forgetRequest(ctx context.Context, requestID string) {
	if err := s.dedup.Forget(ctx, "request:"+requestID); err != nil {
		s.logger.Warn("failed to release request dedup key", "request_id", requestID, "err", err)
	}
}

// ConfirmOrder finalizes a pending order after payment succeeded and
// publishes its consumption events. Confirming an already-confirmed order
// republishes the events: the status flip commits before the publish, so a
// publish failure leaves a confirmed order whose events never went out, and
// the caller's retry must be able to resend them. The deterministic
// idempotency keys make the resend a no-op on the consumer side.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) error {
	order, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}

	switch order.Status {
	case domain.OrderStatusPending:
		ok, err := s.ledger.UpdateOrderStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidOrderState
		}
	case domain.OrderStatusConfirmed:
	default:
		return ErrInvalidOrderState
	}

	return s.propagator.PublishOrder(ctx, *order)
}

// CancelOrder voids a pending order and returns its quantities to the fast
// ledger.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	order, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}

	ok, err := s.ledger.UpdateOrderStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrderState
	}

	s.reservations.Release(ctx, toReservationItems(order.Lines))
	return nil
}

func toOrderLines(items []domain.ReservationItem) []domain.OrderLine {
	lines := make([]domain.OrderLine, len(items))
	for i, item := range items {
		lines[i] = domain.OrderLine{ItemID: item.ItemID, Quantity: item.Quantity}
	}
	return lines
}

func toReservationItems(lines []domain.OrderLine) []domain.ReservationItem {
	items := make([]domain.ReservationItem, len(lines))
	for i, line := range lines {
		items[i] = domain.ReservationItem{ItemID: line.ItemID, Quantity: line.Quantity}
	}
	return items
}
