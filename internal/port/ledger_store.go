package port

import (
	"context"

	"github.com/hqv2816/stockgate/internal/core/domain"
)

// LedgerStore is the durable, authoritative stock record plus the order rows
// the reservation flow persists. Stock is only ever decremented through
// ConsumeStock's conditional update.
type LedgerStore interface {
	// ConsumeStock subtracts qty where the current stock is sufficient.
	// Returns false (zero rows affected) when it is not.
	ConsumeStock(ctx context.Context, itemID string, qty int) (bool, error)

	// GetStock reads the authoritative quantity; ok=false when the item is
	// unknown.
	GetStock(ctx context.Context, itemID string) (qty int, ok bool, err error)

	// UpsertStock seeds or resets an item's durable quantity.
	UpsertStock(ctx context.Context, itemID string, qty int) error

	// ListStock returns all stock records (snapshot export).
	ListStock(ctx context.Context) ([]domain.Stock, error)

	// CreateOrder persists a new order and its lines in one transaction.
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder retrieves an order with its lines; nil if not found.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateOrderStatus transitions an order from one status to another.
	// Returns false when the order is missing or not in the expected status.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error)
}
