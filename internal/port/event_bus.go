package port

import (
	"context"

	"github.com/hqv2816/stockgate/internal/core/domain"
)

// EventBus carries consumption events from the order flow to the ledger
// consumer. Delivery is at-least-once; events sharing an item id are
// delivered in publish order relative to each other.
type EventBus interface {
	// PublishConsumption emits one consumption event, partitioned by item id.
	PublishConsumption(ctx context.Context, ev domain.ConsumptionEvent) error

	// SubscribeConsumption returns a channel of consumption events for all
	// items. Call the returned cancel function to unsubscribe and close the
	// channel.
	SubscribeConsumption() (<-chan domain.ConsumptionEvent, func(), error)

	Close() error
}
