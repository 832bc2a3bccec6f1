package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hqv2816/stockgate/internal/core/domain"
	"github.com/hqv2816/stockgate/internal/port"
)

// Propagator is the publish side of consumption propagation: one event per
// confirmed order line, partitioned by item id. The idempotency key is
// derived from the order and item so a republished order produces the same
// keys and the consumer drops the duplicates.
type Propagator struct {
	bus port.EventBus
}

func NewPropagator(bus port.EventBus) *Propagator {
	return &Propagator{bus: bus}
}

func (p *Propagator) PublishOrder(ctx context.Context, order domain.Order) error {
	for _, line := range order.Lines {
		ev := domain.ConsumptionEvent{
			IdempotencyKey: order.ID + ":" + line.ItemID,
			ItemID:         line.ItemID,
			Quantity:       line.Quantity,
		}
		if err := p.bus.PublishConsumption(ctx, ev); err != nil {
			return fmt.Errorf("publish consumption %s: %w", ev.IdempotencyKey, err)
		}
	}
	return nil
}

// Consumer applies consumption events to the durable ledger in bounded
// batches, then reconciles the fast ledger against the durable value.
type Consumer struct {
	ledger     port.LedgerStore
	fast       port.FastLedger
	dedup      port.DedupStore
	logger     *slog.Logger
	batchSize  int
	flushEvery time.Duration
}

func NewConsumer(ledger port.LedgerStore, fast port.FastLedger, dedup port.DedupStore, logger *slog.Logger, batchSize int, flushEvery time.Duration) *Consumer {
	return &Consumer{
		ledger:     ledger,
		fast:       fast,
		dedup:      dedup,
		logger:     logger,
		batchSize:  batchSize,
		flushEvery: flushEvery,
	}
}

// Run drains the event channel into batches, flushing on size or interval,
// until the context is cancelled or the channel closes. The pending batch is
// flushed on the way out.
func (c *Consumer) Run(ctx context.Context, events <-chan domain.ConsumptionEvent) {
	batch := make([]domain.ConsumptionEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.ProcessBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case ev, ok := <-events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= c.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// ProcessBatch deduplicates, aggregates per item, applies conditional
// durable decrements in ascending item order, and reconciles the fast
// ledger. Per-item failures are logged and do not abort the batch.
func (c *Consumer) ProcessBatch(ctx context.Context, batch []domain.ConsumptionEvent) {
	totals := make(map[string]int)

	for _, ev := range batch {
		fresh, err := c.dedup.MarkSeen(ctx, ev.IdempotencyKey)
		if err != nil {
			c.logger.Error("dedup check failed", "key", ev.IdempotencyKey, "err", err)
			continue
		}
		if !fresh {
			// Redelivered event; already applied.
			continue
		}
		totals[ev.ItemID] += ev.Quantity
	}
	if len(totals) == 0 {
		return
	}

	// Fixed ascending order so concurrent batches on different consumer
	// instances acquire per-item row locks in the same global order.
	items := make([]string, 0, len(totals))
	for itemID := range totals {
		items = append(items, itemID)
	}
	sort.Strings(items)

	for _, itemID := range items {
		ok, err := c.ledger.ConsumeStock(ctx, itemID, totals[itemID])
		if err != nil {
			c.logger.Error("durable decrement failed", "item_id", itemID, "quantity", totals[itemID], "err", err)
			continue
		}
		if !ok {
			c.logger.Error("durable decrement affected no rows",
				"item_id", itemID,
				"quantity", totals[itemID],
			)
		}
	}

	c.reconcile(ctx, items)
}

// reconcile overwrites the fast-ledger value from the durable value whenever
// the fast value exceeds it. The durable ledger is the source of truth and
// is never corrected from the fast side.
func (c *Consumer) reconcile(ctx context.Context, items []string) {
	for _, itemID := range items {
		durable, ok, err := c.ledger.GetStock(ctx, itemID)
		if err != nil {
			c.logger.Error("reconcile read failed", "item_id", itemID, "err", err)
			continue
		}
		if !ok {
			c.logger.Error("reconcile found no durable record", "item_id", itemID)
			continue
		}

		fast, exists, err := c.fast.GetStock(ctx, itemID)
		if err != nil {
			c.logger.Error("reconcile fast read failed", "item_id", itemID, "err", err)
			continue
		}
		if !exists || fast <= durable {
			continue
		}

		if err := c.fast.SetStock(ctx, itemID, durable); err != nil {
			c.logger.Error("drift correction failed", "item_id", itemID, "err", err)
			continue
		}
		c.logger.Warn("fast ledger drift corrected",
			"item_id", itemID,
			"fast", fast,
			"durable", durable,
		)
	}
}
