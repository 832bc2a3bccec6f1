// Package events carries consumption facts between the order flow and the
// durable-ledger consumer over NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hqv2816/stockgate/internal/core/domain"
)

const (
	// subjectPrefix is suffixed with the item id so that all events for one
	// item share a subject and arrive in publish order relative to each
	// other. Cross-item ordering is neither guaranteed nor needed.
	subjectPrefix   = "stock.consumed."
	subjectWildcard = subjectPrefix + ">"

	// Pending limits for the subscription buffer. Core NATS does not
	// redeliver, so the buffer must absorb bursts while the consumer is
	// blocked in a durable-ledger batch; overflow is a data-loss anomaly
	// and is logged as such by the error handler.
	pendingMsgLimit   = 65536
	pendingBytesLimit = 64 * 1024 * 1024
)

// NATSBus publishes and subscribes consumption events as JSON payloads on
// per-item subjects.
type NATSBus struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewNATSBus(url string, logger *slog.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			if errors.Is(err, nats.ErrSlowConsumer) {
				logger.Error("consumption events lost, subscription buffer overflow",
					"critical", true,
					"err", err,
				)
				return
			}
			logger.Error("nats async error", "err", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSBus{conn: nc, logger: logger}, nil
}

func (b *NATSBus) PublishConsumption(ctx context.Context, ev domain.ConsumptionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return b.conn.Publish(subjectPrefix+ev.ItemID, data)
}

// SubscribeConsumption returns a channel receiving consumption events for
// every item. The channel send blocks the drain loop rather than dropping,
// so backpressure lands in the subscription's pending buffer. Call the
// returned cancel function to unsubscribe and close the channel.
func (b *NATSBus) SubscribeConsumption() (<-chan domain.ConsumptionEvent, func(), error) {
	sub, err := b.conn.SubscribeSync(subjectWildcard)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subjectWildcard, err)
	}
	if err := sub.SetPendingLimits(pendingMsgLimit, pendingBytesLimit); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("setting pending limits: %w", err)
	}
	// Flush ensures the subscription is registered on the server before
	// returning, so that events published on other connections are routed.
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	ch := make(chan domain.ConsumptionEvent, 256)
	done := make(chan struct{})

	go func() {
		defer close(ch)
		for {
			msg, err := sub.NextMsg(time.Second)
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if err != nil {
				// Unsubscribed or connection closed.
				return
			}

			var ev domain.ConsumptionEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				b.logger.Error("discarding undecodable consumption event", "err", err)
				continue
			}

			select {
			case ch <- ev:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(done)
		})
	}

	return ch, cancel, nil
}

// Flush blocks until published events have reached the server.
func (b *NATSBus) Flush() error {
	return b.conn.Flush()
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
