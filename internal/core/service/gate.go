package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hqv2816/stockgate/internal/core/domain"
	"github.com/hqv2816/stockgate/internal/port"
)

// GateConfig parameterizes one admission gate instance. Two flavors share
// the implementation: the entry gate hands out one-shot tickets and promotes
// up to Capacity-ActiveCount members per tick; the order gate keeps members
// active across heartbeats and promotes a fixed batch.
type GateConfig struct {
	Name             string
	OneShot          bool
	Capacity         int64 // >0 enables capacity-driven promotion
	PromoteBatch     int64 // fixed batch size when Capacity is 0
	HeartbeatTimeout time.Duration
}

// AdmissionGate is a FIFO waiting room over a timestamp-ordered membership
// set. Members poll Status; promotion and stale eviction run on a scheduler
// tick.
type AdmissionGate struct {
	store  port.GateStore
	cfg    GateConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewAdmissionGate(store port.GateStore, cfg GateConfig, logger *slog.Logger) *AdmissionGate {
	return &AdmissionGate{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (g *AdmissionGate) nowMillis() int64 {
	return g.now().UnixMilli()
}

// RegisterWait inserts the member into the waiting set, scored by arrival
// time. No-op if the member is already waiting or active.
func (g *AdmissionGate) RegisterWait(ctx context.Context, member string) error {
	return g.store.EnqueueWaiting(ctx, g.cfg.Name, member, g.nowMillis())
}

// Status reports the member's position. An active member gets its score
// refreshed (heartbeat); one-shot gates additionally consume the ticket.
// Waiting members get their 1-based rank; unknown members get rank -1.
func (g *AdmissionGate) Status(ctx context.Context, member string) (domain.GateStatus, error) {
	active, err := g.store.Heartbeat(ctx, g.cfg.Name, member, g.nowMillis(), g.cfg.OneShot)
	if err != nil {
		return domain.GateStatus{}, fmt.Errorf("heartbeat: %w", err)
	}
	if active {
		return domain.GateStatus{Active: true, Rank: 0, Message: "active"}, nil
	}

	rank, err := g.store.WaitingRank(ctx, g.cfg.Name, member)
	if err != nil {
		return domain.GateStatus{}, fmt.Errorf("waiting rank: %w", err)
	}
	if rank < 0 {
		return domain.GateStatus{Active: false, Rank: -1, Message: "unknown"}, nil
	}

	return domain.GateStatus{
		Active:  false,
		Rank:    rank,
		Message: fmt.Sprintf("waiting, position %d", rank),
	}, nil
}

// Promote moves the oldest waiting members into the active set. With a
// configured capacity the promotion count is capacity minus the current
// active size, computed atomically in the store so that concurrent ticks
// (including ones on other instances) cannot overshoot; otherwise the fixed
// batch size applies.
func (g *AdmissionGate) Promote(ctx context.Context) (int, error) {
	promoted, err := g.store.PromoteOldest(ctx, g.cfg.Name, g.cfg.PromoteBatch, g.cfg.Capacity, g.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("promote: %w", err)
	}

	return len(promoted), nil
}

// EvictStale drops active members whose last heartbeat is older than the
// configured timeout. This is the only mechanism reclaiming slots abandoned
// by clients that stopped polling.
func (g *AdmissionGate) EvictStale(ctx context.Context) (int64, error) {
	cutoff := g.nowMillis() - g.cfg.HeartbeatTimeout.Milliseconds()

	evicted, err := g.store.EvictStale(ctx, g.cfg.Name, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict stale: %w", err)
	}
	if evicted > 0 {
		g.logger.Info("evicted stale gate members", "gate", g.cfg.Name, "count", evicted)
	}

	return evicted, nil
}

// Exit removes the member from both sets.
func (g *AdmissionGate) Exit(ctx context.Context, member string) error {
	return g.store.Remove(ctx, g.cfg.Name, member)
}

// Run ticks promotion and eviction until the context is cancelled. The loop
// body is sequential, so a gate's tick never overlaps itself; ticks of
// different gate instances are fully independent.
func (g *AdmissionGate) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.EvictStale(ctx); err != nil {
				g.logger.Error("gate eviction tick failed", "gate", g.cfg.Name, "err", err)
			}
			if _, err := g.Promote(ctx); err != nil {
				g.logger.Error("gate promotion tick failed", "gate", g.cfg.Name, "err", err)
			}
		}
	}
}
