package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hqv2816/stockgate/internal/core/domain"
)

// Mock FastLedger

type mockFastLedger struct {
	mu         sync.Mutex
	stock      map[string]int
	restoreErr map[string]error
	restores   []domain.ReservationItem
}

func newMockFastLedger(stock map[string]int) *mockFastLedger {
	if stock == nil {
		stock = make(map[string]int)
	}
	return &mockFastLedger{
		stock:      stock,
		restoreErr: make(map[string]error),
	}
}

func (m *mockFastLedger) TryDecrement(ctx context.Context, itemID string, qty int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.stock[itemID]
	if !ok || current < qty {
		return 0, false, nil
	}
	m.stock[itemID] = current - qty
	return current - qty, true, nil
}

func (m *mockFastLedger) Restore(ctx context.Context, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.restoreErr[itemID]; err != nil {
		return err
	}
	m.stock[itemID] += qty
	m.restores = append(m.restores, domain.ReservationItem{ItemID: itemID, Quantity: qty})
	return nil
}

func (m *mockFastLedger) SetStock(ctx context.Context, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[itemID] = qty
	return nil
}

func (m *mockFastLedger) GetStock(ctx context.Context, itemID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.stock[itemID]
	return qty, ok, nil
}

func (m *mockFastLedger) get(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[itemID]
}

// Mock DedupStore

type mockDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMockDedup() *mockDedup {
	return &mockDedup{seen: make(map[string]bool)}
}

func (m *mockDedup) MarkSeen(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDedup) Forget(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.seen, key)
	return nil
}

// Mock LedgerStore

type mockLedgerStore struct {
	mu           sync.Mutex
	stock        map[string]int
	orders       map[string]*domain.Order
	consumeOrder []string
	createErr    error
}

func newMockLedgerStore(stock map[string]int) *mockLedgerStore {
	if stock == nil {
		stock = make(map[string]int)
	}
	return &mockLedgerStore{
		stock:  stock,
		orders: make(map[string]*domain.Order),
	}
}

func (m *mockLedgerStore) ConsumeStock(ctx context.Context, itemID string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumeOrder = append(m.consumeOrder, itemID)
	current, ok := m.stock[itemID]
	if !ok || current < qty {
		return false, nil
	}
	m.stock[itemID] = current - qty
	return true, nil
}

func (m *mockLedgerStore) GetStock(ctx context.Context, itemID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.stock[itemID]
	return qty, ok, nil
}

func (m *mockLedgerStore) UpsertStock(ctx context.Context, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[itemID] = qty
	return nil
}

func (m *mockLedgerStore) ListStock(ctx context.Context) ([]domain.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]string, 0, len(m.stock))
	for itemID := range m.stock {
		items = append(items, itemID)
	}
	sort.Strings(items)

	stocks := make([]domain.Stock, 0, len(items))
	for _, itemID := range items {
		stocks = append(stocks, domain.Stock{ItemID: itemID, Quantity: m.stock[itemID]})
	}
	return stocks, nil
}

func (m *mockLedgerStore) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	stored := order
	m.orders[order.ID] = &stored
	return nil
}

func (m *mockLedgerStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (m *mockLedgerStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

// Mock EventBus

type mockBus struct {
	mu          sync.Mutex
	published   []domain.ConsumptionEvent
	failedSends int // fail the next N publishes
}

func (m *mockBus) PublishConsumption(ctx context.Context, ev domain.ConsumptionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failedSends > 0 {
		m.failedSends--
		return errors.New("nats: connection closed")
	}
	m.published = append(m.published, ev)
	return nil
}

func (m *mockBus) SubscribeConsumption() (<-chan domain.ConsumptionEvent, func(), error) {
	ch := make(chan domain.ConsumptionEvent)
	close(ch)
	return ch, func() {}, nil
}

func (m *mockBus) Close() error { return nil }

func (m *mockBus) events() []domain.ConsumptionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ConsumptionEvent(nil), m.published...)
}

// Mock GateStore: sorted-set semantics with (score, member) ordering, the
// same tie-break Redis applies to equal scores.

type gateMember struct {
	member string
	score  int64
}

type mockGateStore struct {
	mu      sync.Mutex
	waiting map[string]map[string]int64
	active  map[string]map[string]int64
}

func newMockGateStore() *mockGateStore {
	return &mockGateStore{
		waiting: make(map[string]map[string]int64),
		active:  make(map[string]map[string]int64),
	}
}

func (m *mockGateStore) set(sets map[string]map[string]int64, gate string) map[string]int64 {
	if sets[gate] == nil {
		sets[gate] = make(map[string]int64)
	}
	return sets[gate]
}

func sortedMembers(set map[string]int64) []gateMember {
	members := make([]gateMember, 0, len(set))
	for member, score := range set {
		members = append(members, gateMember{member: member, score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score < members[j].score
		}
		return members[i].member < members[j].member
	})
	return members
}

func (m *mockGateStore) EnqueueWaiting(ctx context.Context, gate, member string, score int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiting := m.set(m.waiting, gate)
	active := m.set(m.active, gate)
	if _, ok := waiting[member]; ok {
		return nil
	}
	if _, ok := active[member]; ok {
		return nil
	}
	waiting[member] = score
	return nil
}

func (m *mockGateStore) Heartbeat(ctx context.Context, gate, member string, score int64, oneShot bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.set(m.active, gate)
	if _, ok := active[member]; !ok {
		return false, nil
	}
	if oneShot {
		delete(active, member)
	} else {
		active[member] = score
	}
	return true, nil
}

func (m *mockGateStore) WaitingRank(ctx context.Context, gate, member string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiting := m.set(m.waiting, gate)
	if _, ok := waiting[member]; !ok {
		return -1, nil
	}
	for i, gm := range sortedMembers(waiting) {
		if gm.member == member {
			return int64(i + 1), nil
		}
	}
	return -1, nil
}

func (m *mockGateStore) PromoteOldest(ctx context.Context, gate string, count, capacity, score int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiting := m.set(m.waiting, gate)
	active := m.set(m.active, gate)

	if capacity > 0 {
		count = capacity - int64(len(active))
	}

	var promoted []string
	for _, gm := range sortedMembers(waiting) {
		if int64(len(promoted)) >= count {
			break
		}
		delete(waiting, gm.member)
		active[gm.member] = score
		promoted = append(promoted, gm.member)
	}
	return promoted, nil
}

func (m *mockGateStore) EvictStale(ctx context.Context, gate string, olderThan int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.set(m.active, gate)
	var evicted int64
	for member, score := range active {
		if score < olderThan {
			delete(active, member)
			evicted++
		}
	}
	return evicted, nil
}

func (m *mockGateStore) Remove(ctx context.Context, gate, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.set(m.waiting, gate), member)
	delete(m.set(m.active, gate), member)
	return nil
}

func (m *mockGateStore) ActiveCount(ctx context.Context, gate string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.set(m.active, gate))), nil
}
