package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stockKeyPrefix = "stock:"
	dedupKeyPrefix = "consumed:"
	gateKeyPrefix  = "gate:"

	defaultIdempotencyWindow = 30 * time.Minute
)

// tryDecrementScript checks and subtracts in one server-side step. Returns
// the new remaining value, or -1 when the key is absent or the balance is
// insufficient (state untouched).
var tryDecrementScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current < quantity then
	return -1
end

return redis.call('DECRBY', key, quantity)
`)

// enqueueWaitingScript adds a member to the waiting set unless it is already
// waiting or active.
var enqueueWaitingScript = redis.NewScript(`
local waiting = KEYS[1]
local active = KEYS[2]
local member = ARGV[1]

if redis.call('ZSCORE', waiting, member) then
	return 0
end
if redis.call('ZSCORE', active, member) then
	return 0
end

redis.call('ZADD', waiting, ARGV[2], member)
return 1
`)

// heartbeatScript refreshes an active member's score, or removes the member
// when the ticket is single-use. Returns 0 when the member is not active.
var heartbeatScript = redis.NewScript(`
local active = KEYS[1]
local member = ARGV[1]

if not redis.call('ZSCORE', active, member) then
	return 0
end

if ARGV[3] == '1' then
	redis.call('ZREM', active, member)
else
	redis.call('ZADD', active, 'XX', ARGV[2], member)
end
return 1
`)

// promoteScript moves the oldest-scored waiting members into the active set.
// Equal scores fall back to Redis's lexicographic member order. A positive
// capacity recomputes the count against the live active size inside the
// script, keeping capacity-bounded promotion atomic across instances.
var promoteScript = redis.NewScript(`
local waiting = KEYS[1]
local active = KEYS[2]
local count = tonumber(ARGV[1])
local capacity = tonumber(ARGV[3])

if capacity > 0 then
	count = capacity - redis.call('ZCARD', active)
end
if count <= 0 then
	return {}
end

local members = redis.call('ZRANGE', waiting, 0, count - 1)
for _, m in ipairs(members) do
	redis.call('ZREM', waiting, m)
	redis.call('ZADD', active, ARGV[2], m)
end
return members
`)

type RedisAdapter struct {
	client            *redis.Client
	idempotencyWindow time.Duration
}

type RedisOption func(*RedisAdapter)

// WithIdempotencyWindow sets the dedup key retention. Events redelivered
// after the window are treated as new; an accepted, bounded risk.
func WithIdempotencyWindow(d time.Duration) RedisOption {
	return func(r *RedisAdapter) { r.idempotencyWindow = d }
}

func NewRedisAdapter(client *redis.Client, opts ...RedisOption) *RedisAdapter {
	r := &RedisAdapter{
		client:            client,
		idempotencyWindow: defaultIdempotencyWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisAdapter) TryDecrement(ctx context.Context, itemID string, qty int) (int, bool, error) {
	key := stockKeyPrefix + itemID

	result, err := tryDecrementScript.Run(ctx, r.client, []string{key}, qty).Int()
	if err != nil {
		return 0, false, err
	}
	if result < 0 {
		return 0, false, nil
	}

	return result, true, nil
}

func (r *RedisAdapter) Restore(ctx context.Context, itemID string, qty int) error {
	key := stockKeyPrefix + itemID
	return r.client.IncrBy(ctx, key, int64(qty)).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, itemID string, qty int) error {
	key := stockKeyPrefix + itemID
	return r.client.Set(ctx, key, qty, 0).Err()
}

func (r *RedisAdapter) GetStock(ctx context.Context, itemID string) (int, bool, error) {
	key := stockKeyPrefix + itemID

	qty, err := r.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return qty, true, nil
}

func (r *RedisAdapter) MarkSeen(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, dedupKeyPrefix+key, 1, r.idempotencyWindow).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) Forget(ctx context.Context, key string) error {
	return r.client.Del(ctx, dedupKeyPrefix+key).Err()
}

func waitingKey(gate string) string { return gateKeyPrefix + gate + ":waiting" }
func activeKey(gate string) string  { return gateKeyPrefix + gate + ":active" }

func (r *RedisAdapter) EnqueueWaiting(ctx context.Context, gate, member string, score int64) error {
	keys := []string{waitingKey(gate), activeKey(gate)}
	return enqueueWaitingScript.Run(ctx, r.client, keys, member, score).Err()
}

func (r *RedisAdapter) Heartbeat(ctx context.Context, gate, member string, score int64, oneShot bool) (bool, error) {
	flag := "0"
	if oneShot {
		flag = "1"
	}

	result, err := heartbeatScript.Run(ctx, r.client, []string{activeKey(gate)}, member, score, flag).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (r *RedisAdapter) WaitingRank(ctx context.Context, gate, member string) (int64, error) {
	rank, err := r.client.ZRank(ctx, waitingKey(gate), member).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}

	return rank + 1, nil
}

func (r *RedisAdapter) PromoteOldest(ctx context.Context, gate string, count, capacity, score int64) ([]string, error) {
	keys := []string{waitingKey(gate), activeKey(gate)}

	return promoteScript.Run(ctx, r.client, keys, count, score, capacity).StringSlice()
}

func (r *RedisAdapter) EvictStale(ctx context.Context, gate string, olderThan int64) (int64, error) {
	max := "(" + strconv.FormatInt(olderThan, 10)
	return r.client.ZRemRangeByScore(ctx, activeKey(gate), "-inf", max).Result()
}

func (r *RedisAdapter) Remove(ctx context.Context, gate, member string) error {
	pipe := r.client.Pipeline()
	pipe.ZRem(ctx, waitingKey(gate), member)
	pipe.ZRem(ctx, activeKey(gate), member)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisAdapter) ActiveCount(ctx context.Context, gate string) (int64, error) {
	return r.client.ZCard(ctx, activeKey(gate)).Result()
}
