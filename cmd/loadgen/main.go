// loadgen drives concurrent reservations against a running Redis to verify
// the no-oversell property under load: with stock N and M unit requests,
// exactly N must succeed and the counter must end at zero.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hqv2816/stockgate/internal/adapter/storage"
	"github.com/hqv2816/stockgate/internal/core/domain"
	"github.com/hqv2816/stockgate/internal/core/service"
)

func main() {
	var (
		redisAddr     = flag.String("redis", "localhost:6379", "redis address")
		itemID        = flag.String("item", "loadgen-item", "item id")
		initialStock  = flag.Int("stock", 20, "initial stock")
		totalRequests = flag.Int("requests", 50, "concurrent reservation attempts")
		rps           = flag.Float64("rps", 500, "request pacing (requests per second)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect redis", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	adapter := storage.NewRedisAdapter(rdb)
	if err := adapter.SetStock(ctx, *itemID, *initialStock); err != nil {
		logger.Error("failed to set stock", "err", err)
		os.Exit(1)
	}

	coordinator := service.NewReservationCoordinator(adapter, logger)
	limiter := rate.NewLimiter(rate.Limit(*rps), 10)

	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup

	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := limiter.Wait(ctx); err != nil {
				return
			}

			_, err := coordinator.Reserve(ctx, []domain.ReservationItem{
				{ItemID: *itemID, Quantity: 1},
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== LOADGEN RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=====================================")

	expected := int32(*initialStock)
	if *totalRequests < *initialStock {
		expected = int32(*totalRequests)
	}
	if success == expected {
		fmt.Printf("PASS: exactly %d reservations succeeded\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d successes, got %d\n", expected, success)
	}

	finalStock, _, _ := adapter.GetStock(ctx, *itemID)
	fmt.Printf("Final Stock: %d\n", finalStock)

	runGatePhase(ctx, adapter, logger)
}

// runGatePhase registers a burst of members in a scratch entry gate and
// checks that promotion respects the capacity bound and arrival order.
func runGatePhase(ctx context.Context, adapter *storage.RedisAdapter, logger *slog.Logger) {
	const (
		members  = 20
		capacity = 5
	)

	gate := service.NewAdmissionGate(adapter, service.GateConfig{
		Name:             "loadgen",
		OneShot:          true,
		Capacity:         capacity,
		HeartbeatTimeout: 30 * time.Second,
	}, logger)

	tokens := make([]string, members)
	for i := range tokens {
		tokens[i] = uuid.NewString()
		if err := gate.RegisterWait(ctx, tokens[i]); err != nil {
			logger.Error("register failed", "err", err)
			return
		}
	}

	promoted, err := gate.Promote(ctx)
	if err != nil {
		logger.Error("promote failed", "err", err)
		return
	}

	activeCount, err := adapter.ActiveCount(ctx, "loadgen")
	if err != nil {
		logger.Error("active count failed", "err", err)
		return
	}
	if activeCount != capacity {
		fmt.Printf("FAIL: active set holds %d members, want %d\n", activeCount, capacity)
	}

	active := 0
	for _, token := range tokens {
		status, err := gate.Status(ctx, token)
		if err != nil {
			logger.Error("status failed", "err", err)
			return
		}
		if status.Active {
			active++
		}
	}

	if promoted == capacity && active == capacity {
		fmt.Printf("PASS: gate promoted exactly %d of %d members\n", capacity, members)
	} else {
		fmt.Printf("FAIL: expected %d promotions, got %d (%d active)\n", capacity, promoted, active)
	}

	for _, token := range tokens {
		_ = gate.Exit(ctx, token)
	}
}
