package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hqv2816/stockgate/internal/adapter/events"
	"github.com/hqv2816/stockgate/internal/adapter/handler"
	"github.com/hqv2816/stockgate/internal/adapter/storage"
	"github.com/hqv2816/stockgate/internal/config"
	"github.com/hqv2816/stockgate/internal/core/service"
	"github.com/hqv2816/stockgate/internal/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stockgate server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Durable ledger (runs migrations).
		mysqlAdapter, db, err := storage.OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to mysql")

		// Fast ledger, dedup store and gate sets.
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info("connected to redis", "addr", cfg.RedisAddr)

		redisAdapter := storage.NewRedisAdapter(rdb,
			storage.WithIdempotencyWindow(cfg.IdempotencyWindow),
		)

		// Consumption event channel.
		bus, err := events.NewNATSBus(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		logger.Info("connected to nats", "url", cfg.NATSURL)

		// Core services.
		reservations := service.NewReservationCoordinator(redisAdapter, logger)
		propagator := service.NewPropagator(bus)
		orders := service.NewOrderService(reservations, mysqlAdapter, redisAdapter, propagator, logger)

		entryGate := service.NewAdmissionGate(redisAdapter, service.GateConfig{
			Name:             "entry",
			OneShot:          true,
			Capacity:         cfg.EntryCapacity,
			HeartbeatTimeout: cfg.HeartbeatTimeout,
		}, logger)
		orderGate := service.NewAdmissionGate(redisAdapter, service.GateConfig{
			Name:             "order",
			PromoteBatch:     cfg.PromoteBatch,
			HeartbeatTimeout: cfg.HeartbeatTimeout,
		}, logger)

		var wg sync.WaitGroup

		// Ledger consumer.
		consumer := service.NewConsumer(mysqlAdapter, redisAdapter, redisAdapter,
			logger, cfg.ConsumeBatch, cfg.ConsumeInterval)
		eventCh, unsubscribe, err := bus.SubscribeConsumption()
		if err != nil {
			return err
		}
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx, eventCh)
		}()

		// Gate schedulers.
		wg.Add(2)
		go func() {
			defer wg.Done()
			entryGate.Run(ctx, cfg.PromoteInterval)
		}()
		go func() {
			defer wg.Done()
			orderGate.Run(ctx, cfg.PromoteInterval)
		}()

		// Optional snapshot export.
		if cfg.SnapshotS3Bucket != "" {
			dest, err := snapshot.NewS3Destination(ctx, cfg.SnapshotS3Bucket,
				cfg.SnapshotS3Key, cfg.SnapshotS3Region, cfg.SnapshotS3Endpoint)
			if err != nil {
				return err
			}
			exporter := snapshot.NewExporter(mysqlAdapter, dest, logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				exporter.Run(ctx, cfg.SnapshotInterval)
			}()
			logger.Info("snapshot export enabled", "bucket", cfg.SnapshotS3Bucket)
		}

		// HTTP surface.
		httpHandler := handler.NewHTTPHandler(orders, entryGate, orderGate)
		mux := http.NewServeMux()
		httpHandler.Register(mux)

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: mux,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Graceful shutdown.
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		cancel()
		wg.Wait()
		logger.Info("stopped")

		return nil
	},
}
