package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hqv2816/stockgate/internal/adapter/storage"
	"github.com/hqv2816/stockgate/internal/config"
)

var (
	seedItemID string
	seedQty    int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed an item's stock in the durable and fast ledgers",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := context.Background()

		mysqlAdapter, db, err := storage.OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		redisAdapter := storage.NewRedisAdapter(rdb)

		if err := mysqlAdapter.UpsertStock(ctx, seedItemID, seedQty); err != nil {
			return err
		}
		if err := redisAdapter.SetStock(ctx, seedItemID, seedQty); err != nil {
			return err
		}

		logger.Info("seeded stock", "item_id", seedItemID, "quantity", seedQty)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedItemID, "item", "", "item id to seed")
	seedCmd.Flags().IntVar(&seedQty, "qty", 0, "quantity to set")
	seedCmd.MarkFlagRequired("item")
}
