package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MySQLDSN  string // STOCKGATE_MYSQL_DSN (required)
	RedisAddr string // STOCKGATE_REDIS_ADDR (default "localhost:6379")
	NATSURL   string // STOCKGATE_NATS_URL (default nats://127.0.0.1:4222)
	HTTPAddr  string // STOCKGATE_HTTP_ADDR (default ":8080")

	// Admission gates
	EntryCapacity    int64         // STOCKGATE_ENTRY_CAPACITY (default 100)
	PromoteBatch     int64         // STOCKGATE_PROMOTE_BATCH (default 10, order gate)
	PromoteInterval  time.Duration // STOCKGATE_PROMOTE_INTERVAL (default 1s)
	HeartbeatTimeout time.Duration // STOCKGATE_HEARTBEAT_TIMEOUT (default 30s)

	// Consumption propagation
	IdempotencyWindow time.Duration // STOCKGATE_IDEMPOTENCY_WINDOW (default 30m)
	ConsumeBatch      int           // STOCKGATE_CONSUME_BATCH (default 100)
	ConsumeInterval   time.Duration // STOCKGATE_CONSUME_INTERVAL (default 1s)

	// Snapshot export (enabled when bucket is set)
	SnapshotInterval   time.Duration // STOCKGATE_SNAPSHOT_INTERVAL (default 5m)
	SnapshotS3Bucket   string        // STOCKGATE_SNAPSHOT_S3_BUCKET
	SnapshotS3Key      string        // STOCKGATE_SNAPSHOT_S3_KEY (default "stockgate/inventory.jsonl")
	SnapshotS3Region   string        // STOCKGATE_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Endpoint string        // STOCKGATE_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
}

func Load() (*Config, error) {
	c := &Config{
		MySQLDSN:           os.Getenv("STOCKGATE_MYSQL_DSN"),
		RedisAddr:          envOrDefault("STOCKGATE_REDIS_ADDR", "localhost:6379"),
		NATSURL:            envOrDefault("STOCKGATE_NATS_URL", "nats://127.0.0.1:4222"),
		HTTPAddr:           envOrDefault("STOCKGATE_HTTP_ADDR", ":8080"),
		SnapshotS3Bucket:   os.Getenv("STOCKGATE_SNAPSHOT_S3_BUCKET"),
		SnapshotS3Key:      envOrDefault("STOCKGATE_SNAPSHOT_S3_KEY", "stockgate/inventory.jsonl"),
		SnapshotS3Region:   envOrDefault("STOCKGATE_SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotS3Endpoint: os.Getenv("STOCKGATE_SNAPSHOT_S3_ENDPOINT"),
	}
	if c.MySQLDSN == "" {
		return nil, fmt.Errorf("STOCKGATE_MYSQL_DSN is required")
	}

	var err error
	if c.EntryCapacity, err = envInt64("STOCKGATE_ENTRY_CAPACITY", 100); err != nil {
		return nil, err
	}
	if c.PromoteBatch, err = envInt64("STOCKGATE_PROMOTE_BATCH", 10); err != nil {
		return nil, err
	}
	if c.ConsumeBatch, err = envInt("STOCKGATE_CONSUME_BATCH", 100); err != nil {
		return nil, err
	}
	if c.PromoteInterval, err = envDuration("STOCKGATE_PROMOTE_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if c.HeartbeatTimeout, err = envDuration("STOCKGATE_HEARTBEAT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.IdempotencyWindow, err = envDuration("STOCKGATE_IDEMPOTENCY_WINDOW", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.ConsumeInterval, err = envDuration("STOCKGATE_CONSUME_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if c.SnapshotInterval, err = envDuration("STOCKGATE_SNAPSHOT_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
