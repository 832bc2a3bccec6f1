// Package snapshot periodically exports the durable stock records as JSONL
// to an S3-compatible bucket for offline reconciliation and backup.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hqv2816/stockgate/internal/core/domain"
	"github.com/hqv2816/stockgate/internal/port"
)

// Destination receives an encoded snapshot.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// S3Destination writes JSONL data to an S3-compatible bucket. If endpoint is
// non-empty, path-style addressing is enabled (for MinIO and similar).
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	contentType := "application/x-ndjson"
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// Exporter runs the periodic export loop.
type Exporter struct {
	ledger port.LedgerStore
	dest   Destination
	logger *slog.Logger
}

func NewExporter(ledger port.LedgerStore, dest Destination, logger *slog.Logger) *Exporter {
	return &Exporter{ledger: ledger, dest: dest, logger: logger}
}

func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Export(ctx); err != nil {
				e.logger.Error("snapshot export failed", "err", err)
			}
		}
	}
}

// Export encodes every stock record as one JSON line and writes the result
// to the destination.
func (e *Exporter) Export(ctx context.Context) error {
	stocks, err := e.ledger.ListStock(ctx)
	if err != nil {
		return fmt.Errorf("list stock: %w", err)
	}

	data, err := Encode(stocks)
	if err != nil {
		return err
	}

	return e.dest.Write(ctx, data)
}

// Encode renders stock records as JSONL.
func Encode(stocks []domain.Stock) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, s := range stocks {
		record := map[string]any{
			"item_id":    s.ItemID,
			"stock":      s.Quantity,
			"version":    s.Version,
			"updated_at": s.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("encode snapshot record: %w", err)
		}
	}
	return buf.Bytes(), nil
}
