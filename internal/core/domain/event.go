package domain

// ConsumptionEvent records one finalized order line to be applied to the
// durable ledger. Delivery is at-least-once; IdempotencyKey is unique per
// logical consumption so redeliveries can be dropped.
type ConsumptionEvent struct {
	IdempotencyKey string `json:"idempotency_key"`
	ItemID         string `json:"item_id"`
	Quantity       int    `json:"quantity"`
}
