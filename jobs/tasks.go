// Package jobs defines the background tasks carrying activity notifications.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSaleRecorded is emitted after a sale commits.
	TaskTypeSaleRecorded = "activity:sale_recorded"
	// TaskTypeStockIngested is emitted after an ingest batch commits.
	TaskTypeStockIngested = "activity:stock_ingested"
)

// SaleRecordedPayload describes a committed sale.
type SaleRecordedPayload struct {
	EventID     string    `json:"event_id"`
	InventoryID int64     `json:"inventory_id"`
	OrderID     string    `json:"order_id"`
	Quantity    int       `json:"quantity"`
	SoldAt      time.Time `json:"sold_at"`
}

// StockIngestedPayload describes a committed ingest batch.
type StockIngestedPayload struct {
	EventID     string    `json:"event_id"`
	InventoryID int64     `json:"inventory_id"`
	Inserted    int       `json:"inserted"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// NewSaleRecordedTask constructs an Asynq task for a committed sale.
func NewSaleRecordedTask(payload SaleRecordedPayload) (*asynq.Task, error) {
	if payload.EventID == "" {
		payload.EventID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSaleRecorded, data), nil
}

// NewStockIngestedTask constructs an Asynq task for a committed ingest batch.
func NewStockIngestedTask(payload StockIngestedPayload) (*asynq.Task, error) {
	if payload.EventID == "" {
		payload.EventID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStockIngested, data), nil
}

// HandleSaleRecordedTask processes TaskTypeSaleRecorded tasks.
func HandleSaleRecordedTask(ctx context.Context, t *asynq.Task) error {
	var payload SaleRecordedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("sale recorded",
		slog.String("event_id", payload.EventID),
		slog.String("order_id", payload.OrderID),
		slog.Int("quantity", payload.Quantity),
		slog.Int64("inventory_id", payload.InventoryID))
	return nil
}

// HandleStockIngestedTask processes TaskTypeStockIngested tasks.
func HandleStockIngestedTask(ctx context.Context, t *asynq.Task) error {
	var payload StockIngestedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("stock ingested",
		slog.String("event_id", payload.EventID),
		slog.Int("inserted", payload.Inserted),
		slog.Int64("inventory_id", payload.InventoryID))
	return nil
}
