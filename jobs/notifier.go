package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Notifier enqueues activity notifications. It satisfies the allocation
// engine's NotifierPort; enqueue failures surface as errors the engine logs
// and ignores, so an unavailable broker never blocks a sale.
type Notifier struct {
	client *asynq.Client
}

// NewNotifier constructs a Notifier over an Asynq client.
func NewNotifier(client *asynq.Client) *Notifier {
	return &Notifier{client: client}
}

// SaleRecorded enqueues a sale notification.
func (n *Notifier) SaleRecorded(ctx context.Context, scopeID int64, orderID string, quantity int) error {
	if n == nil || n.client == nil {
		return nil
	}
	task, err := NewSaleRecordedTask(SaleRecordedPayload{
		InventoryID: scopeID,
		OrderID:     orderID,
		Quantity:    quantity,
		SoldAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// StockIngested enqueues an ingest notification.
func (n *Notifier) StockIngested(ctx context.Context, scopeID int64, inserted int) error {
	if n == nil || n.client == nil {
		return nil
	}
	task, err := NewStockIngestedTask(StockIngestedPayload{
		InventoryID: scopeID,
		Inserted:    inserted,
		IngestedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}
