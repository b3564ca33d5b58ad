package inventory

import (
	"errors"
	"fmt"
	"time"
)

// DefaultScopeID is the reserved inventory every product belongs to unless a
// caller names another one. It always exists and can never be removed.
const DefaultScopeID int64 = 1

// Product is a single sellable unit. Once Sold flips to true it never reverts;
// OrderID and SoldAt are set exactly once, together with that transition.
type Product struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	ScopeID    int64      `json:"inventory_id"`
	UploadedAt time.Time  `json:"uploaded_at"`
	Sold       bool       `json:"sold"`
	OrderID    *string    `json:"order_id"`
	SoldAt     *time.Time `json:"sold_at"`
}

// ClaimedProduct is the projection returned by the claim step of a sale.
type ClaimedProduct struct {
	ID   int64
	Name string
}

// Limits groups the configurable validation bounds.
type Limits struct {
	MaxSaleQuantity   int
	MaxUploadBatch    int
	MaxProductNameLen int
	MaxOrderIDLen     int
}

// DefaultLimits returns the stock limits used when configuration is absent.
func DefaultLimits() Limits {
	return Limits{
		MaxSaleQuantity:   200,
		MaxUploadBatch:    200,
		MaxProductNameLen: 500,
		MaxOrderIDLen:     100,
	}
}

// SellInput describes one allocation request.
type SellInput struct {
	ScopeID  *int64
	OrderID  string
	Quantity int
}

// IngestInput carries a newline-delimited batch of product names.
type IngestInput struct {
	ScopeID *int64
	Lines   string
}

// IngestResult reports the per-batch outcome of an ingest call.
type IngestResult struct {
	Inserted int
	Skipped  int
	Errors   []string
}

// ProductFilter narrows product listings. Limit and Offset apply only when
// Limit is positive.
type ProductFilter struct {
	ScopeID *int64
	Sold    *bool
	Limit   int
	Offset  int
}

// Stats summarises a product pool.
type Stats struct {
	Total     int64
	Available int64
	Sold      int64
}

// RecentUpload is a recently inserted product.
type RecentUpload struct {
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// RecentSale is a recently sold product.
type RecentSale struct {
	Name    string    `json:"name"`
	OrderID string    `json:"order_id"`
	SoldAt  time.Time `json:"sold_at"`
}

// ErrNoStock indicates a sale found zero available products.
var ErrNoStock = errors.New("inventory: no products available")

// ErrNoValidProducts indicates an ingest batch with nothing insertable.
var ErrNoValidProducts = errors.New("inventory: no valid products to insert")

// ErrNotFound indicates a missing product.
var ErrNotFound = errors.New("inventory: product not found")

// ErrScopeNotFound indicates a reference to an unknown inventory scope.
var ErrScopeNotFound = errors.New("inventory: unknown inventory scope")

// ValidationError reports rejected caller input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "inventory: " + e.Reason
}

// InsufficientStockError reports a sale that asked for more than is available.
// Nothing is committed; Available tells the caller how many units a retry
// could claim.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock, only %d products available", e.Available)
}

// BatchTooLargeError reports an ingest or bulk-delete batch over the limit.
type BatchTooLargeError struct {
	Count int
	Limit int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("inventory: too many items, maximum %d allowed, got %d", e.Limit, e.Count)
}
