package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/picklane/picklane/internal/shared"
)

// NotifierPort publishes activity events to an external observer. Delivery is
// best-effort: the service logs enqueue failures and never lets them fail the
// operation that triggered them.
type NotifierPort interface {
	SaleRecorded(ctx context.Context, scopeID int64, orderID string, quantity int) error
	StockIngested(ctx context.Context, scopeID int64, inserted int) error
}

// MetricsPort records domain counters. Satisfied by observability.Metrics.
type MetricsPort interface {
	RecordSale(quantity int)
	RecordSellRejection(reason string)
	RecordIngest(inserted int)
}

// Service is the allocation engine: it orchestrates the product store and the
// count cache so that sales are atomic and reported counts converge after
// every mutation.
type Service struct {
	store    StorePort
	cache    *CountCache
	notifier NotifierPort
	metrics  MetricsPort
	logger   *slog.Logger
	limits   Limits
}

// NewService builds Service. notifier and metrics may be nil.
func NewService(store StorePort, cache *CountCache, notifier NotifierPort, metrics MetricsPort, logger *slog.Logger, limits Limits) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxSaleQuantity <= 0 {
		limits = DefaultLimits()
	}
	return &Service{store: store, cache: cache, notifier: notifier, metrics: metrics, logger: logger, limits: limits}
}

// GetCount answers the availability read path: cache hit wins, a miss reads
// the store and repopulates the cache. Staleness up to one TTL is accepted.
func (s *Service) GetCount(ctx context.Context, scopeID *int64) (int64, error) {
	if n, ok := s.cache.Get(ctx, scopeID); ok {
		return n, nil
	}
	n, err := s.store.Count(ctx, scopeID)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, scopeID, n); err != nil {
		s.logger.Warn("cache count set failed", slog.Any("error", err))
	}
	return n, nil
}

// Sell atomically claims input.Quantity available products in ascending-id
// order, marks them sold under input.OrderID, and returns their names in claim
// order. The whole operation is all-or-nothing: a short claim rolls back and
// reports how many units were available instead of committing a partial sale.
func (s *Service) Sell(ctx context.Context, input SellInput) ([]string, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, &ValidationError{Reason: "order id is required"}
	}
	if len(orderID) > s.limits.MaxOrderIDLen {
		return nil, &ValidationError{Reason: fmt.Sprintf("order id exceeds %d characters", s.limits.MaxOrderIDLen)}
	}
	if input.Quantity < 1 {
		return nil, &ValidationError{Reason: "quantity must be at least 1"}
	}
	if input.Quantity > s.limits.MaxSaleQuantity {
		return nil, &ValidationError{Reason: fmt.Sprintf("quantity cannot exceed %d", s.limits.MaxSaleQuantity)}
	}

	scopeID, err := s.resolveScope(ctx, input.ScopeID)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// A claim can come back short even though stock remains: at read
	// committed, rows discarded by the post-lock recheck are not replaced
	// from beyond the LIMIT window. Rows marked sold here are invisible to
	// the next claim statement, so re-claiming the remainder converges on
	// either the full quantity or genuine exhaustion.
	names := make([]string, 0, input.Quantity)
	for remaining := input.Quantity; remaining > 0; {
		claimed, err := tx.ClaimAvailable(ctx, scopeID, remaining)
		if err != nil {
			return nil, err
		}
		if len(claimed) == 0 {
			break
		}
		for _, c := range claimed {
			if err := tx.MarkSold(ctx, c.ID, orderID); err != nil {
				return nil, err
			}
			names = append(names, c.Name)
		}
		remaining -= len(claimed)
	}
	if len(names) == 0 {
		s.recordRejection("no_stock")
		return nil, ErrNoStock
	}
	if len(names) < input.Quantity {
		s.recordRejection("insufficient_stock")
		return nil, &InsufficientStockError{Available: len(names)}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.invalidateCount(ctx, scopeID)
	if s.metrics != nil {
		s.metrics.RecordSale(input.Quantity)
	}
	if s.notifier != nil {
		if err := s.notifier.SaleRecorded(ctx, scopeID, orderID, input.Quantity); err != nil {
			s.logger.Warn("sale notification failed",
				slog.String("order_id", orderID),
				slog.Any("error", err))
		}
	}
	s.logger.Info("products sold",
		slog.Int("quantity", input.Quantity),
		slog.String("order_id", orderID),
		slog.Int64("inventory_id", scopeID))

	return names, nil
}

// Ingest validates a newline-delimited batch of product names and inserts the
// valid ones in a single transaction. Per-line failures are collected, not
// fatal; a batch over the limit or with zero valid lines fails wholesale
// before any transaction opens.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (IngestResult, error) {
	candidates := splitLines(input.Lines)
	if len(candidates) == 0 {
		return IngestResult{}, ErrNoValidProducts
	}
	if len(candidates) > s.limits.MaxUploadBatch {
		return IngestResult{}, &BatchTooLargeError{Count: len(candidates), Limit: s.limits.MaxUploadBatch}
	}

	valid := make([]string, 0, len(candidates))
	lineErrors := []string{}
	for i, raw := range candidates {
		name := strings.TrimSpace(raw)
		switch {
		case name == "":
			lineErrors = append(lineErrors, fmt.Sprintf("Line %d: product name is empty", i+1))
		case len(name) > s.limits.MaxProductNameLen:
			lineErrors = append(lineErrors, fmt.Sprintf("Line %d: product name is too long (max %d characters)", i+1, s.limits.MaxProductNameLen))
		default:
			valid = append(valid, name)
		}
	}
	if len(valid) == 0 {
		return IngestResult{Skipped: len(candidates), Errors: lineErrors}, ErrNoValidProducts
	}

	scopeID, err := s.resolveScope(ctx, input.ScopeID)
	if err != nil {
		return IngestResult{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, name := range valid {
		if _, err := tx.Insert(ctx, name, scopeID); err != nil {
			return IngestResult{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return IngestResult{}, err
	}

	s.invalidateCount(ctx, scopeID)
	if s.metrics != nil {
		s.metrics.RecordIngest(len(valid))
	}
	if s.notifier != nil {
		if err := s.notifier.StockIngested(ctx, scopeID, len(valid)); err != nil {
			s.logger.Warn("ingest notification failed", slog.Any("error", err))
		}
	}
	s.logger.Info("products ingested",
		slog.Int("inserted", len(valid)),
		slog.Int("skipped", len(candidates)-len(valid)),
		slog.Int64("inventory_id", scopeID))

	return IngestResult{
		Inserted: len(valid),
		Skipped:  len(candidates) - len(valid),
		Errors:   lineErrors,
	}, nil
}

// DeleteProduct removes one product and invalidates the count cache.
func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	if productID < 1 {
		return &ValidationError{Reason: "invalid product id"}
	}
	deleted, err := s.store.Delete(ctx, productID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	s.clearCounts(ctx)
	return nil
}

// DeleteProducts removes a batch of products and returns the count actually
// removed. Missing ids do not fail the call.
func (s *Service) DeleteProducts(ctx context.Context, productIDs []int64) (int64, error) {
	if len(productIDs) == 0 {
		return 0, &ValidationError{Reason: "product ids are required"}
	}
	if len(productIDs) > s.limits.MaxUploadBatch {
		return 0, &BatchTooLargeError{Count: len(productIDs), Limit: s.limits.MaxUploadBatch}
	}
	deleted, err := s.store.DeleteMany(ctx, productIDs)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.clearCounts(ctx)
	}
	return deleted, nil
}

// ListProducts lists products newest-first with optional filters and
// pagination metadata.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter, page, perPage int) ([]Product, shared.Pagination, error) {
	st, err := s.store.Stats(ctx, filter.ScopeID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	total := st.Total
	if filter.Sold != nil {
		if *filter.Sold {
			total = st.Sold
		} else {
			total = st.Available
		}
	}
	pagination := shared.NewPagination(page, perPage, int(total))
	filter.Limit = pagination.PerPage
	filter.Offset = pagination.Offset()
	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, pagination, nil
}

// StatsReport combines pool counters with recent activity.
type StatsReport struct {
	Stats         Stats
	RecentUploads []RecentUpload
	RecentSales   []RecentSale
}

// GetStats aggregates counters and the ten most recent uploads and sales.
func (s *Service) GetStats(ctx context.Context, scopeID *int64) (StatsReport, error) {
	st, err := s.store.Stats(ctx, scopeID)
	if err != nil {
		return StatsReport{}, err
	}
	uploads, err := s.store.RecentUploads(ctx, scopeID, 10)
	if err != nil {
		return StatsReport{}, err
	}
	sales, err := s.store.RecentSales(ctx, scopeID, 10)
	if err != nil {
		return StatsReport{}, err
	}
	return StatsReport{Stats: st, RecentUploads: uploads, RecentSales: sales}, nil
}

// resolveScope applies the default scope and verifies the target exists.
func (s *Service) resolveScope(ctx context.Context, scopeID *int64) (int64, error) {
	id := DefaultScopeID
	if scopeID != nil {
		id = *scopeID
	}
	exists, err := s.store.ScopeExists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrScopeNotFound
	}
	return id, nil
}

func (s *Service) invalidateCount(ctx context.Context, scopeID int64) {
	if err := s.cache.Invalidate(ctx, scopeID); err != nil {
		s.logger.Warn("cache invalidation failed",
			slog.Int64("inventory_id", scopeID),
			slog.Any("error", err))
	}
}

// clearCounts drops the whole count keyspace. Used by delete paths, which do
// not know which scopes the removed rows belonged to.
func (s *Service) clearCounts(ctx context.Context) {
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("cache clear failed", slog.Any("error", err))
	}
}

func (s *Service) recordRejection(reason string) {
	if s.metrics != nil {
		s.metrics.RecordSellRejection(reason)
	}
}

// splitLines splits raw upload text into per-line candidates. A single
// trailing newline does not produce a phantom empty candidate; interior blank
// lines are kept so they can be counted as skipped.
func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, "\n")
}
