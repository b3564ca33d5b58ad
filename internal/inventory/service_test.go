package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type memoryStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	products []*Product
	scopes   map[int64]bool
	nextID   int64

	countCalls int
}

type memoryTx struct {
	store       *memoryStore
	pendingSold map[int64]string
	pendingIns  []Product
	done        bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{scopes: map[int64]bool{DefaultScopeID: true}}
}

func (s *memoryStore) seed(scopeID int64, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		s.nextID++
		s.products = append(s.products, &Product{
			ID:         s.nextID,
			Name:       name,
			ScopeID:    scopeID,
			UploadedAt: time.Now(),
		})
	}
}

func (s *memoryStore) Begin(ctx context.Context) (TxStore, error) {
	s.txMu.Lock()
	return &memoryTx{store: s, pendingSold: map[int64]string{}}, nil
}

func (s *memoryStore) Count(ctx context.Context, scopeID *int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	var n int64
	for _, p := range s.products {
		if !p.Sold && (scopeID == nil || p.ScopeID == *scopeID) {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) ScopeExists(ctx context.Context, scopeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scopes[scopeID], nil
}

func (s *memoryStore) Delete(ctx context.Context, productID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.products {
		if p.ID == productID {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) DeleteMany(ctx context.Context, productIDs []int64) (int64, error) {
	var deleted int64
	for _, id := range productIDs {
		ok, _ := s.Delete(ctx, id)
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryStore) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []Product{}
	for _, p := range s.products {
		if filter.ScopeID != nil && p.ScopeID != *filter.ScopeID {
			continue
		}
		if filter.Sold != nil && p.Sold != *filter.Sold {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if filter.Limit > 0 {
		if filter.Offset >= len(result) {
			return []Product{}, nil
		}
		result = result[filter.Offset:]
		if len(result) > filter.Limit {
			result = result[:filter.Limit]
		}
	}
	return result, nil
}

func (s *memoryStore) Stats(ctx context.Context, scopeID *int64) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, p := range s.products {
		if scopeID != nil && p.ScopeID != *scopeID {
			continue
		}
		st.Total++
		if p.Sold {
			st.Sold++
		} else {
			st.Available++
		}
	}
	return st, nil
}

func (s *memoryStore) RecentUploads(ctx context.Context, scopeID *int64, limit int) ([]RecentUpload, error) {
	products, _ := s.ListProducts(ctx, ProductFilter{ScopeID: scopeID})
	uploads := []RecentUpload{}
	for _, p := range products {
		if len(uploads) == limit {
			break
		}
		uploads = append(uploads, RecentUpload{Name: p.Name, UploadedAt: p.UploadedAt})
	}
	return uploads, nil
}

func (s *memoryStore) RecentSales(ctx context.Context, scopeID *int64, limit int) ([]RecentSale, error) {
	sold := true
	products, _ := s.ListProducts(ctx, ProductFilter{ScopeID: scopeID, Sold: &sold})
	sales := []RecentSale{}
	for _, p := range products {
		if len(sales) == limit {
			break
		}
		sales = append(sales, RecentSale{Name: p.Name, OrderID: *p.OrderID, SoldAt: *p.SoldAt})
	}
	return sales, nil
}

func (tx *memoryTx) ClaimAvailable(ctx context.Context, scopeID int64, n int) ([]ClaimedProduct, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	claimed := []ClaimedProduct{}
	for _, p := range tx.store.products {
		if len(claimed) == n {
			break
		}
		if _, pending := tx.pendingSold[p.ID]; pending {
			// rows this transaction already marked are visible
			// to its own statements
			continue
		}
		if !p.Sold && p.ScopeID == scopeID {
			claimed = append(claimed, ClaimedProduct{ID: p.ID, Name: p.Name})
		}
	}
	return claimed, nil
}

func (tx *memoryTx) MarkSold(ctx context.Context, productID int64, orderID string) error {
	tx.pendingSold[productID] = orderID
	return nil
}

func (tx *memoryTx) Insert(ctx context.Context, name string, scopeID int64) (int64, error) {
	tx.pendingIns = append(tx.pendingIns, Product{Name: name, ScopeID: scopeID})
	return int64(len(tx.pendingIns)), nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	tx.store.mu.Lock()
	now := time.Now()
	for _, p := range tx.store.products {
		if orderID, ok := tx.pendingSold[p.ID]; ok {
			id := orderID
			p.Sold = true
			p.OrderID = &id
			soldAt := now
			p.SoldAt = &soldAt
		}
	}
	for _, ins := range tx.pendingIns {
		tx.store.nextID++
		tx.store.products = append(tx.store.products, &Product{
			ID:         tx.store.nextID,
			Name:       ins.Name,
			ScopeID:    ins.ScopeID,
			UploadedAt: now,
		})
	}
	tx.store.mu.Unlock()
	tx.done = true
	tx.store.txMu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.pendingSold = map[int64]string{}
	tx.pendingIns = nil
	tx.store.txMu.Unlock()
	return nil
}

// shortClaimStore caps every claim at a fixed batch size, emulating claims
// that come back short of the requested quantity while stock remains.
type shortClaimStore struct {
	*memoryStore
	batch int
}

type shortClaimTx struct {
	TxStore
	batch int
}

func (s *shortClaimStore) Begin(ctx context.Context) (TxStore, error) {
	tx, err := s.memoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &shortClaimTx{TxStore: tx, batch: s.batch}, nil
}

func (tx *shortClaimTx) ClaimAvailable(ctx context.Context, scopeID int64, n int) ([]ClaimedProduct, error) {
	if n > tx.batch {
		n = tx.batch
	}
	return tx.TxStore.ClaimAvailable(ctx, scopeID, n)
}

func newTestService(t *testing.T, store StorePort) (*Service, *CountCache, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCountCache(client, time.Minute, true)
	svc := NewService(store, cache, nil, nil, nil, DefaultLimits())
	return svc, cache, func() {
		_ = client.Close()
	}
}

func TestSellClaimsLowestIDsFirst(t *testing.T) {
	store := newMemoryStore()
	store.seed(DefaultScopeID, "A", "B", "C")
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	names, err := svc.Sell(ctx, SellInput{OrderID: "X", Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, names)

	sold := true
	soldProducts, pagination, err := svc.ListProducts(ctx, ProductFilter{Sold: &sold}, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 2, pagination.Total)
	require.Len(t, soldProducts, 2)
	for _, p := range soldProducts {
		require.NotNil(t, p.OrderID)
		require.Equal(t, "X", *p.OrderID)
		require.NotNil(t, p.SoldAt)
	}

	count, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestSellEmptyStock(t *testing.T) {
	store := newMemoryStore()
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()

	_, err := svc.Sell(context.Background(), SellInput{OrderID: "X", Quantity: 1})
	require.ErrorIs(t, err, ErrNoStock)

	stats, err := svc.GetStats(context.Background(), nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Stats.Total)
}

func TestSellInsufficientStockCommitsNothing(t *testing.T) {
	store := newMemoryStore()
	store.seed(DefaultScopeID, "A", "B", "C")
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.Sell(ctx, SellInput{OrderID: "X", Quantity: 10})
	var insufficientErr *InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	require.Equal(t, 3, insufficientErr.Available)

	count, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, count, "no partial sale may survive")
}

func TestSellValidation(t *testing.T) {
	store := newMemoryStore()
	store.seed(DefaultScopeID, "A")
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	var validationErr *ValidationError

	_, err := svc.Sell(ctx, SellInput{OrderID: "  ", Quantity: 1})
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.Sell(ctx, SellInput{OrderID: "X", Quantity: 0})
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.Sell(ctx, SellInput{OrderID: "X", Quantity: 201})
	require.ErrorAs(t, err, &validationErr)

	longOrder := make([]byte, 101)
	for i := range longOrder {
		longOrder[i] = 'x'
	}
	_, err = svc.Sell(ctx, SellInput{OrderID: string(longOrder), Quantity: 1})
	require.ErrorAs(t, err, &validationErr)

	unknown := int64(99)
	_, err = svc.Sell(ctx, SellInput{ScopeID: &unknown, OrderID: "X", Quantity: 1})
	require.ErrorIs(t, err, ErrScopeNotFound)
}

func TestConcurrentSellsPartitionStock(t *testing.T) {
	const (
		workers  = 6
		perOrder = 5
	)
	store := newMemoryStore()
	names := make([]string, workers*perOrder)
	for i := range names {
		names[i] = fmt.Sprintf("unit-%03d", i)
	}
	store.seed(DefaultScopeID, names...)
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	results := make([][]string, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			sold, err := svc.Sell(ctx, SellInput{OrderID: fmt.Sprintf("order-%d", i), Quantity: perOrder})
			if err != nil {
				return err
			}
			results[i] = sold
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, sold := range results {
		require.Len(t, sold, perOrder)
		for _, name := range sold {
			require.False(t, seen[name], "product %s claimed twice", name)
			seen[name] = true
		}
	}
	require.Len(t, seen, workers*perOrder, "stock must be partitioned exactly")

	_, err := svc.Sell(ctx, SellInput{OrderID: "late", Quantity: 1})
	require.ErrorIs(t, err, ErrNoStock)
}

func TestSellRecoversFromShortClaims(t *testing.T) {
	base := newMemoryStore()
	base.seed(DefaultScopeID, "A", "B", "C", "D", "E", "F")
	store := &shortClaimStore{memoryStore: base, batch: 2}
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	names, err := svc.Sell(ctx, SellInput{OrderID: "X", Quantity: 5})
	require.NoError(t, err, "short claims with stock remaining must not fail the sale")
	require.Equal(t, []string{"A", "B", "C", "D", "E"}, names)

	count, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestSellShortClaimsExhaustStock(t *testing.T) {
	base := newMemoryStore()
	base.seed(DefaultScopeID, "A", "B", "C")
	store := &shortClaimStore{memoryStore: base, batch: 1}
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.Sell(ctx, SellInput{OrderID: "X", Quantity: 5})
	var insufficientErr *InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	require.Equal(t, 3, insufficientErr.Available)

	count, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, count, "exhausted claim attempt must roll back entirely")
}

func TestGetCountUsesCacheWithinTTL(t *testing.T) {
	store := newMemoryStore()
	store.seed(DefaultScopeID, "A", "B")
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	first, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	second, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.countCalls, "second read must hit the cache")
}

func TestSellInvalidatesCount(t *testing.T) {
	store := newMemoryStore()
	store.seed(DefaultScopeID, "A", "B", "C")
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	count, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	_, err = svc.Sell(ctx, SellInput{OrderID: "X", Quantity: 2})
	require.NoError(t, err)

	count, err = svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, count, "count must reflect the sale immediately")
}

func TestIngestInvalidatesCount(t *testing.T) {
	store := newMemoryStore()
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	count, err := svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	_, err = svc.Ingest(ctx, IngestInput{Lines: "widget-1\nwidget-2"})
	require.NoError(t, err)

	count, err = svc.GetCount(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestIngestCountsSkippedLines(t *testing.T) {
	store := newMemoryStore()
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()

	result, err := svc.Ingest(context.Background(), IngestInput{Lines: "alpha\nbeta\n\ngamma\n"})
	require.NoError(t, err)
	require.Equal(t, 3, result.Inserted)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "Line 3")
}

func TestIngestRejectsOversizedBatch(t *testing.T) {
	store := newMemoryStore()
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()

	lines := ""
	for i := 0; i < 201; i++ {
		lines += fmt.Sprintf("item-%d\n", i)
	}
	_, err := svc.Ingest(context.Background(), IngestInput{Lines: lines})
	var batchErr *BatchTooLargeError
	require.ErrorAs(t, err, &batchErr)
	require.Equal(t, 201, batchErr.Count)

	stats, err := svc.GetStats(context.Background(), nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Stats.Total, "rejected batch must insert nothing")
}

func TestIngestRejectsAllInvalid(t *testing.T) {
	store := newMemoryStore()
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()

	_, err := svc.Ingest(context.Background(), IngestInput{Lines: ""})
	require.ErrorIs(t, err, ErrNoValidProducts)

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.Ingest(context.Background(), IngestInput{Lines: string(long)})
	require.ErrorIs(t, err, ErrNoValidProducts)
}

func TestDeleteProduct(t *testing.T) {
	store := newMemoryStore()
	store.seed(DefaultScopeID, "A", "B")
	svc, _, cleanup := newTestService(t, store)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, svc.DeleteProduct(ctx, 1))
	require.ErrorIs(t, svc.DeleteProduct(ctx, 1), ErrNotFound)

	deleted, err := svc.DeleteProducts(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}
