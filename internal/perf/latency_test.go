package perf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/picklane/picklane/internal/inventory"
)

// benchStore is a minimal in-memory inventory.StorePort for latency runs.
type benchStore struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	names []string
	sold  []bool
}

type benchTx struct {
	store   *benchStore
	pending map[int64]bool
	done    bool
}

func newBenchStore(units int) *benchStore {
	s := &benchStore{names: make([]string, units), sold: make([]bool, units)}
	for i := range s.names {
		s.names[i] = fmt.Sprintf("unit-%05d", i)
	}
	return s
}

func (s *benchStore) Begin(ctx context.Context) (inventory.TxStore, error) {
	s.txMu.Lock()
	return &benchTx{store: s, pending: map[int64]bool{}}, nil
}

func (s *benchStore) Count(ctx context.Context, scopeID *int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sold := range s.sold {
		if !sold {
			n++
		}
	}
	return n, nil
}

func (s *benchStore) ScopeExists(ctx context.Context, scopeID int64) (bool, error) {
	return scopeID == inventory.DefaultScopeID, nil
}

func (s *benchStore) Delete(ctx context.Context, productID int64) (bool, error) {
	return false, nil
}

func (s *benchStore) DeleteMany(ctx context.Context, productIDs []int64) (int64, error) {
	return 0, nil
}

func (s *benchStore) ListProducts(ctx context.Context, filter inventory.ProductFilter) ([]inventory.Product, error) {
	return nil, nil
}

func (s *benchStore) Stats(ctx context.Context, scopeID *int64) (inventory.Stats, error) {
	return inventory.Stats{}, nil
}

func (s *benchStore) RecentUploads(ctx context.Context, scopeID *int64, limit int) ([]inventory.RecentUpload, error) {
	return nil, nil
}

func (s *benchStore) RecentSales(ctx context.Context, scopeID *int64, limit int) ([]inventory.RecentSale, error) {
	return nil, nil
}

func (tx *benchTx) ClaimAvailable(ctx context.Context, scopeID int64, n int) ([]inventory.ClaimedProduct, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	claimed := []inventory.ClaimedProduct{}
	for i, sold := range tx.store.sold {
		if len(claimed) == n {
			break
		}
		id := int64(i + 1)
		if !sold && !tx.pending[id] {
			claimed = append(claimed, inventory.ClaimedProduct{ID: id, Name: tx.store.names[i]})
		}
	}
	return claimed, nil
}

func (tx *benchTx) MarkSold(ctx context.Context, productID int64, orderID string) error {
	tx.pending[productID] = true
	return nil
}

func (tx *benchTx) Insert(ctx context.Context, name string, scopeID int64) (int64, error) {
	return 0, nil
}

func (tx *benchTx) Commit(ctx context.Context) error {
	tx.store.mu.Lock()
	for id := range tx.pending {
		tx.store.sold[id-1] = true
	}
	tx.store.mu.Unlock()
	tx.done = true
	tx.store.txMu.Unlock()
	return nil
}

func (tx *benchTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.txMu.Unlock()
	return nil
}

func TestAllocationLatencyTargets(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newBenchStore(5000)
	cache := inventory.NewCountCache(client, time.Minute, true)
	svc := inventory.NewService(store, cache, nil, nil, nil, inventory.DefaultLimits())
	router := chi.NewRouter()
	inventory.NewHandler(nil, svc).MountRoutes(router)

	timeRequest := func(target string) time.Duration {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		start := time.Now()
		router.ServeHTTP(rec, req)
		elapsed := time.Since(start)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s returned %d: %s", target, rec.Code, rec.Body.String())
		}
		return elapsed
	}

	// Warm the count cache, then sample the cached read path.
	timeRequest("/count")
	cachedSamples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		cachedSamples = append(cachedSamples, timeRequest("/count"))
	}
	if p95 := percentile95(cachedSamples); p95 > 25*time.Millisecond {
		t.Fatalf("cached count latency regression: p95=%s threshold=25ms", p95)
	}

	saleSamples := make([]time.Duration, 0, 50)
	for i := 0; i < 50; i++ {
		saleSamples = append(saleSamples, timeRequest(fmt.Sprintf("/sell?order_id=bench-%d&quantity=10", i)))
	}
	if p95 := percentile95(saleSamples); p95 > 250*time.Millisecond {
		t.Fatalf("sale latency regression: p95=%s threshold=250ms", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
