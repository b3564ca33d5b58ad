package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists products in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// TxStore is a transaction-scoped handle over the product table. Callers
// acquire it with Begin, perform claim/mark/insert operations, and must end it
// with exactly one Commit on the success path; a deferred Rollback covers every
// other exit.
type TxStore interface {
	ClaimAvailable(ctx context.Context, scopeID int64, n int) ([]ClaimedProduct, error)
	MarkSold(ctx context.Context, productID int64, orderID string) error
	Insert(ctx context.Context, name string, scopeID int64) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// StorePort abstracts the store for the allocation service.
type StorePort interface {
	Begin(ctx context.Context) (TxStore, error)
	Count(ctx context.Context, scopeID *int64) (int64, error)
	ScopeExists(ctx context.Context, scopeID int64) (bool, error)
	Delete(ctx context.Context, productID int64) (bool, error)
	DeleteMany(ctx context.Context, productIDs []int64) (int64, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	Stats(ctx context.Context, scopeID *int64) (Stats, error)
	RecentUploads(ctx context.Context, scopeID *int64, limit int) ([]RecentUpload, error)
	RecentSales(ctx context.Context, scopeID *int64, limit int) ([]RecentSale, error)
}

type txStore struct {
	tx pgx.Tx
}

// Begin opens a read-committed transaction. Row locks taken by ClaimAvailable
// serialize competing claims on the same scope; see the FOR UPDATE note there.
func (s *Store) Begin(ctx context.Context) (TxStore, error) {
	if s == nil {
		return nil, errors.New("inventory store not initialised")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("inventory: begin tx: %w", err)
	}
	return &txStore{tx: tx}, nil
}

// Count returns the number of available products, optionally scoped.
func (s *Store) Count(ctx context.Context, scopeID *int64) (int64, error) {
	var n int64
	var err error
	if scopeID == nil {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE sold = FALSE`).Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE sold = FALSE AND inventory_id = $1`, *scopeID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: count: %w", err)
	}
	return n, nil
}

// ScopeExists reports whether an inventory scope row exists.
func (s *Store) ScopeExists(ctx context.Context, scopeID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventories WHERE id = $1)`, scopeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("inventory: scope exists: %w", err)
	}
	return exists, nil
}

// Delete removes one product regardless of sold state. The boolean reports
// whether a row was actually removed.
func (s *Store) Delete(ctx context.Context, productID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return false, fmt.Errorf("inventory: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteMany removes a batch of products and returns the count actually
// removed. Missing ids are skipped, not errors.
func (s *Store) DeleteMany(ctx context.Context, productIDs []int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return 0, fmt.Errorf("inventory: delete many: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListProducts returns products newest-first, optionally filtered by scope and
// sold state.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := `SELECT id, name, inventory_id, uploaded_at, sold, order_id, sold_at FROM products`
	args := []any{}
	where := ""
	if filter.Sold != nil {
		args = append(args, *filter.Sold)
		where = fmt.Sprintf(" WHERE sold = $%d", len(args))
	}
	if filter.ScopeID != nil {
		args = append(args, *filter.ScopeID)
		if where == "" {
			where = fmt.Sprintf(" WHERE inventory_id = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND inventory_id = $%d", len(args))
		}
	}
	query += where + ` ORDER BY uploaded_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.ScopeID, &p.UploadedAt, &p.Sold, &p.OrderID, &p.SoldAt); err != nil {
			return nil, fmt.Errorf("inventory: scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	return products, nil
}

// Stats aggregates total/available/sold counts, optionally scoped.
func (s *Store) Stats(ctx context.Context, scopeID *int64) (Stats, error) {
	query := `SELECT COUNT(*),
COUNT(*) FILTER (WHERE sold = FALSE),
COUNT(*) FILTER (WHERE sold = TRUE)
FROM products`
	args := []any{}
	if scopeID != nil {
		query += ` WHERE inventory_id = $1`
		args = append(args, *scopeID)
	}
	var st Stats
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&st.Total, &st.Available, &st.Sold); err != nil {
		return Stats{}, fmt.Errorf("inventory: stats: %w", err)
	}
	return st, nil
}

// RecentUploads lists the most recently inserted products.
func (s *Store) RecentUploads(ctx context.Context, scopeID *int64, limit int) ([]RecentUpload, error) {
	query := `SELECT name, uploaded_at FROM products`
	args := []any{}
	if scopeID != nil {
		query += ` WHERE inventory_id = $1`
		args = append(args, *scopeID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY uploaded_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: recent uploads: %w", err)
	}
	defer rows.Close()

	uploads := []RecentUpload{}
	for rows.Next() {
		var u RecentUpload
		if err := rows.Scan(&u.Name, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("inventory: scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// RecentSales lists the most recently sold products.
func (s *Store) RecentSales(ctx context.Context, scopeID *int64, limit int) ([]RecentSale, error) {
	query := `SELECT name, order_id, sold_at FROM products WHERE sold = TRUE`
	args := []any{}
	if scopeID != nil {
		query += ` AND inventory_id = $1`
		args = append(args, *scopeID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY sold_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: recent sales: %w", err)
	}
	defer rows.Close()

	sales := []RecentSale{}
	for rows.Next() {
		var sale RecentSale
		if err := rows.Scan(&sale.Name, &sale.OrderID, &sale.SoldAt); err != nil {
			return nil, fmt.Errorf("inventory: scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// ClaimAvailable selects up to n available products in ascending-id order.
// FOR UPDATE locks the selected rows: a competing claim for the same scope
// blocks until this transaction ends and then re-evaluates the sold predicate,
// so two concurrent sales can never claim overlapping rows. The result can be
// short of n even when stock remains, because LIMIT is applied before the
// locks are taken and rows discarded by the recheck are not replaced; callers
// compensate by re-claiming the remainder within the same transaction.
func (t *txStore) ClaimAvailable(ctx context.Context, scopeID int64, n int) ([]ClaimedProduct, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name FROM products
WHERE sold = FALSE AND inventory_id = $1
ORDER BY id ASC
LIMIT $2
FOR UPDATE`, scopeID, n)
	if err != nil {
		return nil, fmt.Errorf("inventory: claim available: %w", err)
	}
	defer rows.Close()

	claimed := []ClaimedProduct{}
	for rows.Next() {
		var c ClaimedProduct
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("inventory: scan claim: %w", err)
		}
		claimed = append(claimed, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: claim available: %w", err)
	}
	return claimed, nil
}

// MarkSold transitions one product to sold, binding the order id and sale
// time. Not idempotent; the caller claims each row at most once.
func (t *txStore) MarkSold(ctx context.Context, productID int64, orderID string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET sold = TRUE, order_id = $2, sold_at = NOW()
WHERE id = $1`, productID, orderID)
	if err != nil {
		return fmt.Errorf("inventory: mark sold: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("inventory: mark sold: product %d vanished mid-transaction", productID)
	}
	return nil
}

// Insert creates a new available product and returns its assigned id.
func (t *txStore) Insert(ctx context.Context, name string, scopeID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO products (name, inventory_id, uploaded_at, sold)
VALUES ($1, $2, NOW(), FALSE) RETURNING id`, name, scopeID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inventory: insert: %w", err)
	}
	return id, nil
}

func (t *txStore) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("inventory: commit tx: %w", err)
	}
	return nil
}

// Rollback is a no-op after Commit; pgx reports ErrTxClosed which is swallowed
// so the handle is safe to release with defer.
func (t *txStore) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("inventory: rollback tx: %w", err)
	}
	return nil
}
