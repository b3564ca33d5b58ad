package scopes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists scopes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RepositoryPort abstracts the repository for the service.
type RepositoryPort interface {
	List(ctx context.Context) ([]ScopeWithStats, error)
	GetByID(ctx context.Context, id int64) (ScopeWithStats, error)
	NameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, input CreateInput) (int64, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	Delete(ctx context.Context, id int64) error
}

const scopeWithStatsQuery = `SELECT i.id, i.name, i.description, i.is_active, i.created_at,
COUNT(p.id),
COUNT(p.id) FILTER (WHERE p.sold = FALSE),
COUNT(p.id) FILTER (WHERE p.sold = TRUE)
FROM inventories i
LEFT JOIN products p ON p.inventory_id = i.id`

// List returns every scope with its product counters.
func (r *Repository) List(ctx context.Context) ([]ScopeWithStats, error) {
	rows, err := r.pool.Query(ctx, scopeWithStatsQuery+`
GROUP BY i.id
ORDER BY i.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("scopes: list: %w", err)
	}
	defer rows.Close()

	result := []ScopeWithStats{}
	for rows.Next() {
		var s ScopeWithStats
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.IsActive, &s.CreatedAt,
			&s.TotalProducts, &s.AvailableProducts, &s.SoldProducts); err != nil {
			return nil, fmt.Errorf("scopes: scan: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetByID returns one scope with its product counters.
func (r *Repository) GetByID(ctx context.Context, id int64) (ScopeWithStats, error) {
	var s ScopeWithStats
	err := r.pool.QueryRow(ctx, scopeWithStatsQuery+`
WHERE i.id = $1
GROUP BY i.id`, id).Scan(&s.ID, &s.Name, &s.Description, &s.IsActive, &s.CreatedAt,
		&s.TotalProducts, &s.AvailableProducts, &s.SoldProducts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScopeWithStats{}, ErrNotFound
		}
		return ScopeWithStats{}, fmt.Errorf("scopes: get: %w", err)
	}
	return s, nil
}

// NameTaken reports whether another scope already uses the name.
func (r *Repository) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventories WHERE name = $1 AND id <> $2)`,
		name, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("scopes: name taken: %w", err)
	}
	return taken, nil
}

// Create inserts a new active scope and returns its id.
func (r *Repository) Create(ctx context.Context, input CreateInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO inventories (name, description, is_active, created_at)
VALUES ($1, $2, TRUE, NOW()) RETURNING id`, input.Name, input.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("scopes: create: %w", err)
	}
	return id, nil
}

// Update rewrites name, description and active flag.
func (r *Repository) Update(ctx context.Context, id int64, input UpdateInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inventories SET name = $2, description = $3, is_active = $4
WHERE id = $1`, id, input.Name, input.Description, input.IsActive)
	if err != nil {
		return fmt.Errorf("scopes: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a scope row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inventories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scopes: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
