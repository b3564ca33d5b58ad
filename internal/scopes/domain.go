// Package scopes manages inventory scopes, the partitions of the product pool.
package scopes

import (
	"errors"
	"time"
)

// DefaultScopeID is the reserved scope that always exists.
const DefaultScopeID int64 = 1

// Scope is one named inventory partition.
type Scope struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScopeWithStats adds product counters to a scope for listings.
type ScopeWithStats struct {
	Scope
	TotalProducts     int64 `json:"total_products"`
	AvailableProducts int64 `json:"available_products"`
	SoldProducts      int64 `json:"sold_products"`
}

// CreateInput describes a new scope.
type CreateInput struct {
	Name        string
	Description string
}

// UpdateInput describes scope changes.
type UpdateInput struct {
	Name        string
	Description string
	IsActive    bool
}

// ErrNotFound indicates a missing scope.
var ErrNotFound = errors.New("scopes: inventory not found")

// ErrDuplicateName indicates the scope name is already taken.
var ErrDuplicateName = errors.New("scopes: an inventory with this name already exists")

// ErrDefaultProtected indicates an attempt to remove the default scope.
var ErrDefaultProtected = errors.New("scopes: cannot delete the default inventory")

// ErrNotEmpty indicates a delete of a scope that still holds products.
var ErrNotEmpty = errors.New("scopes: cannot delete an inventory that still has products")

// ErrNameRequired indicates a blank scope name.
var ErrNameRequired = errors.New("scopes: inventory name is required")
