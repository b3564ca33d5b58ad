package scopes

import (
	"context"
	"strings"
)

// Service coordinates scope management.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all scopes with product counters.
func (s *Service) List(ctx context.Context) ([]ScopeWithStats, error) {
	return s.repo.List(ctx)
}

// Get returns one scope with product counters.
func (s *Service) Get(ctx context.Context, id int64) (ScopeWithStats, error) {
	return s.repo.GetByID(ctx, id)
}

// Create adds a new scope after checking name uniqueness.
func (s *Service) Create(ctx context.Context, input CreateInput) (int64, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return 0, ErrNameRequired
	}
	taken, err := s.repo.NameTaken(ctx, input.Name, 0)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, ErrDuplicateName
	}
	return s.repo.Create(ctx, input)
}

// Update renames or toggles a scope, keeping names unique.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return ErrNameRequired
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	taken, err := s.repo.NameTaken(ctx, input.Name, id)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateName
	}
	return s.repo.Update(ctx, id, input)
}

// Delete removes an empty, non-default scope.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id == DefaultScopeID {
		return ErrDefaultProtected
	}
	scope, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if scope.TotalProducts > 0 {
		return ErrNotEmpty
	}
	return s.repo.Delete(ctx, id)
}
