package user

import (
	"context"
	"errors"
)

// Store is the persistence surface the service needs; satisfied by *Repository.
type Store interface {
	Upsert(ctx context.Context, id, email, name, picture string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// Service contains business logic for user accounts.
type Service struct {
	repo Store
}

// NewService creates a new user Service.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Upsert records a successful login, creating the account on first sight and
// refreshing profile fields on every later one.
func (s *Service) Upsert(ctx context.Context, id, email, name, picture string) (*User, error) {
	return s.repo.Upsert(ctx, id, email, name, picture)
}

// GetByID returns a user by their provider subject id.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// IsNotFound returns true when the error indicates a user was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
