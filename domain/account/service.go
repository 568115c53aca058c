package account

import (
	"context"
	"errors"
	"sort"
)

// Common errors for account operations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoAccounts      = errors.New("no accounts available")
)

// Service provides business logic for account access.
type Service struct {
	repo Repository
}

// NewService creates a new account service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetAccount retrieves an account by ID.
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// ListAccounts retrieves all accounts sorted by ID so runs process them in a
// stable order.
func (s *Service) ListAccounts(ctx context.Context) ([]*Account, error) {
	accounts, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})

	return accounts, nil
}
