package account

import "context"

// Repository defines the interface for loading accounts from a credential
// store. Implementations exist for maFile directories and MongoDB.
type Repository interface {
	// FindByID retrieves an account by its platform user id.
	// Returns nil if not found.
	FindByID(ctx context.Context, id string) (*Account, error)

	// FindAll retrieves all accounts.
	FindAll(ctx context.Context) ([]*Account, error)
}
