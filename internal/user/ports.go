package user

import (
	"context"
)

// Repository defines the contract for user lookups.
type Repository interface {
	GetByID(ctx context.Context, id string) (User, error)
}
