package book

import (
	"context"
)

// Repository defines the contract for book data storage.
type Repository interface {
	GetByID(ctx context.Context, id string) (Book, error)
}
