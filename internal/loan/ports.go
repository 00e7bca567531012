package loan

import (
	"context"
	"time"
)

// Repository defines the contract for loan data storage. Writes go through
// the circulation unit of work, never through this interface.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Loan, error)
	// FindOpenByBookAndUser returns the single open loan for a (book, user)
	// pair, or ErrNotFound. At most one can exist at any time.
	FindOpenByBookAndUser(ctx context.Context, bookID, userID string) (*Loan, error)
	CountOpenByUser(ctx context.Context, userID string) (int, error)
	// HasOverdue reports whether the user holds any open loan past due as of
	// the given instant.
	HasOverdue(ctx context.Context, userID string, asOf time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error)
	ListOverdue(ctx context.Context, asOf time.Time, limit, offset int) ([]Record, error)
}
