package circulation

import (
	"context"

	"libraryapi/internal/book"
	"libraryapi/internal/loan"
)

// UnitOfWork groups the inventory mutation and the loan mutation of one
// circulation operation into a single atomic commit. Commit reports success;
// it returns false on a write conflict or storage error and never panics.
// A unit of work is used for exactly one commit attempt.
type UnitOfWork interface {
	RegisterBook(b *book.Book)
	RegisterNewLoan(l *loan.Loan)
	RegisterDirtyLoan(l *loan.Loan)
	Commit(ctx context.Context) bool
}

// UnitOfWorkFactory opens a fresh unit of work per request.
type UnitOfWorkFactory func() UnitOfWork
