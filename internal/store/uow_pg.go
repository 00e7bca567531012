package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"libraryapi/internal/book"
	"libraryapi/internal/circulation"
	"libraryapi/internal/loan"
)

const pgUniqueViolation = "23505"

const updateBookSQL = `
	UPDATE books
	SET total_copies = $1, available_copies = $2, version = version + 1, updated_at = now()
	WHERE id = $3 AND version = $4`

const insertLoanSQL = `
	INSERT INTO loans (id, book_id, user_id, borrow_date, due_date, return_date,
	                   is_returned, fine_amount, condition, renewal_count, notes,
	                   version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, now(), now())`

const updateLoanSQL = `
	UPDATE loans
	SET due_date = $1, return_date = $2, is_returned = $3, fine_amount = $4,
	    condition = $5, renewal_count = $6, notes = $7,
	    version = version + 1, updated_at = now()
	WHERE id = $8 AND version = $9`

// PGUnitOfWork applies all registered mutations in one transaction. Every
// write carries an optimistic version check; a stale version rolls the whole
// transaction back and Commit reports false, so racing requests never corrupt
// the copy counters.
type PGUnitOfWork struct {
	db    *pgxpool.Pool
	log   zerolog.Logger
	book  *book.Book
	fresh []*loan.Loan
	dirty []*loan.Loan
}

// NewUnitOfWorkFactory returns the factory the circulation service opens its
// per-request unit of work with.
func NewUnitOfWorkFactory(db *pgxpool.Pool, log zerolog.Logger) circulation.UnitOfWorkFactory {
	return func() circulation.UnitOfWork {
		return &PGUnitOfWork{db: db, log: log}
	}
}

func (u *PGUnitOfWork) RegisterBook(b *book.Book)      { u.book = b }
func (u *PGUnitOfWork) RegisterNewLoan(l *loan.Loan)   { u.fresh = append(u.fresh, l) }
func (u *PGUnitOfWork) RegisterDirtyLoan(l *loan.Loan) { u.dirty = append(u.dirty, l) }

// Commit attempts the atomic write. Expected contention (stale version, open
// loan already present) and unexpected storage errors both come back as
// false; the distinction only matters for logging.
func (u *PGUnitOfWork) Commit(ctx context.Context) bool {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		u.log.Error().Err(err).Msg("unit of work: begin failed")
		return false
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if u.book != nil {
		if !u.updateBook(ctx, tx) {
			return false
		}
	}
	for _, l := range u.fresh {
		if !u.insertLoan(ctx, tx, l) {
			return false
		}
	}
	for _, l := range u.dirty {
		if !u.updateLoan(ctx, tx, l) {
			return false
		}
	}

	if err := tx.Commit(ctx); err != nil {
		u.log.Error().Err(err).Msg("unit of work: commit failed")
		return false
	}
	return true
}

func (u *PGUnitOfWork) updateBook(ctx context.Context, tx pgx.Tx) bool {
	inv := u.book.Inventory
	tag, err := tx.Exec(ctx, updateBookSQL,
		inv.TotalCopies(), inv.AvailableCopies(), u.book.ID, u.book.Version)
	if err != nil {
		u.log.Error().Err(err).Str("book_id", u.book.ID).Msg("unit of work: book update failed")
		return false
	}
	if tag.RowsAffected() == 0 {
		u.log.Debug().Str("book_id", u.book.ID).Int("version", u.book.Version).
			Msg("unit of work: book version conflict")
		return false
	}
	return true
}

func (u *PGUnitOfWork) insertLoan(ctx context.Context, tx pgx.Tx, l *loan.Loan) bool {
	rec := l.Record()
	_, err := tx.Exec(ctx, insertLoanSQL,
		rec.ID, rec.BookID, rec.UserID, rec.BorrowDate, rec.DueDate, rec.ReturnDate,
		rec.IsReturned, nullDecimal(rec.FineAmount), rec.Condition, rec.RenewalCount, rec.Notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// lost the race for the one-open-loan-per-(book,user) index
			u.log.Debug().Str("loan_id", rec.ID).Msg("unit of work: duplicate open loan")
			return false
		}
		u.log.Error().Err(err).Str("loan_id", rec.ID).Msg("unit of work: loan insert failed")
		return false
	}
	return true
}

func (u *PGUnitOfWork) updateLoan(ctx context.Context, tx pgx.Tx, l *loan.Loan) bool {
	rec := l.Record()
	tag, err := tx.Exec(ctx, updateLoanSQL,
		rec.DueDate, rec.ReturnDate, rec.IsReturned, nullDecimal(rec.FineAmount),
		rec.Condition, rec.RenewalCount, rec.Notes, rec.ID, rec.Version)
	if err != nil {
		u.log.Error().Err(err).Str("loan_id", rec.ID).Msg("unit of work: loan update failed")
		return false
	}
	if tag.RowsAffected() == 0 {
		u.log.Debug().Str("loan_id", rec.ID).Int("version", rec.Version).
			Msg("unit of work: loan version conflict")
		return false
	}
	return true
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
