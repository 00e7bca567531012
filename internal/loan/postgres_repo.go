package loan

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const loanColumns = `id, book_id, user_id, borrow_date, due_date, return_date,
	is_returned, fine_amount, condition, renewal_count, notes, version,
	created_at, updated_at`

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec  Record
		fine decimal.NullDecimal
	)
	err := row.Scan(
		&rec.ID, &rec.BookID, &rec.UserID, &rec.BorrowDate, &rec.DueDate,
		&rec.ReturnDate, &rec.IsReturned, &fine, &rec.Condition,
		&rec.RenewalCount, &rec.Notes, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if fine.Valid {
		rec.FineAmount = &fine.Decimal
	}
	return rec, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (*Loan, error) {
	const query = `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 LIMIT 1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rec, err := scanRecord(r.db.QueryRow(timeoutCtx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Restore(rec), nil
}

func (r *PostgresRepo) FindOpenByBookAndUser(ctx context.Context, bookID, userID string) (*Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE book_id = $1 AND user_id = $2 AND NOT is_returned
		LIMIT 1
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rec, err := scanRecord(r.db.QueryRow(timeoutCtx, query, bookID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Restore(rec), nil
}

func (r *PostgresRepo) CountOpenByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM loans WHERE user_id = $1 AND NOT is_returned`
	var count int
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.db.QueryRow(timeoutCtx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresRepo) HasOverdue(ctx context.Context, userID string, asOf time.Time) (bool, error) {
	// served by the partial index on open loans per user
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM loans
			WHERE user_id = $1 AND NOT is_returned AND due_date < $2
		)
	`
	var exists bool
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.db.QueryRow(timeoutCtx, query, userID, asOf).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE user_id = $1
		ORDER BY borrow_date DESC
		LIMIT $2 OFFSET $3
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *PostgresRepo) ListOverdue(ctx context.Context, asOf time.Time, limit, offset int) ([]Record, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE NOT is_returned AND due_date < $1
		ORDER BY due_date ASC
		LIMIT $2 OFFSET $3
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, asOf, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
