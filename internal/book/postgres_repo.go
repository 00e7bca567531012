package book

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

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

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Book, error) {
	const query = `
		SELECT id, isbn, title, author, genre, publisher,
		       total_copies, available_copies, version,
		       created_at, updated_at
		FROM books
		WHERE id = $1
		LIMIT 1
	`
	var (
		b         Book
		total     int
		available int
	)
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, id).Scan(
		&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Genre, &b.Publisher,
		&total, &available, &b.Version,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	b.Inventory = RestoreInventory(total, available)
	return b, nil
}
