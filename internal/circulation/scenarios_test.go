package circulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryapi/internal/book"
	"libraryapi/internal/loan"
	"libraryapi/internal/user"
)

// env is a stateful in-memory store with the same compare-and-swap commit
// semantics as the postgres unit of work. The expectation mocks in
// service_test.go cannot model a real version check, so the multi-step and
// contention scenarios run against this instead.
type env struct {
	mu    sync.Mutex
	users map[string]user.User
	books map[string]bookState
	loans map[string]loan.Record
}

type bookState struct {
	total     int
	available int
	version   int
}

func newEnv() *env {
	return &env{
		users: make(map[string]user.User),
		books: make(map[string]bookState),
		loans: make(map[string]loan.Record),
	}
}

func (e *env) addUser(id string, active bool) {
	e.users[id] = user.User{ID: id, Username: id, IsActive: active}
}

func (e *env) addBook(id string, copies int) {
	e.books[id] = bookState{total: copies, available: copies, version: 1}
}

func (e *env) available(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.books[id].available
}

type envBooks struct{ e *env }

func (r envBooks) GetByID(_ context.Context, id string) (book.Book, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	bs, ok := r.e.books[id]
	if !ok {
		return book.Book{}, book.ErrNotFound
	}
	return book.Book{
		ID:        id,
		Inventory: book.RestoreInventory(bs.total, bs.available),
		Version:   bs.version,
	}, nil
}

type envUsers struct{ e *env }

func (r envUsers) GetByID(_ context.Context, id string) (user.User, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	u, ok := r.e.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type envLoans struct{ e *env }

func (r envLoans) GetByID(_ context.Context, id string) (*loan.Loan, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	rec, ok := r.e.loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	return loan.Restore(rec), nil
}

func (r envLoans) FindOpenByBookAndUser(_ context.Context, bookID, userID string) (*loan.Loan, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	for _, rec := range r.e.loans {
		if rec.BookID == bookID && rec.UserID == userID && !rec.IsReturned {
			return loan.Restore(rec), nil
		}
	}
	return nil, loan.ErrNotFound
}

func (r envLoans) CountOpenByUser(_ context.Context, userID string) (int, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	count := 0
	for _, rec := range r.e.loans {
		if rec.UserID == userID && !rec.IsReturned {
			count++
		}
	}
	return count, nil
}

func (r envLoans) HasOverdue(_ context.Context, userID string, asOf time.Time) (bool, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	for _, rec := range r.e.loans {
		if rec.UserID == userID && !rec.IsReturned && asOf.After(rec.DueDate) {
			return true, nil
		}
	}
	return false, nil
}

func (r envLoans) ListByUser(_ context.Context, userID string, limit, offset int) ([]loan.Record, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	var out []loan.Record
	for _, rec := range r.e.loans {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r envLoans) ListOverdue(_ context.Context, asOf time.Time, limit, offset int) ([]loan.Record, error) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	var out []loan.Record
	for _, rec := range r.e.loans {
		if !rec.IsReturned && asOf.After(rec.DueDate) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type envUoW struct {
	e     *env
	book  *book.Book
	fresh []*loan.Loan
	dirty []*loan.Loan
}

func (u *envUoW) RegisterBook(b *book.Book)      { u.book = b }
func (u *envUoW) RegisterNewLoan(l *loan.Loan)   { u.fresh = append(u.fresh, l) }
func (u *envUoW) RegisterDirtyLoan(l *loan.Loan) { u.dirty = append(u.dirty, l) }

func (u *envUoW) Commit(_ context.Context) bool {
	u.e.mu.Lock()
	defer u.e.mu.Unlock()

	// validate everything before applying anything
	if u.book != nil {
		bs, ok := u.e.books[u.book.ID]
		if !ok || bs.version != u.book.Version {
			return false
		}
	}
	for _, l := range u.fresh {
		for _, rec := range u.e.loans {
			if rec.BookID == l.BookID() && rec.UserID == l.UserID() && !rec.IsReturned {
				return false
			}
		}
	}
	for _, l := range u.dirty {
		cur, ok := u.e.loans[l.ID()]
		if !ok || cur.Version != l.Version() {
			return false
		}
	}

	if u.book != nil {
		u.e.books[u.book.ID] = bookState{
			total:     u.book.Inventory.TotalCopies(),
			available: u.book.Inventory.AvailableCopies(),
			version:   u.book.Version + 1,
		}
	}
	for _, l := range u.fresh {
		rec := l.Record()
		rec.Version = 1
		u.e.loans[rec.ID] = rec
	}
	for _, l := range u.dirty {
		rec := l.Record()
		rec.Version++
		u.e.loans[rec.ID] = rec
	}
	return true
}

func newEnvService(e *env) *Service {
	svc := NewService(envBooks{e}, envUsers{e}, envLoans{e},
		func() UnitOfWork { return &envUoW{e: e} }, DefaultPolicy(), zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

// A single-copy title circulates between two users: the second borrower has
// to wait for the return.
func TestScenario_SingleCopyCirculates(t *testing.T) {
	e := newEnv()
	e.addUser("x", true)
	e.addUser("y", true)
	e.addBook("b1", 1)
	svc := newEnvService(e)
	ctx := context.Background()

	_, err := svc.BorrowBook(ctx, "b1", "x", 14, "")
	require.NoError(t, err)
	assert.Equal(t, 0, e.available("b1"))

	_, err = svc.BorrowBook(ctx, "b1", "y", 14, "")
	assert.ErrorIs(t, err, ErrNoCopiesAvailable)

	_, err = svc.ReturnBook(ctx, "b1", "x", nil, "", loan.ConditionNone)
	require.NoError(t, err)
	assert.Equal(t, 1, e.available("b1"))

	_, err = svc.BorrowBook(ctx, "b1", "y", 14, "")
	require.NoError(t, err)
	assert.Equal(t, 0, e.available("b1"))
}

// The sixth concurrent loan breaks the per-user cap.
func TestScenario_BorrowLimit(t *testing.T) {
	e := newEnv()
	e.addUser("x", true)
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5", "b6"} {
		e.addBook(id, 1)
	}
	svc := newEnvService(e)
	ctx := context.Background()

	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		_, err := svc.BorrowBook(ctx, id, "x", 14, "")
		require.NoError(t, err)
	}

	_, err := svc.BorrowBook(ctx, "b6", "x", 14, "")
	assert.ErrorIs(t, err, ErrBorrowLimitExceeded)
}

// The fourth renewal breaks the lifetime cap; each earlier one pushed the due
// date strictly forward.
func TestScenario_RenewalLimit(t *testing.T) {
	e := newEnv()
	e.addUser("x", true)
	e.addBook("b1", 2)
	svc := newEnvService(e)
	ctx := context.Background()

	rec, err := svc.BorrowBook(ctx, "b1", "x", 14, "")
	require.NoError(t, err)

	due := rec.DueDate
	for i := 1; i <= 3; i++ {
		renewed, err := svc.RenewBorrow(ctx, rec.ID, 7, "x")
		require.NoError(t, err)
		assert.Equal(t, i, renewed.RenewalCount)
		assert.True(t, renewed.DueDate.After(due))
		due = renewed.DueDate
	}

	_, err = svc.RenewBorrow(ctx, rec.ID, 7, "x")
	assert.ErrorIs(t, err, ErrRenewalLimitReached)
}

// Two requests race for the last copy. Exactly one wins; the loser sees a
// clean typed failure and the count never goes negative.
func TestScenario_ConcurrentBorrowLastCopy(t *testing.T) {
	e := newEnv()
	e.addUser("x", true)
	e.addUser("y", true)
	e.addBook("b1", 1)
	svc := newEnvService(e)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{"x", "y"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, errs[i] = svc.BorrowBook(context.Background(), "b1", uid, 14, "")
		}(i, uid)
	}
	wg.Wait()

	var successes, expectedFailures int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errorsIsAny(err, ErrNoCopiesAvailable, ErrCommitFailed):
			expectedFailures++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, expectedFailures)
	assert.Equal(t, 0, e.available("b1"))
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
