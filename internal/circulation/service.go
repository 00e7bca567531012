package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"libraryapi/internal/book"
	"libraryapi/internal/loan"
	"libraryapi/internal/user"
)

// Service orchestrates the borrowing lifecycle: it checks eligibility against
// the policy, mutates the loan record and the copy inventory in memory, and
// commits both through one unit of work. Validation happens before any
// mutation; only the final commit can fail afterwards, in which case the
// in-memory aggregates are simply discarded.
type Service struct {
	books  book.Repository
	users  user.Repository
	loans  loan.Repository
	begin  UnitOfWorkFactory
	policy Policy
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(books book.Repository, users user.Repository, loans loan.Repository,
	begin UnitOfWorkFactory, policy Policy, log zerolog.Logger) *Service {
	return &Service{
		books:  books,
		users:  users,
		loans:  loans,
		begin:  begin,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// BorrowBook lends one copy of a title to a user for durationDays.
func (s *Service) BorrowBook(ctx context.Context, bookID, userID string, durationDays int, notes string) (loan.Record, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return loan.Record{}, ErrUserIneligible
		}
		return loan.Record{}, err
	}
	if !u.IsActive {
		return loan.Record{}, ErrUserIneligible
	}

	if _, err := s.loans.FindOpenByBookAndUser(ctx, bookID, userID); err == nil {
		return loan.Record{}, ErrDuplicateLoan
	} else if !errors.Is(err, loan.ErrNotFound) {
		return loan.Record{}, err
	}

	b, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return loan.Record{}, err
	}
	if !b.Inventory.CanBorrow() {
		return loan.Record{}, ErrNoCopiesAvailable
	}

	openCount, err := s.loans.CountOpenByUser(ctx, userID)
	if err != nil {
		return loan.Record{}, err
	}
	if openCount >= s.policy.MaxActiveLoans {
		return loan.Record{}, ErrBorrowLimitExceeded
	}

	now := s.now()
	overdue, err := s.loans.HasOverdue(ctx, userID, now)
	if err != nil {
		return loan.Record{}, err
	}
	if overdue {
		return loan.Record{}, ErrHasOverdueLoans
	}

	l, err := loan.Create(bookID, userID, durationDays, notes, now)
	if err != nil {
		return loan.Record{}, err
	}
	if err := b.Inventory.Borrow(); err != nil {
		return loan.Record{}, err
	}

	uow := s.begin()
	uow.RegisterBook(&b)
	uow.RegisterNewLoan(l)
	if !uow.Commit(ctx) {
		s.log.Warn().Str("book_id", bookID).Str("user_id", userID).Msg("borrow commit failed")
		return loan.Record{}, ErrCommitFailed
	}

	return l.Record(), nil
}

// ReturnBook closes the user's open loan for a title. When the caller did not
// assess a fine and the loan is past due, the policy fine is applied.
func (s *Service) ReturnBook(ctx context.Context, bookID, userID string, fine *decimal.Decimal, notes string, condition loan.Condition) (loan.Record, error) {
	l, err := s.loans.FindOpenByBookAndUser(ctx, bookID, userID)
	if err != nil {
		if errors.Is(err, loan.ErrNotFound) {
			return loan.Record{}, ErrNoActiveLoan
		}
		return loan.Record{}, err
	}

	now := s.now()
	if fine == nil && l.IsOverdue(now) {
		accrued := l.CalculateFine(s.policy.FinePerDay, now)
		fine = &accrued
	}

	if err := l.MarkReturned(fine, notes, condition, now); err != nil {
		return loan.Record{}, err
	}

	b, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return loan.Record{}, err
	}
	if err := b.Inventory.Return(); err != nil {
		return loan.Record{}, err
	}

	uow := s.begin()
	uow.RegisterBook(&b)
	uow.RegisterDirtyLoan(l)
	if !uow.Commit(ctx) {
		s.log.Warn().Str("loan_id", l.ID()).Msg("return commit failed")
		return loan.Record{}, ErrCommitFailed
	}

	return l.Record(), nil
}

// RenewBorrow extends an open loan by additionalDays. Renewal competes with
// new borrowers: a fully checked-out title cannot be renewed.
func (s *Service) RenewBorrow(ctx context.Context, loanID string, additionalDays int, userID string) (loan.Record, error) {
	if additionalDays <= 0 || additionalDays > s.policy.MaxRenewalDays {
		return loan.Record{}, ErrInvalidDuration
	}

	l, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return loan.Record{}, err
	}
	if l.UserID() != userID {
		return loan.Record{}, ErrNotOwner
	}
	if l.IsReturned() {
		return loan.Record{}, loan.ErrAlreadyReturned
	}

	now := s.now()
	if l.IsOverdue(now) {
		return loan.Record{}, ErrOverdue
	}

	b, err := s.books.GetByID(ctx, l.BookID())
	if err != nil {
		return loan.Record{}, err
	}
	if !b.Inventory.IsAvailable() {
		return loan.Record{}, ErrNoCopiesForRenewal
	}

	if !l.CanRenew(s.policy.MaxRenewalCount) {
		return loan.Record{}, ErrRenewalLimitReached
	}

	newDueDate := l.DueDate().AddDate(0, 0, additionalDays)
	if err := l.Renew(newDueDate, notesForRenewal(additionalDays), now); err != nil {
		return loan.Record{}, err
	}

	uow := s.begin()
	uow.RegisterDirtyLoan(l)
	if !uow.Commit(ctx) {
		s.log.Warn().Str("loan_id", l.ID()).Msg("renew commit failed")
		return loan.Record{}, ErrCommitFailed
	}

	return l.Record(), nil
}

// CalculateFine returns the fine currently owed on a loan.
func (s *Service) CalculateFine(ctx context.Context, loanID string) (decimal.Decimal, error) {
	l, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return l.CalculateFine(s.policy.FinePerDay, s.now()), nil
}

// CanUserBorrow reports whether the user could borrow some title right now.
func (s *Service) CanUserBorrow(ctx context.Context, userID string) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !u.IsActive {
		return false, nil
	}

	overdue, err := s.loans.HasOverdue(ctx, userID, s.now())
	if err != nil {
		return false, err
	}
	if overdue {
		return false, nil
	}

	openCount, err := s.loans.CountOpenByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return openCount < s.policy.MaxActiveLoans, nil
}

// UserLoans returns the user's borrowing history, newest first.
func (s *Service) UserLoans(ctx context.Context, userID string, limit, offset int) ([]loan.Record, error) {
	return s.loans.ListByUser(ctx, userID, limit, offset)
}

// OverdueLoans returns open loans past due, most overdue first.
func (s *Service) OverdueLoans(ctx context.Context, limit, offset int) ([]loan.Record, error) {
	return s.loans.ListOverdue(ctx, s.now(), limit, offset)
}

func notesForRenewal(additionalDays int) string {
	if additionalDays == 1 {
		return "extended by 1 day"
	}
	return fmt.Sprintf("extended by %d days", additionalDays)
}
