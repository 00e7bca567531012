package circulation

import (
	"errors"
)

// Expected orchestration failures. Callers branch with errors.Is; state-machine
// failures (loan.ErrAlreadyReturned, loan.ErrInvalidDueDate, ...) surface from
// the aggregate packages directly.
var (
	// ErrUserIneligible means the borrower is missing or deactivated.
	ErrUserIneligible = errors.New("user is not eligible to borrow")
	// ErrDuplicateLoan means the user already holds an open loan for this title.
	ErrDuplicateLoan = errors.New("user already has an open loan for this book")
	// ErrNoCopiesAvailable means the title's inventory is exhausted.
	ErrNoCopiesAvailable = errors.New("no copies available")
	// ErrBorrowLimitExceeded means the per-user open-loan cap was reached.
	ErrBorrowLimitExceeded = errors.New("borrow limit exceeded")
	// ErrHasOverdueLoans means an outstanding overdue loan blocks new borrowing.
	ErrHasOverdueLoans = errors.New("user has overdue loans")
	// ErrNoActiveLoan means no open loan exists for the (book, user) pair.
	ErrNoActiveLoan = errors.New("no active loan for this book and user")
	// ErrNotOwner means the renewal was attempted by someone other than the holder.
	ErrNotOwner = errors.New("loan belongs to another user")
	// ErrOverdue means the loan must be returned and paid before renewing.
	ErrOverdue = errors.New("loan is overdue")
	// ErrNoCopiesForRenewal means renewal lost out to waiting borrowers.
	ErrNoCopiesForRenewal = errors.New("no copies available for renewal")
	// ErrRenewalLimitReached means the lifetime renewal cap was hit.
	ErrRenewalLimitReached = errors.New("renewal limit reached")
	// ErrInvalidDuration means the requested extension is out of policy bounds.
	ErrInvalidDuration = errors.New("invalid loan duration")
	// ErrCommitFailed means the atomic commit lost a write conflict or hit a
	// storage error. Safe to retry.
	ErrCommitFailed = errors.New("commit failed")
)
