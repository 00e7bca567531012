package loan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a loan is not found.
	ErrNotFound = errors.New("loan not found")
	// ErrAlreadyReturned is returned for return/renew attempts on a closed loan.
	ErrAlreadyReturned = errors.New("loan already returned")
	// ErrInvalidDueDate is returned when a renewal would not move the due date forward.
	ErrInvalidDueDate = errors.New("new due date must be after the current due date")
	// ErrInvalidDuration is returned when a loan duration is not positive.
	ErrInvalidDuration = errors.New("loan duration must be positive")
	// ErrMissingUser is returned when a loan is created without a borrower.
	ErrMissingUser = errors.New("user id is required")
)

// Condition records the state of the copy when it came back.
type Condition string

const (
	ConditionNone      Condition = "NONE"
	ConditionExcellent Condition = "EXCELLENT"
	ConditionGood      Condition = "GOOD"
	ConditionFair      Condition = "FAIR"
	ConditionPoor      Condition = "POOR"
	ConditionDamaged   Condition = "DAMAGED"
	ConditionLost      Condition = "LOST"
)

func ValidateCondition(c string) error {
	switch Condition(c) {
	case ConditionNone, ConditionExcellent, ConditionGood, ConditionFair,
		ConditionPoor, ConditionDamaged, ConditionLost:
		return nil
	default:
		return fmt.Errorf("invalid condition: %s", c)
	}
}

// Loan is one borrow-to-return lifecycle for a (book, user) pair. It is open
// until returned; returning is terminal, renewing repeats up to policy limits.
// State only moves through the methods below.
type Loan struct {
	id           string
	bookID       string
	userID       string
	borrowDate   time.Time
	dueDate      time.Time
	returnDate   *time.Time
	returned     bool
	fineAmount   *decimal.Decimal
	condition    Condition
	renewalCount int
	notes        string
	version      int
	createdAt    time.Time
	updatedAt    time.Time
}

// Create opens a loan due durationDays from now. The copy condition stays
// None until the copy comes back; MarkReturned records the assessed one and
// falls back to Good when the caller did not inspect it.
func Create(bookID, userID string, durationDays int, notes string, now time.Time) (*Loan, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if durationDays <= 0 {
		return nil, ErrInvalidDuration
	}
	return &Loan{
		id:         uuid.New().String(),
		bookID:     bookID,
		userID:     userID,
		borrowDate: now,
		dueDate:    now.AddDate(0, 0, durationDays),
		condition:  ConditionNone,
		notes:      notes,
		version:    0,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

func (l *Loan) ID() string             { return l.id }
func (l *Loan) BookID() string         { return l.bookID }
func (l *Loan) UserID() string         { return l.userID }
func (l *Loan) BorrowDate() time.Time  { return l.borrowDate }
func (l *Loan) DueDate() time.Time     { return l.dueDate }
func (l *Loan) ReturnDate() *time.Time { return l.returnDate }
func (l *Loan) IsReturned() bool       { return l.returned }
func (l *Loan) Condition() Condition   { return l.condition }
func (l *Loan) RenewalCount() int      { return l.renewalCount }
func (l *Loan) Notes() string          { return l.notes }
func (l *Loan) Version() int           { return l.version }

// FineAmount is the fine stored at return time, nil while none was recorded.
func (l *Loan) FineAmount() *decimal.Decimal {
	if l.fineAmount == nil {
		return nil
	}
	f := *l.fineAmount
	return &f
}

// MarkReturned closes the loan. Valid only while open; the condition defaults
// to Good when the caller did not inspect the copy.
func (l *Loan) MarkReturned(fine *decimal.Decimal, notes string, condition Condition, now time.Time) error {
	if l.returned {
		return ErrAlreadyReturned
	}
	returnedAt := now
	l.returnDate = &returnedAt
	l.returned = true
	if fine != nil {
		f := *fine
		l.fineAmount = &f
	}
	if condition == ConditionNone {
		condition = ConditionGood
	}
	l.condition = condition
	if notes != "" {
		l.appendNote(now, "returned: "+notes)
	}
	l.updatedAt = now
	return nil
}

// Renew extends the due date. The new due date must be strictly later than
// the current one; the caller enforces the renewal-count policy via CanRenew.
func (l *Loan) Renew(newDueDate time.Time, renewalNotes string, now time.Time) error {
	if l.returned {
		return ErrAlreadyReturned
	}
	if !newDueDate.After(l.dueDate) {
		return ErrInvalidDueDate
	}
	l.renewalCount++
	l.dueDate = newDueDate
	if renewalNotes != "" {
		l.appendNote(now, "renewed: "+renewalNotes)
	}
	l.updatedAt = now
	return nil
}

// CanRenew reports whether the loan is still open and under the renewal cap.
func (l *Loan) CanRenew(maxRenewalCount int) bool {
	return !l.returned && l.renewalCount < maxRenewalCount
}

// IsOverdue reports whether an open loan is past its due date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return !l.returned && now.After(l.dueDate)
}

// DaysOverdue is the number of whole days past due, 0 when not overdue.
func (l *Loan) DaysOverdue(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(l.dueDate).Hours() / 24)
}

// CalculateFine returns the stored fine for a returned loan, the accrued
// fine for an overdue one, and zero otherwise.
func (l *Loan) CalculateFine(finePerDay decimal.Decimal, now time.Time) decimal.Decimal {
	if l.returned && l.fineAmount != nil {
		return *l.fineAmount
	}
	if l.IsOverdue(now) {
		return decimal.NewFromInt(int64(l.DaysOverdue(now))).Mul(finePerDay)
	}
	return decimal.Zero
}

// notes is an append-only log; annotations are never rewritten.
func (l *Loan) appendNote(now time.Time, note string) {
	entry := fmt.Sprintf("[%s] %s", now.Format("2006-01-02"), note)
	if l.notes == "" {
		l.notes = entry
		return
	}
	l.notes += "\n" + entry
}

// Record is the persistence/transport snapshot of a loan.
type Record struct {
	ID           string           `json:"id"`
	BookID       string           `json:"book_id"`
	UserID       string           `json:"user_id"`
	BorrowDate   time.Time        `json:"borrow_date"`
	DueDate      time.Time        `json:"due_date"`
	ReturnDate   *time.Time       `json:"return_date,omitempty"`
	IsReturned   bool             `json:"is_returned"`
	FineAmount   *decimal.Decimal `json:"fine_amount,omitempty"`
	Condition    Condition        `json:"condition"`
	RenewalCount int              `json:"renewal_count"`
	Notes        string           `json:"notes,omitempty"`
	Version      int              `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Record snapshots the loan for storage or responses.
func (l *Loan) Record() Record {
	return Record{
		ID:           l.id,
		BookID:       l.bookID,
		UserID:       l.userID,
		BorrowDate:   l.borrowDate,
		DueDate:      l.dueDate,
		ReturnDate:   l.returnDate,
		IsReturned:   l.returned,
		FineAmount:   l.FineAmount(),
		Condition:    l.condition,
		RenewalCount: l.renewalCount,
		Notes:        l.notes,
		Version:      l.version,
		CreatedAt:    l.createdAt,
		UpdatedAt:    l.updatedAt,
	}
}

// Restore rebuilds a loan from its stored snapshot.
func Restore(rec Record) *Loan {
	l := &Loan{
		id:           rec.ID,
		bookID:       rec.BookID,
		userID:       rec.UserID,
		borrowDate:   rec.BorrowDate,
		dueDate:      rec.DueDate,
		returnDate:   rec.ReturnDate,
		returned:     rec.IsReturned,
		condition:    rec.Condition,
		renewalCount: rec.RenewalCount,
		notes:        rec.Notes,
		version:      rec.Version,
		createdAt:    rec.CreatedAt,
		updatedAt:    rec.UpdatedAt,
	}
	if rec.FineAmount != nil {
		f := *rec.FineAmount
		l.fineAmount = &f
	}
	return l
}
