package circulation

import (
	"github.com/shopspring/decimal"
)

// Policy carries the lending rules. Values are explicit so a branch can swap
// them without code changes.
type Policy struct {
	// FinePerDay accrues for each whole day an open loan is past due.
	FinePerDay decimal.Decimal
	// MaxRenewalDays bounds a single renewal's extension.
	MaxRenewalDays int
	// MaxRenewalCount is the lifetime renewal cap per loan.
	MaxRenewalCount int
	// MaxActiveLoans caps concurrent open loans per user.
	MaxActiveLoans int
}

func DefaultPolicy() Policy {
	return Policy{
		FinePerDay:      decimal.NewFromFloat(0.50),
		MaxRenewalDays:  30,
		MaxRenewalCount: 3,
		MaxActiveLoans:  5,
	}
}
