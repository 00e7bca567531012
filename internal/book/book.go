package book

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a book is not found.
var ErrNotFound = errors.New("book not found")

// ErrInvariantViolation is returned when a copy-count mutation would break
// 0 <= available <= total. Reaching it after the commit-layer checks means a
// bug or a lost race.
var ErrInvariantViolation = errors.New("copy inventory invariant violation")

// Inventory tracks the copy counters for one catalogued title. The counters
// are only reachable through the named operations so the invariant holds for
// every reachable state.
type Inventory struct {
	total     int
	available int
}

// NewInventory creates the inventory for a freshly catalogued title. All
// copies start available.
func NewInventory(totalCopies int) (Inventory, error) {
	if totalCopies < 0 {
		return Inventory{}, ErrInvariantViolation
	}
	return Inventory{total: totalCopies, available: totalCopies}, nil
}

// RestoreInventory rebuilds an inventory from stored counters. Storage is
// trusted to have been written through the guarded operations.
func RestoreInventory(totalCopies, availableCopies int) Inventory {
	return Inventory{total: totalCopies, available: availableCopies}
}

func (inv Inventory) TotalCopies() int     { return inv.total }
func (inv Inventory) AvailableCopies() int { return inv.available }

// BorrowedCount is the number of copies currently out on loan.
func (inv Inventory) BorrowedCount() int { return inv.total - inv.available }

func (inv Inventory) IsAvailable() bool { return inv.available > 0 }

// UtilizationRate is borrowed/total, 0 for an empty inventory.
func (inv Inventory) UtilizationRate() float64 {
	if inv.total == 0 {
		return 0
	}
	return float64(inv.BorrowedCount()) / float64(inv.total)
}

func (inv Inventory) CanBorrow() bool { return inv.available > 0 }

// Borrow takes one copy out of circulation for a loan.
func (inv *Inventory) Borrow() error {
	if !inv.CanBorrow() {
		return ErrInvariantViolation
	}
	inv.available--
	return nil
}

// Return puts one borrowed copy back. Fails when nothing is out on loan.
func (inv *Inventory) Return() error {
	if inv.available >= inv.total {
		return ErrInvariantViolation
	}
	inv.available++
	return nil
}

// UpdateCopies changes the total copy count, keeping already-borrowed copies
// accounted for. Shrinking below the borrowed count would orphan open loans
// and is rejected.
func (inv *Inventory) UpdateCopies(newTotal int) error {
	if newTotal < 0 || newTotal < inv.BorrowedCount() {
		return ErrInvariantViolation
	}
	inv.available += newTotal - inv.total
	if inv.available < 0 {
		inv.available = 0
	}
	inv.total = newTotal
	return nil
}

// Restock adds newly acquired copies.
func (inv *Inventory) Restock(additional int) error {
	if additional <= 0 {
		return ErrInvariantViolation
	}
	inv.total += additional
	inv.available += additional
	return nil
}

// MarkDamaged permanently removes one copy from circulation.
func (inv *Inventory) MarkDamaged() error {
	if inv.total <= 0 {
		return ErrInvariantViolation
	}
	inv.total--
	if inv.available > 0 {
		inv.available--
	}
	return nil
}

// Book represents a catalogued title together with its copy inventory.
type Book struct {
	ID        string
	ISBN      string
	Title     string
	Author    string
	Genre     string
	Publisher string
	Inventory Inventory
	// Version is the optimistic-lock stamp checked by the commit layer.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}
