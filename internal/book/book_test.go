package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInventory(t *testing.T) {
	inv, err := NewInventory(3)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.TotalCopies())
	assert.Equal(t, 3, inv.AvailableCopies())
	assert.True(t, inv.IsAvailable())

	_, err = NewInventory(-1)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestInventory_BorrowReturn(t *testing.T) {
	inv, _ := NewInventory(1)

	require.NoError(t, inv.Borrow())
	assert.Equal(t, 0, inv.AvailableCopies())
	assert.Equal(t, 1, inv.BorrowedCount())
	assert.False(t, inv.CanBorrow())

	// inventory exhausted
	assert.ErrorIs(t, inv.Borrow(), ErrInvariantViolation)
	assert.Equal(t, 0, inv.AvailableCopies())

	require.NoError(t, inv.Return())
	assert.Equal(t, 1, inv.AvailableCopies())

	// nothing left on loan
	assert.ErrorIs(t, inv.Return(), ErrInvariantViolation)
	assert.Equal(t, 1, inv.AvailableCopies())
}

func TestInventory_RoundTripRestoresAvailable(t *testing.T) {
	inv, _ := NewInventory(5)
	before := inv.AvailableCopies()

	require.NoError(t, inv.Borrow())
	require.NoError(t, inv.Return())

	assert.Equal(t, before, inv.AvailableCopies())
}

func TestInventory_UpdateCopies(t *testing.T) {
	inv := RestoreInventory(10, 4) // 6 borrowed

	require.NoError(t, inv.UpdateCopies(7))
	assert.Equal(t, 7, inv.TotalCopies())
	assert.Equal(t, 1, inv.AvailableCopies())
	assert.Equal(t, 6, inv.BorrowedCount())

	// shrinking below the borrowed count would orphan open loans
	assert.ErrorIs(t, inv.UpdateCopies(5), ErrInvariantViolation)
	assert.ErrorIs(t, inv.UpdateCopies(-1), ErrInvariantViolation)

	require.NoError(t, inv.UpdateCopies(12))
	assert.Equal(t, 12, inv.TotalCopies())
	assert.Equal(t, 6, inv.AvailableCopies())
}

func TestInventory_Restock(t *testing.T) {
	inv := RestoreInventory(2, 0)

	require.NoError(t, inv.Restock(3))
	assert.Equal(t, 5, inv.TotalCopies())
	assert.Equal(t, 3, inv.AvailableCopies())

	assert.ErrorIs(t, inv.Restock(0), ErrInvariantViolation)
	assert.ErrorIs(t, inv.Restock(-2), ErrInvariantViolation)
}

func TestInventory_MarkDamaged(t *testing.T) {
	inv, _ := NewInventory(2)

	require.NoError(t, inv.MarkDamaged())
	assert.Equal(t, 1, inv.TotalCopies())
	assert.Equal(t, 1, inv.AvailableCopies())

	// all remaining copies out on loan: total shrinks, available floors at 0
	out := RestoreInventory(1, 0)
	require.NoError(t, out.MarkDamaged())
	assert.Equal(t, 0, out.TotalCopies())
	assert.Equal(t, 0, out.AvailableCopies())

	assert.ErrorIs(t, out.MarkDamaged(), ErrInvariantViolation)
}

func TestInventory_UtilizationRate(t *testing.T) {
	assert.Equal(t, 0.0, RestoreInventory(0, 0).UtilizationRate())
	assert.InDelta(t, 0.6, RestoreInventory(10, 4).UtilizationRate(), 1e-9)
	assert.Equal(t, 1.0, RestoreInventory(3, 0).UtilizationRate())
}

func TestInventory_InvariantHoldsAcrossMutations(t *testing.T) {
	inv, _ := NewInventory(3)
	check := func() {
		assert.GreaterOrEqual(t, inv.AvailableCopies(), 0)
		assert.LessOrEqual(t, inv.AvailableCopies(), inv.TotalCopies())
	}

	_ = inv.Borrow()
	check()
	_ = inv.Borrow()
	check()
	_ = inv.MarkDamaged()
	check()
	_ = inv.Return()
	check()
	_ = inv.Restock(2)
	check()
	_ = inv.UpdateCopies(4)
	check()
}
