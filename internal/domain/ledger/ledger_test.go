package ledger_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thxForu/perp-futures/internal/domain/ledger"
	"github.com/thxForu/perp-futures/pkg/errors"
)

func newPosition(id uint64, trader uuid.UUID) ledger.Position {
	return ledger.Position{
		ID:        id,
		Trader:    trader,
		Direction: ledger.Long,
		Leverage:  10,
		Size:      1000,
		OpenPrice: 2000,
		OpenedAt:  time.Now().UTC(),
	}
}

func TestLedger_Create(t *testing.T) {
	l := ledger.New()
	trader := uuid.New()

	require.NoError(t, l.Create(newPosition(1, trader)))

	got, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, trader, got.Trader)
	assert.Equal(t, int64(1000), got.Size)
	assert.Equal(t, 1, l.Count())
}

func TestLedger_Create_DuplicateID(t *testing.T) {
	l := ledger.New()
	trader := uuid.New()

	require.NoError(t, l.Create(newPosition(1, trader)))

	err := l.Create(newPosition(1, trader))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateID)
	assert.True(t, errors.IsInvariantViolation(err))
}

func TestLedger_Create_InvalidTrader(t *testing.T) {
	l := ledger.New()

	err := l.Create(newPosition(1, uuid.Nil))
	assert.ErrorIs(t, err, errors.ErrInvalidTrader)
	assert.Equal(t, 0, l.Count())
}

func TestLedger_Create_LeverageBounds(t *testing.T) {
	l := ledger.New()
	trader := uuid.New()

	for _, leverage := range []int{0, 1, 151, 1000} {
		pos := newPosition(1, trader)
		pos.Leverage = leverage
		err := l.Create(pos)
		assert.ErrorIs(t, err, errors.ErrLeverageOutOfRange, "leverage %d", leverage)
	}

	for i, leverage := range []int{2, 75, 150} {
		pos := newPosition(uint64(i+1), trader)
		pos.Leverage = leverage
		assert.NoError(t, l.Create(pos), "leverage %d", leverage)
	}
}

func TestLedger_Remove_NotFound(t *testing.T) {
	l := ledger.New()

	err := l.Remove(42)
	assert.ErrorIs(t, err, errors.ErrPositionNotFound)
}

func TestLedger_Remove_SwapKeepsIndexConsistent(t *testing.T) {
	l := ledger.New()
	trader := uuid.New()

	for id := uint64(1); id <= 5; id++ {
		require.NoError(t, l.Create(newPosition(id, trader)))
	}

	// Remove from the middle: the last id moves into the freed slot.
	require.NoError(t, l.Remove(2))

	listed := l.ListForTrader(trader)
	require.Len(t, listed, 4)

	seen := make(map[uint64]bool)
	for _, pos := range listed {
		seen[pos.ID] = true
	}
	assert.Equal(t, map[uint64]bool{1: true, 3: true, 4: true, 5: true}, seen)

	// Every remaining id stays removable in any order.
	for _, id := range []uint64{5, 1, 4, 3} {
		require.NoError(t, l.Remove(id))
	}
	assert.Empty(t, l.ListForTrader(trader))
	assert.Equal(t, 0, l.Count())

	_, err := l.Get(2)
	assert.ErrorIs(t, err, errors.ErrPositionNotFound)
}

func TestLedger_Remove_LastThenReinsert(t *testing.T) {
	l := ledger.New()
	trader := uuid.New()

	require.NoError(t, l.Create(newPosition(1, trader)))
	require.NoError(t, l.Remove(1))

	// Id reuse of a removed position is allowed at the ledger layer; only
	// live ids collide.
	require.NoError(t, l.Create(newPosition(1, trader)))
	assert.Equal(t, 1, l.Count())
}

func TestLedger_ListForTrader_Isolated(t *testing.T) {
	l := ledger.New()
	alice := uuid.New()
	bob := uuid.New()

	require.NoError(t, l.Create(newPosition(1, alice)))
	require.NoError(t, l.Create(newPosition(2, bob)))
	require.NoError(t, l.Create(newPosition(3, alice)))

	assert.Len(t, l.ListForTrader(alice), 2)
	assert.Len(t, l.ListForTrader(bob), 1)
	assert.Empty(t, l.ListForTrader(uuid.New()))
	assert.Len(t, l.Snapshot(), 3)
}
