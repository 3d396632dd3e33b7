// Package ledger is the authoritative store of open positions and the
// reverse index from trader to position ids. It holds no business logic;
// lifecycle invariants only.
package ledger

import (
	"sync"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/pkg/errors"
)

// Ledger stores live positions keyed by id, with a per-trader index kept
// O(1)-removable via the swap-with-last discipline.
type Ledger struct {
	mu        sync.RWMutex
	positions map[uint64]Position
	byTrader  map[uuid.UUID][]uint64
	// slot of each position id within its trader's index, maintained
	// across swap-removals
	slots map[uint64]int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[uint64]Position),
		byTrader:  make(map[uuid.UUID][]uint64),
		slots:     make(map[uint64]int),
	}
}

// Create inserts a new position record and indexes it under its trader.
// A duplicate id on a live position is an internal invariant violation.
func (l *Ledger) Create(pos Position) error {
	if pos.Trader == uuid.Nil {
		return errors.ErrInvalidTrader
	}
	if pos.Leverage < MinLeverage || pos.Leverage > MaxLeverage {
		return errors.ErrLeverageOutOfRange
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[pos.ID]; ok {
		return errors.ErrDuplicateID
	}

	l.positions[pos.ID] = pos
	index := l.byTrader[pos.Trader]
	l.slots[pos.ID] = len(index)
	l.byTrader[pos.Trader] = append(index, pos.ID)
	return nil
}

// Remove deletes a live position and swap-removes it from its trader's index:
// the last id of the index moves into the freed slot and the index shrinks by
// one. Relative order of the remaining ids is not preserved.
func (l *Ledger) Remove(id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[id]
	if !ok {
		return errors.ErrPositionNotFound
	}

	index := l.byTrader[pos.Trader]
	slot := l.slots[id]
	last := len(index) - 1

	if slot != last {
		moved := index[last]
		index[slot] = moved
		l.slots[moved] = slot
	}
	index = index[:last]

	if len(index) == 0 {
		delete(l.byTrader, pos.Trader)
	} else {
		l.byTrader[pos.Trader] = index
	}
	delete(l.slots, id)
	delete(l.positions, id)
	return nil
}

// Get returns a copy of the position under id.
func (l *Ledger) Get(id uint64) (Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[id]
	if !ok {
		return Position{}, errors.ErrPositionNotFound
	}
	return pos, nil
}

// ListForTrader returns copies of all live positions owned by trader, in
// index order (which is not insertion order after removals).
func (l *Ledger) ListForTrader(trader uuid.UUID) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	index := l.byTrader[trader]
	out := make([]Position, 0, len(index))
	for _, id := range index {
		out = append(out, l.positions[id])
	}
	return out
}

// Snapshot returns the ids of all live positions. Used by scanners; the
// positions behind the ids may be removed concurrently.
func (l *Ledger) Snapshot() []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]uint64, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live positions.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}
