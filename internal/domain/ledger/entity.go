package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Leverage bounds enforced on every position, independent of the configurable
// order-book limits which must sit inside them.
const (
	MinLeverage = 2
	MaxLeverage = 150
)

// Position represents an open leveraged exposure. The record is atomic: it is
// never partially updated, only created and removed whole.
type Position struct {
	ID     uint64
	Trader uuid.UUID

	Direction Direction
	Leverage  int
	Size      int64 // collateral-denominated, fixed-point units
	OpenPrice int64
	OpenFee   int64

	// Advisory exit levels, not enforced by the ledger core
	TakeProfit int64
	StopLoss   int64

	OpenedAt time.Time
}

// Notional returns the exposure PnL is computed against.
func (p Position) Notional() int64 {
	return p.Size * int64(p.Leverage)
}

// Direction defines long or short
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid checks if the direction is valid
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// String returns string representation
func (d Direction) String() string {
	return string(d)
}
