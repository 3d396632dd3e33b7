package orderbook

import (
	"time"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/domain/ledger"
)

// Order is a resting conditional instruction to open a position once market
// conditions permit. It belongs to the book until it reaches a terminal
// state; after a fill the order and the resulting position are independent
// records.
type Order struct {
	ID     uint64
	Trader uuid.UUID

	Kind      Kind
	Direction ledger.Direction

	LimitPrice   int64
	TriggerPrice int64 // stop-limit only
	Size         int64
	Leverage     int

	Status    Status
	Filled    int64
	Remaining int64

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the order's lifetime has passed at now. Expiry is
// a passive condition checked on read, not an active timer.
func (o Order) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Kind defines how an order's executability is evaluated
type Kind string

const (
	KindLimit     Kind = "limit"
	KindStopLimit Kind = "stop_limit"
)

// Valid checks if the kind is valid
func (k Kind) Valid() bool {
	return k == KindLimit || k == KindStopLimit
}

// String returns string representation
func (k Kind) String() string {
	return string(k)
}

// Status defines order lifecycle status
type Status string

const (
	StatusActive    Status = "active"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal returns true if the order can no longer transition
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}
