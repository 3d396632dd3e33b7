// Package events publishes ledger lifecycle notifications. Publication
// always happens after the state mutation it describes has committed; a
// failed publish is logged, never rolled into the operation's result.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PositionOpenedEvent is emitted when margin is locked and a position record
// becomes live.
type PositionOpenedEvent struct {
	PositionID uint64    `json:"position_id"`
	Trader     uuid.UUID `json:"trader"`
	Direction  string    `json:"direction"`
	Leverage   int       `json:"leverage"`
	Size       int64     `json:"size"`
	OpenPrice  int64     `json:"open_price"`
	OpenFee    int64     `json:"open_fee"`
	OpenedAt   time.Time `json:"opened_at"`
}

// PositionClosedEvent is emitted after a voluntary close has committed.
type PositionClosedEvent struct {
	PositionID uint64    `json:"position_id"`
	Trader     uuid.UUID `json:"trader"`
	ClosePrice int64     `json:"close_price"`
	PnL        int64     `json:"pnl"`
	ClosedAt   time.Time `json:"closed_at"`
}

// PositionLiquidatedEvent is emitted after a forced close has committed and
// the reward has been credited.
type PositionLiquidatedEvent struct {
	PositionID uint64    `json:"position_id"`
	Trader     uuid.UUID `json:"trader"`
	Liquidator uuid.UUID `json:"liquidator"`
	ClosePrice int64     `json:"close_price"`
	PnL        int64     `json:"pnl"`
	Reward     int64     `json:"reward"`
	ClosedAt   time.Time `json:"closed_at"`
}

// OrderEvent describes an order lifecycle transition.
type OrderEvent struct {
	OrderID    uint64    `json:"order_id"`
	Trader     uuid.UUID `json:"trader"`
	Kind       string    `json:"kind"`
	Direction  string    `json:"direction"`
	LimitPrice int64     `json:"limit_price"`
	Size       int64     `json:"size"`
	Leverage   int       `json:"leverage"`
	Status     string    `json:"status"`
	PositionID uint64    `json:"position_id,omitempty"` // set on fill
	At         time.Time `json:"at"`
}

// Publisher delivers lifecycle events to interested consumers.
type Publisher interface {
	PositionOpened(ctx context.Context, event PositionOpenedEvent) error
	PositionClosed(ctx context.Context, event PositionClosedEvent) error
	PositionLiquidated(ctx context.Context, event PositionLiquidatedEvent) error
	OrderPlaced(ctx context.Context, event OrderEvent) error
	OrderFilled(ctx context.Context, event OrderEvent) error
	OrderCancelled(ctx context.Context, event OrderEvent) error
}

// NopPublisher drops every event. Library embedders that do not stream
// events wire this.
type NopPublisher struct{}

func (NopPublisher) PositionOpened(context.Context, PositionOpenedEvent) error { return nil }
func (NopPublisher) PositionClosed(context.Context, PositionClosedEvent) error { return nil }
func (NopPublisher) PositionLiquidated(context.Context, PositionLiquidatedEvent) error {
	return nil
}
func (NopPublisher) OrderPlaced(context.Context, OrderEvent) error { return nil }
func (NopPublisher) OrderFilled(context.Context, OrderEvent) error { return nil }
func (NopPublisher) OrderCancelled(context.Context, OrderEvent) error { return nil }
