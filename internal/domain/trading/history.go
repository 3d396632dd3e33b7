package trading

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome describes how a position left the ledger.
type Outcome string

const (
	OutcomeClosed     Outcome = "closed"
	OutcomeLiquidated Outcome = "liquidated"
)

// String returns string representation
func (o Outcome) String() string {
	return string(o)
}

// TradeRecord is the immutable journal entry written after a position's
// removal has committed.
type TradeRecord struct {
	PositionID uint64    `db:"position_id"`
	Trader     uuid.UUID `db:"trader"`
	Direction  string    `db:"direction"`
	Leverage   int       `db:"leverage"`
	Size       int64     `db:"size"`
	OpenPrice  int64     `db:"open_price"`
	ClosePrice int64     `db:"close_price"`
	OpenFee    int64     `db:"open_fee"`
	PnL        int64     `db:"pnl"`
	Outcome    Outcome   `db:"outcome"`
	OpenedAt   time.Time `db:"opened_at"`
	ClosedAt   time.Time `db:"closed_at"`
}

// Recorder persists trade records. Failures are logged by the engine and do
// not affect the already-committed state change.
type Recorder interface {
	Record(ctx context.Context, record TradeRecord) error
}

// NopRecorder drops every record.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, TradeRecord) error { return nil }
