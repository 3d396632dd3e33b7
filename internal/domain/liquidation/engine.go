// Package liquidation evaluates open positions against the maintenance
// margin threshold and force-closes the ones that fall below it, paying a
// capped reward to the caller that triggered the check.
package liquidation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/domain/ledger"
	"github.com/thxForu/perp-futures/internal/domain/margin"
	"github.com/thxForu/perp-futures/internal/domain/trading"
	"github.com/thxForu/perp-futures/internal/events"
	"github.com/thxForu/perp-futures/internal/metrics"
	"github.com/thxForu/perp-futures/pkg/errors"
	"github.com/thxForu/perp-futures/pkg/logger"
)

// Params are the risk thresholds and reward rates, in basis points of
// position size.
type Params struct {
	MaintenanceMarginBps int64
	LiquidationFeeBps    int64
	MaxDiscountBps       int64
}

// Recorder receives liquidation rows for analytics after the state change
// has committed.
type Recorder interface {
	RecordLiquidation(ctx context.Context, row Row) error
}

// Row is the analytics record of one liquidation.
type Row struct {
	PositionID uint64    `ch:"position_id"`
	Trader     uuid.UUID `ch:"trader"`
	Liquidator uuid.UUID `ch:"liquidator"`
	Direction  string    `ch:"direction"`
	Leverage   int32     `ch:"leverage"`
	Size       int64     `ch:"size"`
	OpenPrice  int64     `ch:"open_price"`
	ClosePrice int64     `ch:"close_price"`
	PnL        int64     `ch:"pnl"`
	Reward     int64     `ch:"reward"`
	Timestamp  time.Time `ch:"timestamp"`
}

// NopRecorder drops every row.
type NopRecorder struct{}

func (NopRecorder) RecordLiquidation(context.Context, Row) error { return nil }

// Engine performs the risk check and drives forced closes through the
// trading engine.
type Engine struct {
	params    Params
	engine    *trading.Engine
	ledger    *ledger.Ledger
	book      *margin.Book
	events    events.Publisher
	analytics Recorder
	log       *logger.Logger
}

// NewEngine constructs a liquidation engine.
func NewEngine(
	params Params,
	engine *trading.Engine,
	positions *ledger.Ledger,
	book *margin.Book,
	publisher events.Publisher,
	analytics Recorder,
) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if analytics == nil {
		analytics = NopRecorder{}
	}
	return &Engine{
		params:    params,
		engine:    engine,
		ledger:    positions,
		book:      book,
		events:    publisher,
		analytics: analytics,
		log:       logger.Get().With("component", "liquidation_engine"),
	}
}

// CheckLiquidation reports whether the position's remaining value has fallen
// below its maintenance requirement at currentPrice. Unknown ids are simply
// not liquidatable.
func (e *Engine) CheckLiquidation(positionID uint64, currentPrice int64) bool {
	pos, err := e.ledger.Get(positionID)
	if err != nil {
		return false
	}
	return e.check(pos, currentPrice)
}

func (e *Engine) check(pos ledger.Position, currentPrice int64) bool {
	pnl := trading.CalculatePnL(pos, currentPrice)

	value := pos.Size + pnl
	if value < 0 {
		value = 0
	}
	required := pos.Size * e.params.MaintenanceMarginBps / 10_000
	return value < required
}

// Reward returns the capped payout for liquidating a position of the given
// size: the liquidation fee, bounded by the maximum discount.
func (e *Engine) Reward(size int64) int64 {
	fee := size * e.params.LiquidationFeeBps / 10_000
	cap := size * e.params.MaxDiscountBps / 10_000
	if fee < cap {
		return fee
	}
	return cap
}

// Liquidate re-checks the threshold, force-closes the position through the
// trading engine, and credits the reward to the caller. The reward is paid
// in full even when the recovered collateral does not cover it; that
// shortfall is a known property of the protocol, not corrected here. A
// failed reward credit is returned to the caller: the forced close is
// already committed and journaled, only the payout needs retrying.
func (e *Engine) Liquidate(ctx context.Context, caller uuid.UUID, positionID uint64, currentPrice int64) (int64, error) {
	if currentPrice <= 0 {
		return 0, errors.ErrInvalidPrice
	}
	if !e.CheckLiquidation(positionID, currentPrice) {
		return 0, errors.ErrNotLiquidatable
	}

	pos, pnl, err := e.engine.LiquidatePosition(ctx, caller, positionID, currentPrice)
	if err != nil {
		return 0, err
	}
	metrics.LiquidationsTotal.Inc()

	reward := e.Reward(pos.Size)
	if reward > 0 {
		if err := e.book.CreditReward(ctx, caller, reward); err != nil {
			e.log.Errorw("reward credit failed", "position_id", positionID, "liquidator", caller, "error", err)
			return 0, errors.Wrapf(err, "credit reward for position %d", positionID)
		}
		metrics.LiquidationRewards.Add(float64(reward))
	}

	now := time.Now().UTC()
	if err := e.analytics.RecordLiquidation(ctx, Row{
		PositionID: positionID,
		Trader:     pos.Trader,
		Liquidator: caller,
		Direction:  pos.Direction.String(),
		Leverage:   int32(pos.Leverage),
		Size:       pos.Size,
		OpenPrice:  pos.OpenPrice,
		ClosePrice: currentPrice,
		PnL:        pnl,
		Reward:     reward,
		Timestamp:  now,
	}); err != nil {
		e.log.Warnw("liquidation analytics row not recorded", "position_id", positionID, "error", err)
	}

	if err := e.events.PositionLiquidated(ctx, events.PositionLiquidatedEvent{
		PositionID: positionID,
		Trader:     pos.Trader,
		Liquidator: caller,
		ClosePrice: currentPrice,
		PnL:        pnl,
		Reward:     reward,
		ClosedAt:   now,
	}); err != nil {
		e.log.Warnw("liquidation event not published", "position_id", positionID, "error", err)
	}
	return reward, nil
}
