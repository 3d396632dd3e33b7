// Package trading implements the position lifecycle: margin reservation and
// open, PnL realization and close, and the forced-close path used by the
// liquidation engine. It is the sole mutator of the ledger and the sole
// caller of margin lock/release on the account book.
package trading

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/domain/access"
	"github.com/thxForu/perp-futures/internal/domain/ledger"
	"github.com/thxForu/perp-futures/internal/domain/margin"
	"github.com/thxForu/perp-futures/internal/events"
	"github.com/thxForu/perp-futures/internal/metrics"
	"github.com/thxForu/perp-futures/pkg/errors"
	"github.com/thxForu/perp-futures/pkg/logger"
	"github.com/thxForu/perp-futures/pkg/sequence"
)

// Config holds the engine's fee parameters.
type Config struct {
	// FeeRateBps is the open fee in basis points of position size
	FeeRateBps int64
}

// Engine executes position mutations. Every mutation serializes on the
// owning account's lock and fully commits ledger and margin-book state
// before any event or journal write is issued.
type Engine struct {
	cfg     Config
	ledger  *ledger.Ledger
	book    *margin.Book
	ids     *sequence.Generator
	acl     access.Controller
	events  events.Publisher
	history Recorder
	locks   *accountLocker
	log     *logger.Logger
}

// NewEngine constructs a trading engine.
func NewEngine(
	cfg Config,
	positions *ledger.Ledger,
	book *margin.Book,
	ids *sequence.Generator,
	acl access.Controller,
	publisher events.Publisher,
	history Recorder,
) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if history == nil {
		history = NopRecorder{}
	}
	return &Engine{
		cfg:     cfg,
		ledger:  positions,
		book:    book,
		ids:     ids,
		acl:     acl,
		events:  publisher,
		history: history,
		locks:   newAccountLocker(),
		log:     logger.Get().With("component", "trading_engine"),
	}
}

// OpenParams captures the data required to open a position.
type OpenParams struct {
	Trader         uuid.UUID
	Direction      ledger.Direction
	Leverage       int
	Size           int64
	TakeProfit     int64
	StopLoss       int64
	ReferencePrice int64
}

func (p OpenParams) validate() error {
	if p.Trader == uuid.Nil {
		return errors.ErrInvalidTrader
	}
	if !p.Direction.Valid() {
		return errors.Wrap(errors.ErrInvalidInput, "direction")
	}
	if p.Leverage < ledger.MinLeverage || p.Leverage > ledger.MaxLeverage {
		return errors.ErrLeverageOutOfRange
	}
	if p.Size <= 0 {
		return errors.ErrInvalidSize
	}
	if p.ReferencePrice <= 0 {
		return errors.ErrInvalidPrice
	}
	return nil
}

// OpenPosition collects the open fee, reserves margin, and creates a
// position at the reference price. The fee debit and margin lock commit
// before the position becomes visible, so no reader ever observes a position
// unbacked by collateral.
func (e *Engine) OpenPosition(ctx context.Context, p OpenParams) (uint64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	required, fee := RequiredMargin(p.Size, p.Leverage, e.cfg.FeeRateBps)
	stake := required - fee

	lock := e.locks.get(p.Trader)
	lock.Lock()

	if err := e.book.LockMarginWithFee(p.Trader, stake, fee); err != nil {
		lock.Unlock()
		if errors.Is(err, errors.ErrInsufficientAvailable) {
			return 0, errors.ErrInsufficientMargin
		}
		return 0, errors.Wrap(err, "lock margin")
	}

	id, err := e.ids.Next()
	if err != nil {
		e.mustRefund(p.Trader, stake, fee)
		lock.Unlock()
		return 0, err
	}

	pos := ledger.Position{
		ID:         id,
		Trader:     p.Trader,
		Direction:  p.Direction,
		Leverage:   p.Leverage,
		Size:       p.Size,
		OpenPrice:  p.ReferencePrice,
		OpenFee:    fee,
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
		OpenedAt:   time.Now().UTC(),
	}
	if err := e.ledger.Create(pos); err != nil {
		e.mustRefund(p.Trader, stake, fee)
		lock.Unlock()
		return 0, errors.Wrap(err, "create position")
	}
	lock.Unlock()

	metrics.PositionsOpen.Inc()
	metrics.TradesOpened.Inc()

	if err := e.events.PositionOpened(ctx, events.PositionOpenedEvent{
		PositionID: id,
		Trader:     p.Trader,
		Direction:  p.Direction.String(),
		Leverage:   p.Leverage,
		Size:       p.Size,
		OpenPrice:  p.ReferencePrice,
		OpenFee:    fee,
		OpenedAt:   pos.OpenedAt,
	}); err != nil {
		e.log.Warnw("position opened event not published", "position_id", id, "error", err)
	}
	return id, nil
}

// ClosePosition realizes PnL at the reference price, releases the position's
// margin, and removes the record. Only the owner may close. The ledger
// removal commits before any profit credit, closing the reentrancy window.
func (e *Engine) ClosePosition(ctx context.Context, trader uuid.UUID, positionID uint64, referencePrice int64) (int64, error) {
	if referencePrice <= 0 {
		return 0, errors.ErrInvalidPrice
	}

	pos, err := e.ledger.Get(positionID)
	if err != nil {
		return 0, err
	}
	if pos.Trader != trader {
		return 0, errors.Wrapf(errors.ErrUnauthorized, "position %d", positionID)
	}

	lock := e.locks.get(trader)
	lock.Lock()

	pos, err = e.ledger.Get(positionID)
	if err != nil || pos.Trader != trader {
		lock.Unlock()
		return 0, errors.ErrPositionNotFound
	}

	pnl, err := e.settle(pos, referencePrice)
	lock.Unlock()
	if err != nil {
		return 0, err
	}

	closedAt := time.Now().UTC()
	e.afterClose(ctx, pos, referencePrice, pnl, OutcomeClosed, closedAt)

	if err := e.events.PositionClosed(ctx, events.PositionClosedEvent{
		PositionID: positionID,
		Trader:     trader,
		ClosePrice: referencePrice,
		PnL:        pnl,
		ClosedAt:   closedAt,
	}); err != nil {
		e.log.Warnw("position closed event not published", "position_id", positionID, "error", err)
	}
	return pnl, nil
}

// LiquidatePosition is the forced-close path. It bypasses the owner check
// but is callable only with the liquidator capability; the reward payout
// stays with the caller so the capping logic lives next to the risk check.
// Returns the removed position and its realized PnL.
func (e *Engine) LiquidatePosition(ctx context.Context, caller uuid.UUID, positionID uint64, referencePrice int64) (ledger.Position, int64, error) {
	if err := e.acl.RequireRole(caller, access.RoleLiquidator); err != nil {
		return ledger.Position{}, 0, err
	}
	if referencePrice <= 0 {
		return ledger.Position{}, 0, errors.ErrInvalidPrice
	}

	pos, err := e.ledger.Get(positionID)
	if err != nil {
		return ledger.Position{}, 0, err
	}

	lock := e.locks.get(pos.Trader)
	lock.Lock()

	pos, err = e.ledger.Get(positionID)
	if err != nil {
		lock.Unlock()
		return ledger.Position{}, 0, err
	}

	pnl, err := e.settle(pos, referencePrice)
	lock.Unlock()
	if err != nil {
		return ledger.Position{}, 0, err
	}

	e.afterClose(ctx, pos, referencePrice, pnl, OutcomeLiquidated, time.Now().UTC())
	return pos, pnl, nil
}

// settle releases the position's margin reservation, removes the record,
// and credits positive PnL, in that order. Caller holds the account lock.
// The released amount is the locked stake only; the open fee was collected
// at open and stays collected. A realized loss is not debited: the released
// stake already reflects it and the shortfall is absorbed by the pool.
func (e *Engine) settle(pos ledger.Position, referencePrice int64) (int64, error) {
	pnl := CalculatePnL(pos, referencePrice)
	release := pos.Size / int64(pos.Leverage)

	if err := e.book.ReleaseMargin(pos.Trader, release); err != nil {
		return 0, errors.Wrapf(err, "release margin for position %d", pos.ID)
	}
	if err := e.ledger.Remove(pos.ID); err != nil {
		// The reservation was already returned; re-lock to keep the
		// book aligned with the still-live position.
		e.mustLock(pos.Trader, release)
		return 0, errors.Wrapf(err, "remove position %d", pos.ID)
	}
	if pnl > 0 {
		if err := e.book.CreditProfit(pos.Trader, pnl); err != nil {
			return 0, errors.Wrapf(err, "credit profit for position %d", pos.ID)
		}
	}
	return pnl, nil
}

func (e *Engine) afterClose(ctx context.Context, pos ledger.Position, closePrice, pnl int64, outcome Outcome, closedAt time.Time) {
	metrics.PositionsOpen.Dec()
	metrics.TradesClosed.WithLabelValues(outcome.String()).Inc()

	if err := e.history.Record(ctx, TradeRecord{
		PositionID: pos.ID,
		Trader:     pos.Trader,
		Direction:  pos.Direction.String(),
		Leverage:   pos.Leverage,
		Size:       pos.Size,
		OpenPrice:  pos.OpenPrice,
		ClosePrice: closePrice,
		OpenFee:    pos.OpenFee,
		PnL:        pnl,
		Outcome:    outcome,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   closedAt,
	}); err != nil {
		e.log.Warnw("trade record not journaled", "position_id", pos.ID, "error", err)
	}
}

// FeeRateBps exposes the configured fee rate for collaborators that compute
// required margin the same way, such as the order book.
func (e *Engine) FeeRateBps() int64 {
	return e.cfg.FeeRateBps
}

func (e *Engine) mustRefund(account uuid.UUID, stake, fee int64) {
	if err := e.book.RefundMarginWithFee(account, stake, fee); err != nil {
		e.log.Errorw("rollback refund failed", "account", account, "stake", stake, "fee", fee, "error", err)
	}
}

func (e *Engine) mustLock(account uuid.UUID, amount int64) {
	if err := e.book.LockMargin(account, amount); err != nil {
		e.log.Errorw("rollback lock failed", "account", account, "amount", amount, "error", err)
	}
}
