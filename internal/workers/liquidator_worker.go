package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/thxForu/perp-futures/internal/domain/ledger"
	"github.com/thxForu/perp-futures/internal/domain/liquidation"
	"github.com/thxForu/perp-futures/internal/domain/pricing"
	"github.com/thxForu/perp-futures/pkg/errors"
)

// LiquidatorWorker periodically scans the position ledger and forces closed
// every position under its maintenance threshold at the current price. It
// acts under its own liquidator identity, so the rewards it earns accrue to
// the operator's account.
type LiquidatorWorker struct {
	*BaseWorker
	identity uuid.UUID
	engine   *liquidation.Engine
	ledger   *ledger.Ledger
	prices   pricing.Source
	pair     uint32
	limiter  *rate.Limiter
}

// NewLiquidatorWorker creates a liquidation scan worker. checksPerSecond
// bounds how fast the scan walks the ledger.
func NewLiquidatorWorker(
	identity uuid.UUID,
	engine *liquidation.Engine,
	positions *ledger.Ledger,
	prices pricing.Source,
	pair uint32,
	interval time.Duration,
	checksPerSecond int,
) *LiquidatorWorker {
	return &LiquidatorWorker{
		BaseWorker: NewBaseWorker("liquidator", interval, true),
		identity:   identity,
		engine:     engine,
		ledger:     positions,
		prices:     prices,
		pair:       pair,
		limiter:    rate.NewLimiter(rate.Limit(checksPerSecond), checksPerSecond),
	}
}

// Run scans every open position once against the current price.
func (w *LiquidatorWorker) Run(ctx context.Context) error {
	price, err := w.prices.CurrentPrice(ctx, w.pair)
	if err != nil {
		// No price, no scan; the feed owns staleness.
		if errors.Is(err, errors.ErrPriceUnavailable) {
			w.Log().Debugw("scan skipped, price unavailable", "pair", w.pair)
			w.RecordRun()
			return nil
		}
		w.RecordError(err)
		return err
	}

	var liquidated int
	for _, id := range w.ledger.Snapshot() {
		if err := w.limiter.Wait(ctx); err != nil {
			w.RecordError(err)
			return err
		}

		if !w.engine.CheckLiquidation(id, price) {
			continue
		}

		reward, err := w.engine.Liquidate(ctx, w.identity, id, price)
		if err != nil {
			// Lost the race to another liquidator or the position moved
			// back above water; both are normal under concurrency.
			if errors.Is(err, errors.ErrNotLiquidatable) || errors.Is(err, errors.ErrPositionNotFound) {
				continue
			}
			w.Log().Errorw("liquidation failed", "position_id", id, "error", err)
			continue
		}

		liquidated++
		w.Log().Infow("position liquidated",
			"position_id", id,
			"price", price,
			"reward", reward,
		)
	}

	if liquidated > 0 {
		w.Log().Infow("scan complete", "liquidated", liquidated, "price", price)
	}
	w.RecordRun()
	return nil
}
