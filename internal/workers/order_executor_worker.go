package workers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/domain/orderbook"
	"github.com/thxForu/perp-futures/internal/domain/pricing"
	"github.com/thxForu/perp-futures/pkg/errors"
)

// OrderExecutorWorker sweeps expired orders and fills every resting order
// that has become executable at the current price, acting under its own
// executor identity.
type OrderExecutorWorker struct {
	*BaseWorker
	identity uuid.UUID
	book     *orderbook.Book
	prices   pricing.Source
	pair     uint32
}

// NewOrderExecutorWorker creates an order execution worker.
func NewOrderExecutorWorker(
	identity uuid.UUID,
	book *orderbook.Book,
	prices pricing.Source,
	pair uint32,
	interval time.Duration,
) *OrderExecutorWorker {
	return &OrderExecutorWorker{
		BaseWorker: NewBaseWorker("order_executor", interval, true),
		identity:   identity,
		book:       book,
		prices:     prices,
		pair:       pair,
	}
}

// Run expires stale orders, then attempts every active executable order.
func (w *OrderExecutorWorker) Run(ctx context.Context) error {
	if expired := w.book.SweepExpired(time.Now().UTC()); len(expired) > 0 {
		w.Log().Infow("orders expired", "count", len(expired))
	}

	price, err := w.prices.CurrentPrice(ctx, w.pair)
	if err != nil {
		if errors.Is(err, errors.ErrPriceUnavailable) {
			w.Log().Debugw("execution skipped, price unavailable", "pair", w.pair)
			w.RecordRun()
			return nil
		}
		w.RecordError(err)
		return err
	}

	for _, order := range w.book.ActiveSnapshot() {
		if !w.book.IsExecutable(order, price) {
			continue
		}

		positionID, err := w.book.Execute(ctx, w.identity, order.ID, price)
		if err != nil {
			// The order may have been cancelled, filled, or priced out
			// between the snapshot and the attempt.
			if errors.Is(err, errors.ErrNotExecutable) || errors.Is(err, errors.ErrOrderNotFound) {
				continue
			}
			w.Log().Errorw("order execution failed", "order_id", order.ID, "error", err)
			continue
		}

		w.Log().Infow("order filled",
			"order_id", order.ID,
			"position_id", positionID,
			"price", price,
		)
	}

	w.RecordRun()
	return nil
}
