package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/domain/trading"
	"github.com/thxForu/perp-futures/pkg/errors"
)

// Compile-time check
var _ trading.Recorder = (*TradeHistoryRepository)(nil)

// TradeHistoryRepository implements trading.Recorder using sqlx
type TradeHistoryRepository struct {
	db DBTX
}

// NewTradeHistoryRepository creates a new trade history repository
func NewTradeHistoryRepository(db DBTX) *TradeHistoryRepository {
	return &TradeHistoryRepository{db: db}
}

// Record inserts a closed trade
func (r *TradeHistoryRepository) Record(ctx context.Context, record trading.TradeRecord) error {
	query := `
		INSERT INTO trade_history (
			position_id, trader, direction, leverage,
			size, open_price, close_price, open_fee,
			pnl, outcome, opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err := r.db.ExecContext(ctx, query,
		record.PositionID, record.Trader, record.Direction, record.Leverage,
		record.Size, record.OpenPrice, record.ClosePrice, record.OpenFee,
		record.PnL, record.Outcome.String(), record.OpenedAt, record.ClosedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "record trade %d", record.PositionID)
	}
	return nil
}

// ListByTrader retrieves a trader's trade history, most recent first
func (r *TradeHistoryRepository) ListByTrader(ctx context.Context, trader uuid.UUID, limit int) ([]trading.TradeRecord, error) {
	var records []trading.TradeRecord

	query := `
		SELECT position_id, trader, direction, leverage,
		       size, open_price, close_price, open_fee,
		       pnl, outcome, opened_at, closed_at
		FROM trade_history
		WHERE trader = $1
		ORDER BY closed_at DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &records, query, trader, limit); err != nil {
		return nil, errors.Wrapf(err, "list trades for %s", trader)
	}
	return records, nil
}
