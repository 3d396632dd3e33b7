package clickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/thxForu/perp-futures/internal/domain/liquidation"
	"github.com/thxForu/perp-futures/pkg/errors"
)

// Compile-time check
var _ liquidation.Recorder = (*LiquidationRepository)(nil)

// LiquidationRepository implements liquidation.Recorder using ClickHouse
type LiquidationRepository struct {
	conn driver.Conn
}

// NewLiquidationRepository creates a new liquidation analytics repository
func NewLiquidationRepository(conn driver.Conn) *LiquidationRepository {
	return &LiquidationRepository{conn: conn}
}

// RecordLiquidation appends one liquidation row
func (r *LiquidationRepository) RecordLiquidation(ctx context.Context, row liquidation.Row) error {
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO liquidations (
			position_id, trader, liquidator, direction, leverage,
			size, open_price, close_price, pnl, reward, timestamp
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	if err := batch.AppendStruct(&row); err != nil {
		return errors.Wrap(err, "failed to append liquidation")
	}

	return batch.Send()
}

// CountSince returns how many liquidations were recorded at or after from
func (r *LiquidationRepository) CountSince(ctx context.Context, from int64) (uint64, error) {
	var count uint64

	query := `SELECT count() FROM liquidations WHERE toUnixTimestamp(timestamp) >= ?`

	row := r.conn.QueryRow(ctx, query, from)
	if err := row.Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count liquidations")
	}
	return count, nil
}
