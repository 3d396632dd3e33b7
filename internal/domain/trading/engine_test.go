package trading_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thxForu/perp-futures/internal/domain/access"
	"github.com/thxForu/perp-futures/internal/domain/ledger"
	"github.com/thxForu/perp-futures/internal/domain/margin"
	"github.com/thxForu/perp-futures/internal/domain/trading"
	"github.com/thxForu/perp-futures/internal/events"
	"github.com/thxForu/perp-futures/pkg/errors"
	"github.com/thxForu/perp-futures/pkg/sequence"
)

// capturePublisher records published events in order.
type capturePublisher struct {
	mu         sync.Mutex
	opened     []events.PositionOpenedEvent
	closed     []events.PositionClosedEvent
	liquidated []events.PositionLiquidatedEvent
}

func (p *capturePublisher) PositionOpened(_ context.Context, e events.PositionOpenedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = append(p.opened, e)
	return nil
}

func (p *capturePublisher) PositionClosed(_ context.Context, e events.PositionClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, e)
	return nil
}

func (p *capturePublisher) PositionLiquidated(_ context.Context, e events.PositionLiquidatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.liquidated = append(p.liquidated, e)
	return nil
}

func (p *capturePublisher) OrderPlaced(context.Context, events.OrderEvent) error    { return nil }
func (p *capturePublisher) OrderFilled(context.Context, events.OrderEvent) error    { return nil }
func (p *capturePublisher) OrderCancelled(context.Context, events.OrderEvent) error { return nil }

type fixture struct {
	ledger *ledger.Ledger
	book   *margin.Book
	acl    *access.StaticController
	engine *trading.Engine
	pub    *capturePublisher
}

func newFixture(t *testing.T, feeRateBps int64) *fixture {
	t.Helper()

	f := &fixture{
		ledger: ledger.New(),
		book:   margin.NewBook(nil),
		acl:    access.NewStaticController(),
		pub:    &capturePublisher{},
	}
	f.engine = trading.NewEngine(
		trading.Config{FeeRateBps: feeRateBps},
		f.ledger, f.book, sequence.New(1), f.acl, f.pub, nil,
	)
	return f
}

func (f *fixture) fund(t *testing.T, trader uuid.UUID, amount int64) {
	t.Helper()
	require.NoError(t, f.book.Deposit(context.Background(), trader, amount))
}

func openParams(trader uuid.UUID) trading.OpenParams {
	return trading.OpenParams{
		Trader:         trader,
		Direction:      ledger.Long,
		Leverage:       10,
		Size:           1000,
		ReferencePrice: 2000,
	}
}

func TestCalculatePnL_Long(t *testing.T) {
	pos := ledger.Position{Direction: ledger.Long, Size: 1000, Leverage: 10, OpenPrice: 2000}

	assert.Equal(t, int64(1000), trading.CalculatePnL(pos, 2200))
	assert.Equal(t, int64(-1000), trading.CalculatePnL(pos, 1800))
	assert.Equal(t, int64(0), trading.CalculatePnL(pos, 2000))
}

func TestCalculatePnL_Short(t *testing.T) {
	pos := ledger.Position{Direction: ledger.Short, Size: 1000, Leverage: 10, OpenPrice: 2000}

	assert.Equal(t, int64(-1000), trading.CalculatePnL(pos, 2200))
	assert.Equal(t, int64(1000), trading.CalculatePnL(pos, 1800))
}

func TestCalculatePnL_TruncatesMagnitudeBeforeSign(t *testing.T) {
	// notional 10000, diff 3, open 2000: exact magnitude 15. With diff 1
	// the exact value is 5, and with odd notionals truncation must go
	// toward zero on the magnitude for losses too.
	pos := ledger.Position{Direction: ledger.Long, Size: 999, Leverage: 7, OpenPrice: 2000}
	notional := int64(999 * 7)

	up := trading.CalculatePnL(pos, 2001)
	assert.Equal(t, notional*1/2000, up)

	down := trading.CalculatePnL(pos, 1999)
	assert.Equal(t, -(notional * 1 / 2000), down)
	assert.Equal(t, -up, down)
}

func TestRequiredMargin(t *testing.T) {
	required, fee := trading.RequiredMargin(1000, 10, 8)
	assert.Equal(t, int64(0), fee) // 1000*8/10000 truncates to 0
	assert.Equal(t, int64(100), required)

	required, fee = trading.RequiredMargin(10_000, 20, 100)
	assert.Equal(t, int64(100), fee)
	assert.Equal(t, int64(600), required)
}

func TestOpenPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	f.fund(t, trader, 10_000)

	id, err := f.engine.OpenPosition(ctx, openParams(trader))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	pos, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), pos.OpenPrice)
	assert.Equal(t, int64(10), pos.OpenFee) // 1000*100/10000

	// The stake 1000/10 is locked; the fee is collected, not locked.
	state := f.book.BalanceOf(trader)
	assert.Equal(t, int64(100), state.Locked)
	assert.Equal(t, int64(9_990), state.Total)

	require.Len(t, f.pub.opened, 1)
	assert.Equal(t, id, f.pub.opened[0].PositionID)
}

func TestOpenPosition_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	f.fund(t, trader, 1_000_000)

	for _, leverage := range []int{0, 1, 151} {
		p := openParams(trader)
		p.Leverage = leverage
		_, err := f.engine.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, errors.ErrLeverageOutOfRange, "leverage %d", leverage)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	}
	for _, leverage := range []int{2, 150} {
		p := openParams(trader)
		p.Leverage = leverage
		_, err := f.engine.OpenPosition(ctx, p)
		assert.NoError(t, err, "leverage %d", leverage)
	}

	p := openParams(trader)
	p.Size = 0
	_, err := f.engine.OpenPosition(ctx, p)
	assert.ErrorIs(t, err, errors.ErrInvalidSize)

	p = openParams(trader)
	p.ReferencePrice = 0
	_, err = f.engine.OpenPosition(ctx, p)
	assert.ErrorIs(t, err, errors.ErrInvalidPrice)

	p = openParams(trader)
	p.Trader = uuid.Nil
	_, err = f.engine.OpenPosition(ctx, p)
	assert.ErrorIs(t, err, errors.ErrInvalidTrader)

	p = openParams(trader)
	p.Direction = ledger.Direction("sideways")
	_, err = f.engine.OpenPosition(ctx, p)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestOpenPosition_InsufficientMargin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	f.fund(t, trader, 109) // required is 110

	_, err := f.engine.OpenPosition(ctx, openParams(trader))
	assert.ErrorIs(t, err, errors.ErrInsufficientMargin)
	assert.Equal(t, 0, f.ledger.Count())

	// Neither the stake nor the fee was taken.
	state := f.book.BalanceOf(trader)
	assert.Equal(t, int64(0), state.Locked)
	assert.Equal(t, int64(109), state.Total)
}

func TestClosePosition_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	f.fund(t, trader, 10_000)

	id, err := f.engine.OpenPosition(ctx, openParams(trader))
	require.NoError(t, err)

	// Same reference price: no gain, no loss, and the account ends exactly
	// the open fee poorer.
	pnl, err := f.engine.ClosePosition(ctx, trader, id, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pnl)

	state := f.book.BalanceOf(trader)
	assert.Equal(t, int64(0), state.Locked)
	assert.Equal(t, int64(9_990), state.Total)
	assert.Equal(t, int64(9_990), state.Available())

	_, err = f.ledger.Get(id)
	assert.ErrorIs(t, err, errors.ErrPositionNotFound)
	require.Len(t, f.pub.closed, 1)
}

func TestClosePosition_ProfitCredited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	f.fund(t, trader, 10_000)

	id, err := f.engine.OpenPosition(ctx, openParams(trader))
	require.NoError(t, err)

	pnl, err := f.engine.ClosePosition(ctx, trader, id, 2200)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pnl)
	assert.Equal(t, int64(10_990), f.book.BalanceOf(trader).Total)
}

func TestClosePosition_LossNotDebited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	f.fund(t, trader, 10_000)

	id, err := f.engine.OpenPosition(ctx, openParams(trader))
	require.NoError(t, err)

	pnl, err := f.engine.ClosePosition(ctx, trader, id, 1800)
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), pnl)

	// The released stake already reflects the loss; beyond the open fee the
	// account's total is not debited further.
	state := f.book.BalanceOf(trader)
	assert.Equal(t, int64(9_990), state.Total)
	assert.Equal(t, int64(0), state.Locked)
}

func TestClosePosition_Unauthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	stranger := uuid.New()
	f.fund(t, trader, 10_000)

	id, err := f.engine.OpenPosition(ctx, openParams(trader))
	require.NoError(t, err)

	_, err = f.engine.ClosePosition(ctx, stranger, id, 2000)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	// Position untouched.
	_, err = f.ledger.Get(id)
	assert.NoError(t, err)
}

func TestClosePosition_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	_, err := f.engine.ClosePosition(ctx, uuid.New(), 42, 2000)
	assert.ErrorIs(t, err, errors.ErrPositionNotFound)
}

func TestLiquidatePosition_RequiresRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	trader := uuid.New()
	f.fund(t, trader, 10_000)

	id, err := f.engine.OpenPosition(ctx, openParams(trader))
	require.NoError(t, err)

	outsider := uuid.New()
	_, _, err = f.engine.LiquidatePosition(ctx, outsider, id, 1800)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	f.acl.Grant(outsider, access.RoleLiquidator)
	pos, pnl, err := f.engine.LiquidatePosition(ctx, outsider, id, 1800)
	require.NoError(t, err)
	assert.Equal(t, trader, pos.Trader)
	assert.Equal(t, int64(-1000), pnl)
	assert.Equal(t, 0, f.ledger.Count())
}

func TestEngine_ConcurrentAccountsKeepInvariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	traders := make([]uuid.UUID, 8)
	for i := range traders {
		traders[i] = uuid.New()
		f.fund(t, traders[i], 1_000_000)
	}

	var wg sync.WaitGroup
	for _, trader := range traders {
		wg.Add(1)
		go func(trader uuid.UUID) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, err := f.engine.OpenPosition(ctx, openParams(trader))
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := f.engine.ClosePosition(ctx, trader, id, 2100); err != nil {
					t.Error(err)
					return
				}
			}
		}(trader)
	}
	wg.Wait()

	assert.Equal(t, 0, f.ledger.Count())
	for _, trader := range traders {
		state := f.book.BalanceOf(trader)
		assert.Equal(t, int64(0), state.Locked)
		// Each round trip nets +500 pnl and -10 open fee.
		assert.Equal(t, int64(1_000_000+100*(500-10)), state.Total)
	}
}
