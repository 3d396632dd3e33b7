// Package orderbook holds resting limit and stop-limit orders and executes
// them against an external reference price through the trading engine. It is
// not a matching engine; orders never trade against each other.
package orderbook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/domain/access"
	"github.com/thxForu/perp-futures/internal/domain/ledger"
	"github.com/thxForu/perp-futures/internal/domain/margin"
	"github.com/thxForu/perp-futures/internal/domain/trading"
	"github.com/thxForu/perp-futures/internal/events"
	"github.com/thxForu/perp-futures/internal/metrics"
	"github.com/thxForu/perp-futures/pkg/errors"
	"github.com/thxForu/perp-futures/pkg/logger"
	"github.com/thxForu/perp-futures/pkg/sequence"
)

// Limits bounds what orders the book accepts. The leverage window must sit
// inside the ledger's hard bounds.
type Limits struct {
	MinSize     int64
	MaxSize     int64
	MinLeverage int
	MaxLeverage int
	MaxExpiry   time.Duration
}

// Book stores resting orders with the same swap-removable per-trader index
// the ledger uses for positions.
type Book struct {
	mu     sync.RWMutex
	orders map[uint64]*Order
	active map[uuid.UUID][]uint64
	slots  map[uint64]int

	limits Limits
	ids    *sequence.Generator
	engine *trading.Engine
	margin *margin.Book
	acl    access.Controller
	events events.Publisher
	log    *logger.Logger
}

// NewBook constructs an order book delegating fills to engine.
func NewBook(
	limits Limits,
	ids *sequence.Generator,
	engine *trading.Engine,
	marginBook *margin.Book,
	acl access.Controller,
	publisher events.Publisher,
) *Book {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Book{
		orders: make(map[uint64]*Order),
		active: make(map[uuid.UUID][]uint64),
		slots:  make(map[uint64]int),
		limits: limits,
		ids:    ids,
		engine: engine,
		margin: marginBook,
		acl:    acl,
		events: publisher,
		log:    logger.Get().With("component", "order_book"),
	}
}

// CreateParams captures the data required to rest an order.
type CreateParams struct {
	Trader       uuid.UUID
	Direction    ledger.Direction
	LimitPrice   int64
	TriggerPrice int64 // stop-limit only
	Size         int64
	Leverage     int
	ExpiresAt    time.Time
}

// CreateLimitOrder rests a plain limit order.
func (b *Book) CreateLimitOrder(ctx context.Context, p CreateParams) (uint64, error) {
	p.TriggerPrice = 0
	return b.create(ctx, KindLimit, p)
}

// CreateStopLimitOrder rests a stop-limit order. Buy orders require
// triggerPrice >= limitPrice, sell orders triggerPrice <= limitPrice.
func (b *Book) CreateStopLimitOrder(ctx context.Context, p CreateParams) (uint64, error) {
	return b.create(ctx, KindStopLimit, p)
}

func (b *Book) create(ctx context.Context, kind Kind, p CreateParams) (uint64, error) {
	now := time.Now().UTC()
	if err := b.validate(kind, p, now); err != nil {
		return 0, err
	}

	// Required margin is checked but deliberately not locked here: margin
	// is only reserved at fill time, so several resting orders may compete
	// for the same balance and lose at execution.
	required, _ := trading.RequiredMargin(p.Size, p.Leverage, b.engine.FeeRateBps())
	if !b.margin.HasAvailable(p.Trader, required) {
		return 0, errors.ErrInsufficientMargin
	}

	id, err := b.ids.Next()
	if err != nil {
		return 0, err
	}

	order := &Order{
		ID:           id,
		Trader:       p.Trader,
		Kind:         kind,
		Direction:    p.Direction,
		LimitPrice:   p.LimitPrice,
		TriggerPrice: p.TriggerPrice,
		Size:         p.Size,
		Leverage:     p.Leverage,
		Status:       StatusActive,
		Remaining:    p.Size,
		CreatedAt:    now,
		ExpiresAt:    p.ExpiresAt,
	}

	b.mu.Lock()
	b.orders[id] = order
	index := b.active[p.Trader]
	b.slots[id] = len(index)
	b.active[p.Trader] = append(index, id)
	b.mu.Unlock()

	metrics.OrdersActive.Inc()
	metrics.OrdersTotal.WithLabelValues("placed").Inc()

	if err := b.events.OrderPlaced(ctx, b.orderEvent(*order, 0, now)); err != nil {
		b.log.Warnw("order placed event not published", "order_id", id, "error", err)
	}
	return id, nil
}

func (b *Book) validate(kind Kind, p CreateParams, now time.Time) error {
	if p.Trader == uuid.Nil {
		return errors.ErrInvalidTrader
	}
	if !p.Direction.Valid() {
		return errors.Wrap(errors.ErrInvalidInput, "direction")
	}
	if p.LimitPrice <= 0 {
		return errors.ErrInvalidPrice
	}
	if p.Size < b.limits.MinSize || p.Size > b.limits.MaxSize {
		return errors.ErrInvalidSize
	}
	if p.Leverage < b.limits.MinLeverage || p.Leverage > b.limits.MaxLeverage {
		return errors.ErrLeverageOutOfRange
	}
	if !p.ExpiresAt.After(now) || p.ExpiresAt.After(now.Add(b.limits.MaxExpiry)) {
		return errors.ErrInvalidExpiry
	}
	if kind == KindStopLimit {
		if p.TriggerPrice <= 0 {
			return errors.ErrInvalidPrice
		}
		if p.Direction == ledger.Long && p.TriggerPrice < p.LimitPrice {
			return errors.ErrInvalidTrigger
		}
		if p.Direction == ledger.Short && p.TriggerPrice > p.LimitPrice {
			return errors.ErrInvalidTrigger
		}
	}
	return nil
}

// UpdateOrder changes the limit price and size of a resting order in place.
// Stop-limit orders re-check the trigger/limit ordering against the new
// price, so an update can never produce a shape that create would reject.
// Margin sufficiency is not re-checked; that stays a fill-time concern.
func (b *Book) UpdateOrder(trader uuid.UUID, orderID uint64, newPrice, newSize int64) error {
	if newPrice <= 0 {
		return errors.ErrInvalidPrice
	}
	if newSize < b.limits.MinSize || newSize > b.limits.MaxSize {
		return errors.ErrInvalidSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok {
		return errors.ErrOrderNotFound
	}
	if order.Trader != trader {
		return errors.Wrapf(errors.ErrUnauthorized, "order %d", orderID)
	}
	if order.Status != StatusActive {
		return errors.ErrOrderNotActive
	}
	if order.Kind == KindStopLimit {
		if order.Direction == ledger.Long && order.TriggerPrice < newPrice {
			return errors.ErrInvalidTrigger
		}
		if order.Direction == ledger.Short && order.TriggerPrice > newPrice {
			return errors.ErrInvalidTrigger
		}
	}

	order.LimitPrice = newPrice
	order.Size = newSize
	order.Remaining = newSize
	return nil
}

// CancelOrder marks an active order cancelled and drops it from the active
// index. Cancelling a non-active order always fails; it never silently
// succeeds twice.
func (b *Book) CancelOrder(ctx context.Context, trader uuid.UUID, orderID uint64) error {
	b.mu.Lock()

	order, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return errors.ErrOrderNotFound
	}
	if order.Trader != trader {
		b.mu.Unlock()
		return errors.Wrapf(errors.ErrUnauthorized, "order %d", orderID)
	}
	if order.Status != StatusActive {
		b.mu.Unlock()
		return errors.ErrOrderNotActive
	}

	order.Status = StatusCancelled
	b.removeActive(order)
	cancelled := *order
	b.mu.Unlock()

	metrics.OrdersActive.Dec()
	metrics.OrdersTotal.WithLabelValues("cancelled").Inc()

	if err := b.events.OrderCancelled(ctx, b.orderEvent(cancelled, 0, time.Now().UTC())); err != nil {
		b.log.Warnw("order cancelled event not published", "order_id", orderID, "error", err)
	}
	return nil
}

// IsExecutable reports whether the order would fill at currentPrice right
// now: it must be active and unexpired, its account must currently cover the
// required margin, a stop-limit trigger must be met, and the price must be
// at least as favorable as the limit.
func (b *Book) IsExecutable(o Order, currentPrice int64) bool {
	return b.executable(o, currentPrice, time.Now().UTC())
}

func (b *Book) executable(o Order, currentPrice int64, now time.Time) bool {
	if o.Status != StatusActive || o.Expired(now) {
		return false
	}

	required, _ := trading.RequiredMargin(o.Size, o.Leverage, b.engine.FeeRateBps())
	if !b.margin.HasAvailable(o.Trader, required) {
		return false
	}

	if o.Kind == KindStopLimit {
		if o.Direction == ledger.Long && currentPrice < o.TriggerPrice {
			return false
		}
		if o.Direction == ledger.Short && currentPrice > o.TriggerPrice {
			return false
		}
	}

	if o.Direction == ledger.Long {
		return currentPrice <= o.LimitPrice
	}
	return currentPrice >= o.LimitPrice
}

// Execute fills an executable order by opening a position at currentPrice.
// Caller must hold the executor role. The order is claimed as Filled before
// the book lock is released, so concurrent cancels and sweeps cannot touch
// it while the open is in flight; a failed open reverts the claim and the
// order rests again.
func (b *Book) Execute(ctx context.Context, caller uuid.UUID, orderID uint64, currentPrice int64) (uint64, error) {
	if err := b.acl.RequireRole(caller, access.RoleExecutor); err != nil {
		return 0, err
	}
	if currentPrice <= 0 {
		return 0, errors.ErrInvalidPrice
	}

	b.mu.Lock()

	order, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return 0, errors.ErrOrderNotFound
	}
	if !b.executable(*order, currentPrice, time.Now().UTC()) {
		b.mu.Unlock()
		return 0, errors.ErrNotExecutable
	}

	order.Status = StatusFilled
	order.Filled = order.Size
	order.Remaining = 0
	b.removeActive(order)
	filled := *order
	b.mu.Unlock()

	// The open happens outside the book lock: it takes the account's engine
	// lock and publishes an event, neither of which should stall unrelated
	// book operations.
	positionID, err := b.engine.OpenPosition(ctx, trading.OpenParams{
		Trader:         filled.Trader,
		Direction:      filled.Direction,
		Leverage:       filled.Leverage,
		Size:           filled.Size,
		ReferencePrice: currentPrice,
	})
	if err != nil {
		b.mu.Lock()
		order.Status = StatusActive
		order.Filled = 0
		order.Remaining = order.Size
		b.restoreActive(order)
		b.mu.Unlock()
		return 0, errors.Wrapf(err, "execute order %d", orderID)
	}

	metrics.OrdersActive.Dec()
	metrics.OrdersTotal.WithLabelValues("filled").Inc()

	if err := b.events.OrderFilled(ctx, b.orderEvent(filled, positionID, time.Now().UTC())); err != nil {
		b.log.Warnw("order filled event not published", "order_id", orderID, "error", err)
	}
	return positionID, nil
}

// SweepExpired transitions every active order whose lifetime has passed to
// Expired and returns their ids. Intended for periodic callers; the core
// itself never runs timers.
func (b *Book) SweepExpired(now time.Time) []uint64 {
	b.mu.Lock()

	var expired []uint64
	for id, order := range b.orders {
		if order.Status == StatusActive && order.Expired(now) {
			order.Status = StatusExpired
			b.removeActive(order)
			expired = append(expired, id)
		}
	}
	b.mu.Unlock()

	for range expired {
		metrics.OrdersActive.Dec()
		metrics.OrdersTotal.WithLabelValues("expired").Inc()
	}
	return expired
}

// Get returns a copy of the order under id, in whatever state it is.
func (b *Book) Get(orderID uint64) (Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	order, ok := b.orders[orderID]
	if !ok {
		return Order{}, errors.ErrOrderNotFound
	}
	return *order, nil
}

// ListActive returns copies of the trader's active orders, in index order.
func (b *Book) ListActive(trader uuid.UUID) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	index := b.active[trader]
	out := make([]Order, 0, len(index))
	for _, id := range index {
		out = append(out, *b.orders[id])
	}
	return out
}

// ActiveSnapshot returns copies of every active order across all traders.
func (b *Book) ActiveSnapshot() []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Order, 0, len(b.slots))
	for _, index := range b.active {
		for _, id := range index {
			out = append(out, *b.orders[id])
		}
	}
	return out
}

// removeActive swap-removes the order from its trader's active index.
// Caller holds b.mu.
func (b *Book) removeActive(order *Order) {
	index := b.active[order.Trader]
	slot := b.slots[order.ID]
	last := len(index) - 1

	if slot != last {
		moved := index[last]
		index[slot] = moved
		b.slots[moved] = slot
	}
	index = index[:last]

	if len(index) == 0 {
		delete(b.active, order.Trader)
	} else {
		b.active[order.Trader] = index
	}
	delete(b.slots, order.ID)
}

// restoreActive re-appends the order to its trader's active index after a
// reverted fill claim. Caller holds b.mu.
func (b *Book) restoreActive(order *Order) {
	index := b.active[order.Trader]
	b.slots[order.ID] = len(index)
	b.active[order.Trader] = append(index, order.ID)
}

func (b *Book) orderEvent(o Order, positionID uint64, at time.Time) events.OrderEvent {
	return events.OrderEvent{
		OrderID:    o.ID,
		Trader:     o.Trader,
		Kind:       o.Kind.String(),
		Direction:  o.Direction.String(),
		LimitPrice: o.LimitPrice,
		Size:       o.Size,
		Leverage:   o.Leverage,
		Status:     o.Status.String(),
		PositionID: positionID,
		At:         at,
	}
}
