// Package margin keeps per-account collateral balances: total deposited
// value and the portion locked against open exposure. All amounts are int64
// fixed-point collateral units.
package margin

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/thxForu/perp-futures/internal/metrics"
	"github.com/thxForu/perp-futures/pkg/errors"
	"github.com/thxForu/perp-futures/pkg/logger"
)

// Account is a point-in-time view of one account's margin state.
// Invariant: 0 <= Locked <= Total at every observable boundary.
type Account struct {
	Total  int64
	Locked int64
}

// Available returns the free, lockable balance.
func (a Account) Available() int64 {
	return a.Total - a.Locked
}

// Custodian moves actual collateral in and out. Inbound transfers (deposit
// pull, reward payout) must confirm before the balance is credited, so funds
// are never lockable ahead of custody. Outbound withdrawals debit first and
// roll the debit back on failure.
type Custodian interface {
	PullDeposit(ctx context.Context, account uuid.UUID, amount int64) error
	PushWithdrawal(ctx context.Context, account uuid.UUID, amount int64) error
	PayReward(ctx context.Context, account uuid.UUID, amount int64) error
}

// NopCustodian accepts every transfer. Used when custody is handled out of
// process, and in tests.
type NopCustodian struct{}

func (NopCustodian) PullDeposit(context.Context, uuid.UUID, int64) error    { return nil }
func (NopCustodian) PushWithdrawal(context.Context, uuid.UUID, int64) error { return nil }
func (NopCustodian) PayReward(context.Context, uuid.UUID, int64) error      { return nil }

// Book holds margin state for all accounts. The locking and crediting
// operations are reserved for the trading and liquidation engines; end users
// reach only Deposit and Withdraw through the front end.
type Book struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]*Account
	custodian Custodian
	log       *logger.Logger
}

// NewBook creates an empty margin book backed by the given custodian.
func NewBook(custodian Custodian) *Book {
	if custodian == nil {
		custodian = NopCustodian{}
	}
	return &Book{
		accounts:  make(map[uuid.UUID]*Account),
		custodian: custodian,
		log:       logger.Get().With("component", "margin_book"),
	}
}

func (b *Book) account(id uuid.UUID) *Account {
	acc, ok := b.accounts[id]
	if !ok {
		acc = &Account{}
		b.accounts[id] = acc
	}
	return acc
}

// Deposit pulls the collateral through the custodian, then credits amount to
// the account. The credit lands only after custody confirms; nothing is
// visible or lockable while the pull is in flight, so a failed pull can
// never strand locked margin above total.
func (b *Book) Deposit(ctx context.Context, account uuid.UUID, amount int64) error {
	if account == uuid.Nil {
		return errors.ErrInvalidTrader
	}
	if amount <= 0 {
		return errors.ErrInvalidAmount
	}

	if err := b.custodian.PullDeposit(ctx, account, amount); err != nil {
		return errors.Wrap(err, "deposit custody")
	}

	b.mu.Lock()
	b.account(account).Total += amount
	b.mu.Unlock()
	return nil
}

// Withdraw debits amount from the account's available balance, then pushes
// the collateral out through the custodian. A custodian failure reverts the
// debit; the revert only grows Total, so it cannot break the locked<=total
// invariant.
func (b *Book) Withdraw(ctx context.Context, account uuid.UUID, amount int64) error {
	if account == uuid.Nil {
		return errors.ErrInvalidTrader
	}
	if amount <= 0 {
		return errors.ErrInvalidAmount
	}

	b.mu.Lock()
	acc := b.account(account)
	if amount > acc.Available() {
		b.mu.Unlock()
		return errors.ErrInsufficientAvailable
	}
	acc.Total -= amount
	b.mu.Unlock()

	if err := b.custodian.PushWithdrawal(ctx, account, amount); err != nil {
		b.mu.Lock()
		b.accounts[account].Total += amount
		b.mu.Unlock()
		return errors.Wrap(err, "withdrawal custody")
	}
	return nil
}

// LockMargin reserves amount of the account's available balance against open
// exposure. Engine use only.
func (b *Book) LockMargin(account uuid.UUID, amount int64) error {
	if amount <= 0 {
		return errors.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.account(account)
	if amount > acc.Available() {
		return errors.ErrInsufficientAvailable
	}
	acc.Locked += amount
	metrics.MarginLocked.Add(float64(amount))
	return nil
}

// LockMarginWithFee reserves stake against open exposure and debits the open
// fee from the total balance in one step. Both are checked against the
// available balance together, so a concurrent caller can never observe the
// fee debit without the covering balance. Engine use only.
func (b *Book) LockMarginWithFee(account uuid.UUID, stake, fee int64) error {
	if stake <= 0 || fee < 0 {
		return errors.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.account(account)
	if stake+fee > acc.Available() {
		return errors.ErrInsufficientAvailable
	}
	acc.Total -= fee
	acc.Locked += stake
	metrics.MarginLocked.Add(float64(stake))
	return nil
}

// RefundMarginWithFee reverses LockMarginWithFee after a failed open: the
// stake returns to the available balance and the fee is re-credited.
// Engine use only.
func (b *Book) RefundMarginWithFee(account uuid.UUID, stake, fee int64) error {
	if stake <= 0 || fee < 0 {
		return errors.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.account(account)
	if stake > acc.Locked {
		b.log.Errorw("over-release detected", "account", account, "stake", stake, "locked", acc.Locked)
		return errors.ErrOverRelease
	}
	acc.Locked -= stake
	acc.Total += fee
	metrics.MarginLocked.Sub(float64(stake))
	return nil
}

// ReleaseMargin returns amount of locked margin to the available balance.
// Releasing more than is locked means the engines lost track of a
// reservation; that is an invariant violation, never a user error.
func (b *Book) ReleaseMargin(account uuid.UUID, amount int64) error {
	if amount <= 0 {
		return errors.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.account(account)
	if amount > acc.Locked {
		b.log.Errorw("over-release detected", "account", account, "amount", amount, "locked", acc.Locked)
		return errors.ErrOverRelease
	}
	acc.Locked -= amount
	metrics.MarginLocked.Sub(float64(amount))
	return nil
}

// CreditProfit adds realized profit to the account's total balance.
// Engine use only; no upper bound.
func (b *Book) CreditProfit(account uuid.UUID, amount int64) error {
	return b.credit(account, amount)
}

// CreditReward settles a liquidation reward through the custodian, then adds
// it to the account's total balance. As with Deposit, the credit lands only
// after custody confirms. Engine use only; no upper bound.
func (b *Book) CreditReward(ctx context.Context, account uuid.UUID, amount int64) error {
	if account == uuid.Nil {
		return errors.ErrInvalidTrader
	}
	if amount <= 0 {
		return errors.ErrInvalidAmount
	}

	if err := b.custodian.PayReward(ctx, account, amount); err != nil {
		return errors.Wrap(err, "reward custody")
	}
	return b.credit(account, amount)
}

func (b *Book) credit(account uuid.UUID, amount int64) error {
	if account == uuid.Nil {
		return errors.ErrInvalidTrader
	}
	if amount <= 0 {
		return errors.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.account(account).Total += amount
	return nil
}

// AvailableBalance returns the account's free balance.
func (b *Book) AvailableBalance(account uuid.UUID) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if acc, ok := b.accounts[account]; ok {
		return acc.Available()
	}
	return 0
}

// HasAvailable reports whether the account can cover amount from its free
// balance.
func (b *Book) HasAvailable(account uuid.UUID, amount int64) bool {
	return b.AvailableBalance(account) >= amount
}

// BalanceOf returns the account's full margin state.
func (b *Book) BalanceOf(account uuid.UUID) Account {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if acc, ok := b.accounts[account]; ok {
		return *acc
	}
	return Account{}
}

// TotalLocked sums locked margin across all accounts. Metrics use.
func (b *Book) TotalLocked() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sum int64
	for _, acc := range b.accounts {
		sum += acc.Locked
	}
	return sum
}
