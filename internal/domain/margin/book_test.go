package margin_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thxForu/perp-futures/internal/domain/margin"
	"github.com/thxForu/perp-futures/pkg/errors"
)

// failingCustodian rejects transfers on demand.
type failingCustodian struct {
	failDeposit  bool
	failWithdraw bool
	failReward   bool
}

func (c *failingCustodian) PullDeposit(ctx context.Context, account uuid.UUID, amount int64) error {
	if c.failDeposit {
		return errors.ErrUnavailable
	}
	return nil
}

func (c *failingCustodian) PushWithdrawal(ctx context.Context, account uuid.UUID, amount int64) error {
	if c.failWithdraw {
		return errors.ErrUnavailable
	}
	return nil
}

func (c *failingCustodian) PayReward(ctx context.Context, account uuid.UUID, amount int64) error {
	if c.failReward {
		return errors.ErrUnavailable
	}
	return nil
}

func TestBook_DepositWithdraw(t *testing.T) {
	ctx := context.Background()
	book := margin.NewBook(nil)
	acc := uuid.New()

	require.NoError(t, book.Deposit(ctx, acc, 10_000))
	assert.Equal(t, int64(10_000), book.AvailableBalance(acc))

	require.NoError(t, book.Withdraw(ctx, acc, 4_000))
	assert.Equal(t, int64(6_000), book.AvailableBalance(acc))

	err := book.Withdraw(ctx, acc, 6_001)
	assert.ErrorIs(t, err, errors.ErrInsufficientAvailable)
	assert.Equal(t, int64(6_000), book.AvailableBalance(acc))
}

func TestBook_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	book := margin.NewBook(nil)
	acc := uuid.New()

	assert.ErrorIs(t, book.Deposit(ctx, acc, 0), errors.ErrInvalidAmount)
	assert.ErrorIs(t, book.Withdraw(ctx, acc, -1), errors.ErrInvalidAmount)
	assert.ErrorIs(t, book.LockMargin(acc, 0), errors.ErrInvalidAmount)
	assert.ErrorIs(t, book.CreditProfit(acc, -5), errors.ErrInvalidAmount)
	assert.ErrorIs(t, book.Deposit(ctx, uuid.Nil, 100), errors.ErrInvalidTrader)
}

func TestBook_LockRelease(t *testing.T) {
	ctx := context.Background()
	book := margin.NewBook(nil)
	acc := uuid.New()

	require.NoError(t, book.Deposit(ctx, acc, 1_000))
	require.NoError(t, book.LockMargin(acc, 600))

	state := book.BalanceOf(acc)
	assert.Equal(t, int64(1_000), state.Total)
	assert.Equal(t, int64(600), state.Locked)
	assert.Equal(t, int64(400), state.Available())

	// Locked margin is unavailable for withdrawal.
	assert.ErrorIs(t, book.Withdraw(ctx, acc, 500), errors.ErrInsufficientAvailable)

	// Locking beyond the free balance fails.
	assert.ErrorIs(t, book.LockMargin(acc, 401), errors.ErrInsufficientAvailable)

	require.NoError(t, book.ReleaseMargin(acc, 600))
	assert.Equal(t, int64(1_000), book.AvailableBalance(acc))
}

func TestBook_LockMarginWithFee(t *testing.T) {
	ctx := context.Background()
	book := margin.NewBook(nil)
	acc := uuid.New()

	require.NoError(t, book.Deposit(ctx, acc, 1_000))

	// The stake and fee are admitted together against the free balance.
	assert.ErrorIs(t, book.LockMarginWithFee(acc, 990, 11), errors.ErrInsufficientAvailable)
	require.NoError(t, book.LockMarginWithFee(acc, 900, 10))

	state := book.BalanceOf(acc)
	assert.Equal(t, int64(990), state.Total) // fee collected
	assert.Equal(t, int64(900), state.Locked)
	assert.Equal(t, int64(90), state.Available())

	// A refund puts both the stake and the fee back.
	require.NoError(t, book.RefundMarginWithFee(acc, 900, 10))
	state = book.BalanceOf(acc)
	assert.Equal(t, int64(1_000), state.Total)
	assert.Equal(t, int64(0), state.Locked)

	assert.ErrorIs(t, book.RefundMarginWithFee(acc, 1, 0), errors.ErrOverRelease)
}

func TestBook_OverReleaseIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	book := margin.NewBook(nil)
	acc := uuid.New()

	require.NoError(t, book.Deposit(ctx, acc, 1_000))
	require.NoError(t, book.LockMargin(acc, 300))

	err := book.ReleaseMargin(acc, 301)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrOverRelease)
	assert.True(t, errors.IsInvariantViolation(err))

	// State untouched by the failed release.
	assert.Equal(t, int64(300), book.BalanceOf(acc).Locked)
}

func TestBook_Credits(t *testing.T) {
	ctx := context.Background()
	book := margin.NewBook(nil)
	acc := uuid.New()

	require.NoError(t, book.CreditProfit(acc, 250))
	require.NoError(t, book.CreditReward(ctx, acc, 10))
	assert.Equal(t, int64(260), book.AvailableBalance(acc))
}

func TestBook_CustodianFailureLeavesRewardUncredited(t *testing.T) {
	ctx := context.Background()
	cust := &failingCustodian{failReward: true}
	book := margin.NewBook(cust)
	acc := uuid.New()

	err := book.CreditReward(ctx, acc, 10)
	require.Error(t, err)
	assert.Equal(t, int64(0), book.AvailableBalance(acc))
}

func TestBook_CustodianFailureLeavesDepositUncredited(t *testing.T) {
	ctx := context.Background()
	cust := &failingCustodian{failDeposit: true}
	book := margin.NewBook(cust)
	acc := uuid.New()

	err := book.Deposit(ctx, acc, 500)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Equal(t, int64(0), book.AvailableBalance(acc))

	cust.failDeposit = false
	require.NoError(t, book.Deposit(ctx, acc, 500))
	assert.Equal(t, int64(500), book.AvailableBalance(acc))
}

// lockingCustodian races a margin lock against the deposit it is asked to
// pull, then fails the pull.
type lockingCustodian struct {
	failingCustodian
	book    *margin.Book
	lockErr error
}

func (c *lockingCustodian) PullDeposit(ctx context.Context, account uuid.UUID, amount int64) error {
	c.lockErr = c.book.LockMargin(account, amount)
	return errors.ErrUnavailable
}

func TestBook_DepositNotLockableBeforeCustodyConfirms(t *testing.T) {
	ctx := context.Background()
	cust := &lockingCustodian{}
	book := margin.NewBook(cust)
	cust.book = book
	acc := uuid.New()

	err := book.Deposit(ctx, acc, 100)
	require.Error(t, err)

	// The unconfirmed deposit was never visible, so the racing lock found
	// nothing to reserve and the invariant locked <= total holds.
	assert.ErrorIs(t, cust.lockErr, errors.ErrInsufficientAvailable)
	state := book.BalanceOf(acc)
	assert.Equal(t, int64(0), state.Total)
	assert.Equal(t, int64(0), state.Locked)
	assert.GreaterOrEqual(t, state.Total, state.Locked)
}

func TestBook_CustodianFailureRollsBackWithdraw(t *testing.T) {
	ctx := context.Background()
	cust := &failingCustodian{}
	book := margin.NewBook(cust)
	acc := uuid.New()

	require.NoError(t, book.Deposit(ctx, acc, 500))

	cust.failWithdraw = true
	err := book.Withdraw(ctx, acc, 200)
	require.Error(t, err)
	assert.Equal(t, int64(500), book.AvailableBalance(acc))
}

func TestBook_LockedNeverExceedsTotal_Concurrent(t *testing.T) {
	ctx := context.Background()
	book := margin.NewBook(nil)

	accounts := make([]uuid.UUID, 4)
	for i := range accounts {
		accounts[i] = uuid.New()
		require.NoError(t, book.Deposit(ctx, accounts[i], 10_000))
	}

	var wg sync.WaitGroup
	for _, acc := range accounts {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(acc uuid.UUID) {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					if book.LockMargin(acc, 100) == nil {
						_ = book.ReleaseMargin(acc, 100)
					}
					_ = book.Withdraw(ctx, acc, 50)
					_ = book.Deposit(ctx, acc, 50)
				}
			}(acc)
		}
	}
	wg.Wait()

	for _, acc := range accounts {
		state := book.BalanceOf(acc)
		assert.GreaterOrEqual(t, state.Total, state.Locked)
		assert.GreaterOrEqual(t, state.Locked, int64(0))
	}
}
