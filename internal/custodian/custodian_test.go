package custodian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/asset"
)

const alice asset.OwnerId = "alice"

func TestDepositThenWithdrawIsIdentity(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Deposit(alice, asset.NewBalance(100)))
	assert.Equal(t, uint64(100), l.Available(alice))

	out, err := l.Withdraw(alice, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), out.Value())
	assert.Equal(t, uint64(0), l.Available(alice))
	assert.Equal(t, uint64(0), l.Locked(alice))
}

func TestDepositZeroFails(t *testing.T) {
	l := NewLedger()
	err := l.Deposit(alice, asset.Balance{})
	assert.ErrorIs(t, err, ErrZeroDeposit)
}

func TestWithdrawInsufficientFails(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Deposit(alice, asset.NewBalance(10)))
	_, err := l.Withdraw(alice, 11)
	assert.ErrorIs(t, err, ErrInsufficientAvailable)
	assert.Equal(t, uint64(10), l.Available(alice))
}

func TestLockUnlockRoundTrip(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Deposit(alice, asset.NewBalance(100)))
	require.NoError(t, l.Lock(alice, 40))
	assert.Equal(t, uint64(60), l.Available(alice))
	assert.Equal(t, uint64(40), l.Locked(alice))

	require.NoError(t, l.Unlock(alice, 40))
	assert.Equal(t, uint64(100), l.Available(alice))
	assert.Equal(t, uint64(0), l.Locked(alice))
}

func TestLockInsufficientFails(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Deposit(alice, asset.NewBalance(10)))
	err := l.Lock(alice, 11)
	assert.ErrorIs(t, err, ErrInsufficientAvailable)
}

func TestDebitLockedAndCreditAvailable(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Deposit(alice, asset.NewBalance(100)))
	require.NoError(t, l.Lock(alice, 100))

	debited, err := l.DebitLocked(alice, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), debited.Value())
	assert.Equal(t, uint64(60), l.Locked(alice))

	l.CreditAvailable(alice, asset.NewBalance(40))
	assert.Equal(t, uint64(40), l.Available(alice))
}

func TestDebitLockedInsufficientFails(t *testing.T) {
	l := NewLedger()
	_, err := l.DebitLocked(alice, 1)
	assert.ErrorIs(t, err, ErrInsufficientLocked)
}

func TestBalancesAreNonNegativeByConstruction(t *testing.T) {
	l := NewLedger()
	// Never deposited: both sides read zero rather than underflowing.
	assert.Equal(t, uint64(0), l.Available(alice))
	assert.Equal(t, uint64(0), l.Locked(alice))
}
