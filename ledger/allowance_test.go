package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenforge/tokensale/authority"
)

func TestApprove(t *testing.T) {
	t.Run("sets allowance", func(t *testing.T) {
		l := newLedger(t)
		require.NoError(t, l.Approve(alice, bob, u(50)))

		allowance, err := l.Allowance(alice, bob)
		require.NoError(t, err)
		assert.Equal(t, u(50), allowance)
	})

	t.Run("non-zero to non-zero rejected", func(t *testing.T) {
		l := newLedger(t)
		require.NoError(t, l.Approve(alice, bob, u(50)))

		err := l.Approve(alice, bob, u(70))
		assert.ErrorIs(t, err, ErrAllowanceReset)

		// The original allowance stands.
		allowance, _ := l.Allowance(alice, bob)
		assert.Equal(t, u(50), allowance)
	})

	t.Run("reset through zero allowed", func(t *testing.T) {
		l := newLedger(t)
		require.NoError(t, l.Approve(alice, bob, u(50)))
		require.NoError(t, l.Approve(alice, bob, u(0)))
		require.NoError(t, l.Approve(alice, bob, u(70)))

		allowance, _ := l.Allowance(alice, bob)
		assert.Equal(t, u(70), allowance)
	})

	t.Run("null address rejected", func(t *testing.T) {
		l := newLedger(t)
		assert.ErrorIs(t, l.Approve(alice, nilAddress(), u(1)), authority.ErrInvalidAddress)
	})
}

func TestTransferFrom(t *testing.T) {
	t.Run("spends within allowance", func(t *testing.T) {
		l := newLedger(t)
		require.NoError(t, l.Mint(admin, alice, u(1000)))
		require.NoError(t, l.Approve(alice, bob, u(300)))

		require.NoError(t, l.TransferFrom(alice, bob, carol, u(200)))

		carolBal, _ := l.BalanceOf(carol)
		assert.Equal(t, u(200), carolBal)

		allowance, _ := l.Allowance(alice, bob)
		assert.Equal(t, u(100), allowance)
		supplyEqualsBalances(t, l)
	})

	t.Run("allowance exceeded", func(t *testing.T) {
		l := newLedger(t)
		require.NoError(t, l.Mint(admin, alice, u(1000)))
		require.NoError(t, l.Approve(alice, bob, u(100)))

		err := l.TransferFrom(alice, bob, carol, u(101))
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("balance exceeded", func(t *testing.T) {
		l := newLedger(t)
		require.NoError(t, l.Mint(admin, alice, u(50)))
		require.NoError(t, l.Approve(alice, bob, u(100)))

		err := l.TransferFrom(alice, bob, carol, u(60))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		// Allowance untouched by the failed spend.
		allowance, _ := l.Allowance(alice, bob)
		assert.Equal(t, u(100), allowance)
	})
}
