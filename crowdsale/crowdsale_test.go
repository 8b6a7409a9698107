package crowdsale

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenforge/tokensale/authority"
	"github.com/tokenforge/tokensale/ledger"
)

var (
	deployer = common.HexToAddress("0x1111111111111111111111111111111111111111")
	alice    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bob      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	carol    = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

// wei scales a whole funding amount by 10^18.
func wei(n uint64) *uint256.Int {
	unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	return new(uint256.Int).Mul(uint256.NewInt(n), unit)
}

// tokens scales a whole token amount by 10^18.
func tokens(n uint64) *uint256.Int {
	return wei(n)
}

func testParams() Params {
	return Params{
		TokenName:     "Forge Token",
		TokenSymbol:   "FRG",
		TokenDecimals: 18,
		SaleName:      "Forge Presale",
		// 10^15 funding units per token: a deposit of 60*10^18 buys
		// 60000 whole tokens.
		Rate:       uint256.NewInt(1_000_000_000_000_000),
		Start:      time.Now().Add(-time.Hour),
		MinDeposit: wei(10),
		MaxDeposit: wei(100),
		SoftCap:    wei(150),
		HardCap:    wei(200),
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newEngine(t *testing.T, params Params) (*Engine, *MemoryVault) {
	t.Helper()
	vault := NewMemoryVault()
	e, err := New(params, deployer, vault, quietLogger())
	require.NoError(t, err)
	return e, vault
}

func balanceOf(t *testing.T, e *Engine, account common.Address) *uint256.Int {
	t.Helper()
	balance, err := e.Ledger().BalanceOf(account)
	require.NoError(t, err)
	return balance
}

func admit(t *testing.T, e *Engine, accounts ...common.Address) {
	t.Helper()
	for _, account := range accounts {
		require.NoError(t, e.SetWhitelisted(deployer, account, true))
	}
}

func TestNew(t *testing.T) {
	t.Run("valid params", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		assert.Equal(t, deployer, e.Admin())
		assert.Equal(t, StateOpen, e.State())
		assert.True(t, e.Raised().IsZero())
		assert.True(t, e.Held().IsZero())
		assert.False(t, e.Collected())
		assert.Equal(t, "FRG", e.Ledger().Symbol)
	})

	t.Run("zero rate rejected", func(t *testing.T) {
		params := testParams()
		params.Rate = uint256.NewInt(0)
		_, err := New(params, deployer, NewMemoryVault(), quietLogger())
		assert.Error(t, err)
	})

	t.Run("max below min rejected", func(t *testing.T) {
		params := testParams()
		params.MaxDeposit = wei(5)
		_, err := New(params, deployer, NewMemoryVault(), quietLogger())
		assert.Error(t, err)
	})

	t.Run("null deployer rejected", func(t *testing.T) {
		_, err := New(testParams(), common.Address{}, NewMemoryVault(), quietLogger())
		assert.ErrorIs(t, err, authority.ErrInvalidAddress)
	})

	t.Run("future start is pending", func(t *testing.T) {
		params := testParams()
		params.Start = time.Now().Add(time.Hour)
		e, _ := newEngine(t, params)
		assert.Equal(t, StatePending, e.State())
	})
}

func TestContribute(t *testing.T) {
	t.Run("accepted contribution mints tokens", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(60)))

		assert.Equal(t, tokens(60_000), balanceOf(t, e, alice))
		assert.Equal(t, tokens(60_000), e.Ledger().TotalSupply())
		assert.Equal(t, wei(60), e.Raised())
		assert.Equal(t, wei(60), e.Held())
		assert.Equal(t, wei(60), e.PaidIn(alice))
		assert.Equal(t, 1, e.RosterLen())
	})

	t.Run("repeat contributions accumulate", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(60)))
		require.NoError(t, e.Contribute(alice, wei(40)))

		assert.Equal(t, wei(100), e.PaidIn(alice))
		assert.Equal(t, wei(100), e.Raised())
		assert.Equal(t, 2, e.RosterLen())
		at, err := e.RosterAt(1)
		require.NoError(t, err)
		assert.Equal(t, alice, at)
	})

	t.Run("before start", func(t *testing.T) {
		params := testParams()
		params.Start = time.Now().Add(time.Hour)
		e, _ := newEngine(t, params)
		admit(t, e, alice)

		assert.ErrorIs(t, e.Contribute(alice, wei(60)), ErrSaleNotStarted)
	})

	t.Run("not whitelisted", func(t *testing.T) {
		e, _ := newEngine(t, testParams())

		err := e.Contribute(alice, wei(60))
		assert.ErrorIs(t, err, ErrNotWhitelisted)
		assert.True(t, e.Ledger().TotalSupply().IsZero())
	})

	t.Run("null contributor", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		assert.ErrorIs(t, e.Contribute(common.Address{}, wei(60)), authority.ErrInvalidAddress)
	})

	t.Run("deposit bounds", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice)

		assert.ErrorIs(t, e.Contribute(alice, wei(9)), ErrDepositOutOfBounds)
		assert.ErrorIs(t, e.Contribute(alice, wei(101)), ErrDepositOutOfBounds)
		assert.NoError(t, e.Contribute(alice, wei(10)))
		assert.NoError(t, e.Contribute(alice, wei(100)))
	})
}

func TestContributeHardCap(t *testing.T) {
	t.Run("partial acceptance collects the sale", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice, bob)

		require.NoError(t, e.Contribute(alice, wei(80)))
		require.NoError(t, e.Contribute(alice, wei(70)))

		// 50 of room left under the 200 hard cap: bob's 100 splits
		// into 50 accepted and 50 returned.
		require.NoError(t, e.Contribute(bob, wei(100)))

		assert.True(t, e.Collected())
		assert.Equal(t, StateCollected, e.State())
		assert.Equal(t, wei(200), e.Raised())
		assert.True(t, e.Held().IsZero())
		assert.Equal(t, wei(50), e.PaidIn(bob))
		assert.Equal(t, tokens(50_000), balanceOf(t, e, bob))
		assert.Equal(t, wei(50), vault.BalanceOf(bob))
		assert.Equal(t, wei(200), vault.BalanceOf(deployer))
	})

	t.Run("no further contributions once collected", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice, bob, carol)

		require.NoError(t, e.Contribute(alice, wei(100)))
		require.NoError(t, e.Contribute(bob, wei(100)))
		require.True(t, e.Collected())

		assert.ErrorIs(t, e.Contribute(carol, wei(50)), ErrAlreadyCollected)
	})

	t.Run("exact fill leaves sale open", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice, bob)

		require.NoError(t, e.Contribute(alice, wei(100)))
		require.NoError(t, e.Contribute(bob, wei(100)))

		// Landing exactly on the cap never overshoots, so the capped
		// branch is not taken and collection waits for Finalize.
		assert.False(t, e.Collected())
		assert.Equal(t, wei(200), e.Raised())
		assert.Equal(t, wei(200), e.Held())
	})

	t.Run("rejected excess transfer leaves no trace", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice, bob)

		require.NoError(t, e.Contribute(alice, wei(100)))
		require.NoError(t, e.Contribute(alice, wei(60)))

		vault.Reject(bob, true)
		err := e.Contribute(bob, wei(80))
		require.Error(t, err)

		assert.False(t, e.Collected())
		assert.Equal(t, wei(160), e.Raised())
		assert.Equal(t, wei(160), e.Held())
		assert.True(t, e.PaidIn(bob).IsZero())
		assert.True(t, balanceOf(t, e, bob).IsZero())
		assert.True(t, vault.BalanceOf(deployer).IsZero())
	})
}

func TestFinalize(t *testing.T) {
	t.Run("below soft cap stays open", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(100)))

		collected, err := e.Finalize(deployer)
		require.NoError(t, err)
		assert.False(t, collected)
		assert.False(t, e.Collected())
		assert.Equal(t, wei(100), e.Held())
		assert.True(t, vault.BalanceOf(deployer).IsZero())
	})

	t.Run("at soft cap collects", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice, bob)

		require.NoError(t, e.Contribute(alice, wei(100)))
		require.NoError(t, e.Contribute(bob, wei(50)))

		collected, err := e.Finalize(deployer)
		require.NoError(t, err)
		assert.True(t, collected)
		assert.True(t, e.Collected())
		assert.True(t, e.Held().IsZero())
		assert.Equal(t, wei(150), vault.BalanceOf(deployer))
	})

	t.Run("idempotent once collected", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice, bob)

		require.NoError(t, e.Contribute(alice, wei(100)))
		require.NoError(t, e.Contribute(bob, wei(50)))

		_, err := e.Finalize(deployer)
		require.NoError(t, err)
		collected, err := e.Finalize(deployer)
		require.NoError(t, err)
		assert.True(t, collected)
		assert.Equal(t, wei(150), vault.BalanceOf(deployer))
	})

	t.Run("non-admin rejected", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		_, err := e.Finalize(alice)
		assert.ErrorIs(t, err, authority.ErrUnauthorized)
	})
}

func TestRefund(t *testing.T) {
	t.Run("full round trip", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(60)))
		require.NoError(t, e.Refund(alice, wei(60)))

		assert.True(t, e.PaidIn(alice).IsZero())
		assert.True(t, e.Raised().IsZero())
		assert.True(t, e.Held().IsZero())
		assert.True(t, balanceOf(t, e, alice).IsZero())
		assert.True(t, e.Ledger().TotalSupply().IsZero())
		assert.Equal(t, wei(60), vault.BalanceOf(alice))
	})

	t.Run("partial refund", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(60)))
		require.NoError(t, e.Refund(alice, wei(20)))

		assert.Equal(t, wei(40), e.PaidIn(alice))
		assert.Equal(t, wei(40), e.Raised())
		assert.Equal(t, tokens(40_000), balanceOf(t, e, alice))
		assert.Equal(t, wei(20), vault.BalanceOf(alice))
	})

	t.Run("exceeds recorded contribution", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(60)))
		assert.ErrorIs(t, e.Refund(alice, wei(61)), ErrInsufficientPaidIn)
	})

	t.Run("nothing paid in", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		assert.ErrorIs(t, e.Refund(alice, wei(10)), ErrInsufficientPaidIn)
	})

	t.Run("after collection funds are gone", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice, bob)

		require.NoError(t, e.Contribute(alice, wei(100)))
		require.NoError(t, e.Contribute(bob, wei(50)))
		_, err := e.Finalize(deployer)
		require.NoError(t, err)

		assert.ErrorIs(t, e.Refund(alice, wei(100)), ErrInsufficientFunds)
	})

	t.Run("tokens already moved away", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(60)))
		require.NoError(t, e.Ledger().Transfer(alice, bob, tokens(60_000)))

		err := e.Refund(alice, wei(60))
		assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		assert.Equal(t, wei(60), e.PaidIn(alice))
		assert.Equal(t, wei(60), e.Held())
	})

	t.Run("rejected payout leaves no trace", func(t *testing.T) {
		e, vault := newEngine(t, testParams())
		admit(t, e, alice)

		require.NoError(t, e.Contribute(alice, wei(60)))
		vault.Reject(alice, true)

		require.Error(t, e.Refund(alice, wei(60)))
		assert.Equal(t, wei(60), e.PaidIn(alice))
		assert.Equal(t, wei(60), e.Held())
		assert.Equal(t, tokens(60_000), balanceOf(t, e, alice))
	})

	t.Run("null caller", func(t *testing.T) {
		e, _ := newEngine(t, testParams())
		assert.ErrorIs(t, e.Refund(common.Address{}, wei(10)), authority.ErrInvalidAddress)
	})
}

func TestRosterAt(t *testing.T) {
	e, _ := newEngine(t, testParams())
	admit(t, e, alice)
	require.NoError(t, e.Contribute(alice, wei(60)))

	at, err := e.RosterAt(0)
	require.NoError(t, err)
	assert.Equal(t, alice, at)

	_, err = e.RosterAt(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = e.RosterAt(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestTransferOwnership(t *testing.T) {
	e, _ := newEngine(t, testParams())

	require.NoError(t, e.TransferOwnership(deployer, bob))
	assert.Equal(t, bob, e.Admin())

	assert.ErrorIs(t, e.TransferOwnership(deployer, carol), authority.ErrUnauthorized)
	assert.ErrorIs(t, e.TransferOwnership(bob, common.Address{}), authority.ErrInvalidAddress)
}

func TestFinishMinting(t *testing.T) {
	e, _ := newEngine(t, testParams())
	admit(t, e, alice)

	require.NoError(t, e.FinishMinting(deployer))
	assert.True(t, e.Ledger().MintingFinished())

	err := e.Contribute(alice, wei(60))
	assert.ErrorIs(t, err, ledger.ErrMintingClosed)
	assert.True(t, e.Raised().IsZero())
}

func TestEvents(t *testing.T) {
	e, _ := newEngine(t, testParams())
	admit(t, e, alice)

	events := make(chan Event, 8)
	e.RegisterEventHandler(func(event Event) { events <- event })

	require.NoError(t, e.Contribute(alice, wei(60)))

	select {
	case event := <-events:
		assert.Equal(t, EventContribution, event.Type)
		assert.Equal(t, alice.Hex(), event.Account)
		assert.Equal(t, wei(60).Dec(), event.Amount)
		assert.Equal(t, tokens(60_000).Dec(), event.Tokens)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}
