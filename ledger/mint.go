package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tokenforge/tokensale/authority"
	"github.com/tokenforge/tokensale/safemath"
)

// Mint credits amount to `to` and grows the total supply. Only the sale's
// administrator authority may mint, and only while minting is open.
func (l *Ledger) Mint(caller, to common.Address, amount *uint256.Int) error {
	if err := l.auth.Require(caller); err != nil {
		l.log.Warnf("Mint failed: %v", err)
		return err
	}
	if to == (common.Address{}) {
		l.log.Warnf("Mint failed: %v", authority.ErrInvalidAddress)
		return authority.ErrInvalidAddress
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mintingFinished {
		l.log.Warnf("Mint failed: %v", ErrMintingClosed)
		return ErrMintingClosed
	}

	newBalance, err := safemath.Add(l.balance(to), amount)
	if err != nil {
		l.log.Warnf("Mint failed: %v", err)
		return err
	}
	newSupply, err := safemath.Add(l.totalSupply, amount)
	if err != nil {
		l.log.Warnf("Mint failed: %v", err)
		return err
	}

	l.balances[to] = newBalance
	l.totalSupply = newSupply

	l.emitEvent(Event{
		Type:      EventMint,
		To:        to.Hex(),
		Amount:    amount.Dec(),
		Timestamp: time.Now(),
		TxHash:    l.generateTxHash("mint", to, amount),
	})

	l.log.WithField("to", to.Hex()).Debugf("Minted %s, total supply %s", amount.Dec(), l.totalSupply.Dec())
	return nil
}

// Burn debits amount from `from` and shrinks the total supply.
// Administrator-only; requires amount > 0.
func (l *Ledger) Burn(caller, from common.Address, amount *uint256.Int) error {
	if err := l.auth.Require(caller); err != nil {
		l.log.Warnf("Burn failed: %v", err)
		return err
	}
	if from == (common.Address{}) {
		return authority.ErrInvalidAddress
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balance(from)
	if balance.Lt(amount) {
		l.log.Warnf("Burn failed: %v (balance %s, requested %s)", ErrInsufficientBalance, balance.Dec(), amount.Dec())
		return ErrInsufficientBalance
	}

	newBalance, err := safemath.Sub(balance, amount)
	if err != nil {
		return err
	}
	newSupply, err := safemath.Sub(l.totalSupply, amount)
	if err != nil {
		return err
	}

	l.balances[from] = newBalance
	l.totalSupply = newSupply

	l.emitEvent(Event{
		Type:      EventBurn,
		From:      from.Hex(),
		Amount:    amount.Dec(),
		Timestamp: time.Now(),
		TxHash:    l.generateTxHash("burn", from, amount),
	})

	l.log.WithField("from", from.Hex()).Debugf("Burned %s, total supply %s", amount.Dec(), l.totalSupply.Dec())
	return nil
}
