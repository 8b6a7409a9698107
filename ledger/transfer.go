package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tokenforge/tokensale/authority"
	"github.com/tokenforge/tokensale/safemath"
)

// Transfer moves amount from one account to another. Fails with
// ErrInsufficientBalance on shortfall.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return authority.ErrInvalidAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.move(from, to, amount); err != nil {
		l.log.Warnf("Transfer failed: %v", err)
		return err
	}

	l.emitEvent(Event{
		Type:      EventTransfer,
		From:      from.Hex(),
		To:        to.Hex(),
		Amount:    amount.Dec(),
		Timestamp: time.Now(),
		TxHash:    l.generateTxHash("transfer", from, amount),
	})
	return nil
}

// move debits from and credits to with checked arithmetic. Callers hold l.mu.
func (l *Ledger) move(from, to common.Address, amount *uint256.Int) error {
	fromBalance := l.balance(from)
	if fromBalance.Lt(amount) {
		return ErrInsufficientBalance
	}

	newFrom, err := safemath.Sub(fromBalance, amount)
	if err != nil {
		return err
	}
	newTo, err := safemath.Add(l.balance(to), amount)
	if err != nil {
		return err
	}

	l.balances[from] = newFrom
	l.balances[to] = newTo
	return nil
}
