package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tokenforge/tokensale/authority"
	"github.com/tokenforge/tokensale/safemath"
)

// Approve sets the spender's allowance over the owner's tokens. Changing a
// non-zero allowance directly to another non-zero value is rejected; it must
// pass through zero first. That closes the window where a spender can race a
// pending approval and spend both the old and the new amount.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return authority.ErrInvalidAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.allowance(owner, spender)
	if !amount.IsZero() && !current.IsZero() {
		l.log.Warnf("Approval failed: %v", ErrAllowanceReset)
		return ErrAllowanceReset
	}

	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	l.allowances[owner][spender] = new(uint256.Int).Set(amount)

	l.emitEvent(Event{
		Type:      EventApproval,
		From:      owner.Hex(),
		To:        spender.Hex(),
		Amount:    amount.Dec(),
		Timestamp: time.Now(),
		TxHash:    l.generateTxHash("approval", owner, amount),
	})
	return nil
}

// Allowance returns what spender may still spend on owner's behalf.
func (l *Ledger) Allowance(owner, spender common.Address) (*uint256.Int, error) {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return nil, authority.ErrInvalidAddress
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowance(owner, spender), nil
}

// allowance returns the stored allowance or zero. Callers hold l.mu.
func (l *Ledger) allowance(owner, spender common.Address) *uint256.Int {
	if l.allowances[owner] == nil {
		return uint256.NewInt(0)
	}
	if a, ok := l.allowances[owner][spender]; ok {
		return new(uint256.Int).Set(a)
	}
	return uint256.NewInt(0)
}

// TransferFrom spends the owner's tokens within the spender's allowance.
func (l *Ledger) TransferFrom(owner, spender, to common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) || to == (common.Address{}) {
		return authority.ErrInvalidAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.allowance(owner, spender)
	if current.Lt(amount) {
		l.log.Warnf("TransferFrom failed: %v (allowance %s, requested %s)",
			ErrInsufficientAllowance, current.Dec(), amount.Dec())
		return ErrInsufficientAllowance
	}

	newAllowance, err := safemath.Sub(current, amount)
	if err != nil {
		return err
	}

	if err := l.move(owner, to, amount); err != nil {
		l.log.Warnf("TransferFrom failed: %v", err)
		return err
	}
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	l.allowances[owner][spender] = newAllowance

	l.emitEvent(Event{
		Type:      EventTransfer,
		From:      owner.Hex(),
		To:        to.Hex(),
		Amount:    amount.Dec(),
		Timestamp: time.Now(),
		TxHash:    l.generateTxHash("transferFrom", owner, amount),
	})
	return nil
}
