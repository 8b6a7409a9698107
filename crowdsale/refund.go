package crowdsale

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/authority"
	"github.com/tokenforge/tokensale/safemath"
)

// Refund returns `amount` of funds to the caller and burns the tokens that
// amount bought, reversing that much of their recorded contribution.
//
// Refund is deliberately not gated on the sale state: it can be invoked
// before or after collection. After collection the sale no longer holds the
// funds, so the call fails with ErrInsufficientFunds.
func (e *Engine) Refund(caller common.Address, amount *uint256.Int) error {
	if caller == (common.Address{}) {
		return authority.ErrInvalidAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	paid := e.paidInOf(caller)
	if amount.Gt(paid) {
		e.log.WithField("caller", caller.Hex()).Warnf("Refund failed: %v (paid %s, requested %s)",
			ErrInsufficientPaidIn, paid.Dec(), amount.Dec())
		return ErrInsufficientPaidIn
	}
	if e.held.Lt(amount) {
		e.log.WithField("caller", caller.Hex()).Warnf("Refund failed: %v (held %s, requested %s)",
			ErrInsufficientFunds, e.held.Dec(), amount.Dec())
		return ErrInsufficientFunds
	}

	tokens, err := e.tokensFor(amount)
	if err != nil {
		return err
	}

	tx := e.vault.Begin()
	if err := tx.Transfer(caller, amount); err != nil {
		tx.Rollback()
		return fmt.Errorf("returning funds: %w", err)
	}

	// Burn fails if the caller already moved the tokens away.
	if !tokens.IsZero() {
		if err := e.ledger.Burn(e.auth.Admin(), caller, tokens); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		e.restoreBurn(caller, tokens)
		return fmt.Errorf("committing refund: %w", err)
	}

	newPaid, _ := safemath.Sub(paid, amount)
	newRaised, _ := safemath.Sub(e.raised, amount)
	newHeld, _ := safemath.Sub(e.held, amount)
	e.paidIn[caller] = newPaid
	e.raised = newRaised
	e.held = newHeld

	e.log.WithFields(logrus.Fields{
		"caller": caller.Hex(),
		"amount": amount.Dec(),
		"tokens": tokens.Dec(),
	}).Info("Refund issued")

	e.emit(Event{
		Type:      EventRefund,
		Account:   caller.Hex(),
		Amount:    amount.Dec(),
		Tokens:    tokens.Dec(),
		Timestamp: time.Now(),
	})
	return nil
}

// restoreBurn re-mints tokens removed by a burn that had to be undone.
func (e *Engine) restoreBurn(caller common.Address, tokens *uint256.Int) {
	if tokens.IsZero() {
		return
	}
	if err := e.ledger.Mint(e.auth.Admin(), caller, tokens); err != nil {
		e.log.WithField("caller", caller.Hex()).Errorf("Burn rollback failed: %v", err)
	}
}
