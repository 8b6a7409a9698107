package crowdsale

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/safemath"
)

// Contribute is the sale's principal operation and its default entry point
// for value-bearing calls: the caller has already transferred `value` of
// funds, and the engine converts it to tokens at the sale rate.
//
// If accepting the full value would breach the hard cap, only the remaining
// room is accepted: tokens are minted for the accepted part, the excess is
// returned to the caller, the whole held balance is released to the
// beneficiary and the sale becomes Collected within this call.
func (e *Engine) Contribute(caller common.Address, value *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !time.Now().After(e.params.Start) {
		return ErrSaleNotStarted
	}
	if e.collected {
		return ErrAlreadyCollected
	}
	admitted, err := e.whitelist.IsWhitelisted(caller)
	if err != nil {
		return err
	}
	if !admitted {
		e.log.WithField("caller", caller.Hex()).Warnf("Contribution failed: %v", ErrNotWhitelisted)
		return ErrNotWhitelisted
	}
	if value.Lt(e.params.MinDeposit) || value.Gt(e.params.MaxDeposit) {
		return ErrDepositOutOfBounds
	}

	projected, err := safemath.Add(e.raised, value)
	if err != nil {
		return err
	}
	if projected.Gt(e.params.HardCap) {
		return e.contributeCapped(caller, value)
	}
	return e.contributeFull(caller, value, projected)
}

// contributeFull records a contribution that fits under the hard cap.
// Callers hold e.mu.
func (e *Engine) contributeFull(caller common.Address, value, projected *uint256.Int) error {
	tokens, err := e.tokensFor(value)
	if err != nil {
		return err
	}

	if !tokens.IsZero() {
		if err := e.ledger.Mint(e.auth.Admin(), caller, tokens); err != nil {
			return err
		}
	}

	newPaid, err := safemath.Add(e.paidInOf(caller), value)
	if err != nil {
		e.rollbackMint(caller, tokens)
		return err
	}
	newHeld, err := safemath.Add(e.held, value)
	if err != nil {
		e.rollbackMint(caller, tokens)
		return err
	}

	e.paidIn[caller] = newPaid
	e.raised = projected
	e.held = newHeld
	e.roster = append(e.roster, caller)

	e.log.WithFields(logrus.Fields{
		"caller": caller.Hex(),
		"value":  value.Dec(),
		"tokens": tokens.Dec(),
		"raised": e.raised.Dec(),
	}).Info("Contribution accepted")

	e.emit(Event{
		Type:      EventContribution,
		Account:   caller.Hex(),
		Amount:    value.Dec(),
		Tokens:    tokens.Dec(),
		Timestamp: time.Now(),
	})
	return nil
}

// contributeCapped accepts only the room left under the hard cap, returns
// the excess to the caller, releases the held balance to the beneficiary and
// marks the sale collected. Callers hold e.mu.
func (e *Engine) contributeCapped(caller common.Address, value *uint256.Int) error {
	accepted, err := safemath.Sub(e.params.HardCap, e.raised)
	if err != nil {
		return err
	}
	// Derived from the checked subtractions: accepted <= value.
	excess, err := safemath.Sub(value, accepted)
	if err != nil {
		return err
	}
	tokens, err := e.tokensFor(accepted)
	if err != nil {
		return err
	}
	newPaid, err := safemath.Add(e.paidInOf(caller), accepted)
	if err != nil {
		return err
	}
	collectAmount, err := safemath.Add(e.held, accepted)
	if err != nil {
		return err
	}

	beneficiary := e.auth.Admin()
	tx := e.vault.Begin()
	if err := tx.Transfer(caller, excess); err != nil {
		tx.Rollback()
		return fmt.Errorf("returning excess: %w", err)
	}
	if err := tx.Transfer(beneficiary, collectAmount); err != nil {
		tx.Rollback()
		return fmt.Errorf("collecting funds: %w", err)
	}

	if !tokens.IsZero() {
		if err := e.ledger.Mint(beneficiary, caller, tokens); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		e.rollbackMint(caller, tokens)
		return fmt.Errorf("committing payouts: %w", err)
	}

	e.paidIn[caller] = newPaid
	e.raised = new(uint256.Int).Set(e.params.HardCap)
	e.held = uint256.NewInt(0)
	e.roster = append(e.roster, caller)
	e.collected = true

	e.log.WithFields(logrus.Fields{
		"caller":    caller.Hex(),
		"accepted":  accepted.Dec(),
		"excess":    excess.Dec(),
		"collected": collectAmount.Dec(),
	}).Info("Hard cap reached, sale collected")

	now := time.Now()
	e.emit(Event{Type: EventContribution, Account: caller.Hex(), Amount: accepted.Dec(), Tokens: tokens.Dec(), Timestamp: now})
	e.emit(Event{Type: EventExcessReturned, Account: caller.Hex(), Amount: excess.Dec(), Timestamp: now})
	e.emit(Event{Type: EventCollected, Amount: collectAmount.Dec(), Timestamp: now})
	return nil
}

// rollbackMint undoes a mint performed earlier in a failed operation.
func (e *Engine) rollbackMint(caller common.Address, tokens *uint256.Int) {
	if tokens.IsZero() {
		return
	}
	if err := e.ledger.Burn(e.auth.Admin(), caller, tokens); err != nil {
		e.log.WithField("caller", caller.Hex()).Errorf("Mint rollback failed: %v", err)
	}
}
