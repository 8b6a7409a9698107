package crowdsale

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Finalize releases the held balance to the beneficiary if the soft cap has
// been met, and reports whether the sale is collected afterward.
// Administrator-only. Below the soft cap nothing changes: the sale stays
// open and contributors keep the ability to refund.
func (e *Engine) Finalize(caller common.Address) (bool, error) {
	if err := e.auth.Require(caller); err != nil {
		e.log.WithField("caller", caller.Hex()).Warnf("Finalize failed: %v", err)
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.collected {
		return true, nil
	}
	if e.held.Lt(e.params.SoftCap) {
		e.log.WithFields(map[string]interface{}{
			"held":     e.held.Dec(),
			"soft_cap": e.params.SoftCap.Dec(),
		}).Info("Soft cap not met, sale remains open")
		return false, nil
	}

	collectAmount := new(uint256.Int).Set(e.held)
	beneficiary := e.auth.Admin()

	tx := e.vault.Begin()
	if err := tx.Transfer(beneficiary, collectAmount); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("collecting funds: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing payout: %w", err)
	}

	e.held = uint256.NewInt(0)
	e.collected = true

	e.log.WithField("collected", collectAmount.Dec()).Info("Sale finalized, funds collected")
	e.emit(Event{
		Type:      EventCollected,
		Amount:    collectAmount.Dec(),
		Timestamp: time.Now(),
	})
	return true, nil
}
