package crowdsale

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/ledger"
)

// Snapshot is the sale's complete persistable state, including its ledger.
// Amounts are decimal strings and addresses are hex.
type Snapshot struct {
	SaleName      string    `json:"sale_name"`
	TokenName     string    `json:"token_name"`
	TokenSymbol   string    `json:"token_symbol"`
	TokenDecimals uint8     `json:"token_decimals"`
	Rate          string    `json:"rate"`
	Start         time.Time `json:"start"`
	MinDeposit    string    `json:"min_deposit"`
	MaxDeposit    string    `json:"max_deposit"`
	SoftCap       string    `json:"soft_cap"`
	HardCap       string    `json:"hard_cap"`

	Admin     string            `json:"admin"`
	Raised    string            `json:"raised"`
	Held      string            `json:"held"`
	PaidIn    map[string]string `json:"paid_in"`
	Roster    []string          `json:"roster"`
	Collected bool              `json:"collected"`
	Whitelist []string          `json:"whitelist"`

	Ledger ledger.State `json:"ledger"`
}

// Snapshot captures the sale for persistence.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		SaleName:      e.params.SaleName,
		TokenName:     e.params.TokenName,
		TokenSymbol:   e.params.TokenSymbol,
		TokenDecimals: e.params.TokenDecimals,
		Rate:          e.params.Rate.Dec(),
		Start:         e.params.Start,
		MinDeposit:    e.params.MinDeposit.Dec(),
		MaxDeposit:    e.params.MaxDeposit.Dec(),
		SoftCap:       e.params.SoftCap.Dec(),
		HardCap:       e.params.HardCap.Dec(),
		Admin:         e.auth.Admin().Hex(),
		Raised:        e.raised.Dec(),
		Held:          e.held.Dec(),
		PaidIn:        make(map[string]string, len(e.paidIn)),
		Roster:        make([]string, 0, len(e.roster)),
		Collected:     e.collected,
	}
	for account, paid := range e.paidIn {
		snap.PaidIn[account.Hex()] = paid.Dec()
	}
	for _, account := range e.roster {
		snap.Roster = append(snap.Roster, account.Hex())
	}
	for _, account := range e.whitelist.Members() {
		snap.Whitelist = append(snap.Whitelist, account.Hex())
	}
	snap.Ledger = e.ledger.State()
	return snap
}

// Restore reconstructs a sale from a snapshot. The vault is supplied fresh:
// fund custody lives outside the snapshot.
func Restore(snap Snapshot, vault Vault, log *logrus.Logger) (*Engine, error) {
	params := Params{
		TokenName:     snap.TokenName,
		TokenSymbol:   snap.TokenSymbol,
		TokenDecimals: snap.TokenDecimals,
		SaleName:      snap.SaleName,
		Start:         snap.Start,
	}
	var err error
	if params.Rate, err = uint256.FromDecimal(snap.Rate); err != nil {
		return nil, fmt.Errorf("rate: %w", err)
	}
	if params.MinDeposit, err = uint256.FromDecimal(snap.MinDeposit); err != nil {
		return nil, fmt.Errorf("min deposit: %w", err)
	}
	if params.MaxDeposit, err = uint256.FromDecimal(snap.MaxDeposit); err != nil {
		return nil, fmt.Errorf("max deposit: %w", err)
	}
	if params.SoftCap, err = uint256.FromDecimal(snap.SoftCap); err != nil {
		return nil, fmt.Errorf("soft cap: %w", err)
	}
	if params.HardCap, err = uint256.FromDecimal(snap.HardCap); err != nil {
		return nil, fmt.Errorf("hard cap: %w", err)
	}

	if !common.IsHexAddress(snap.Admin) {
		return nil, fmt.Errorf("admin address %q is not valid", snap.Admin)
	}
	e, err := New(params, common.HexToAddress(snap.Admin), vault, log)
	if err != nil {
		return nil, err
	}

	if e.raised, err = uint256.FromDecimal(snap.Raised); err != nil {
		return nil, fmt.Errorf("raised: %w", err)
	}
	if e.held, err = uint256.FromDecimal(snap.Held); err != nil {
		return nil, fmt.Errorf("held: %w", err)
	}
	for account, raw := range snap.PaidIn {
		paid, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("paid-in of %s: %w", account, err)
		}
		e.paidIn[common.HexToAddress(account)] = paid
	}
	for _, account := range snap.Roster {
		e.roster = append(e.roster, common.HexToAddress(account))
	}
	e.collected = snap.Collected

	members := make([]common.Address, 0, len(snap.Whitelist))
	for _, account := range snap.Whitelist {
		members = append(members, common.HexToAddress(account))
	}
	e.whitelist.Restore(members)

	if err := e.ledger.Restore(snap.Ledger); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return e, nil
}
