package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is the ledger's persistable form. Amounts are decimal strings and
// addresses are hex, so the encoding survives any JSON round trip.
type State struct {
	Name            string                       `json:"name"`
	Symbol          string                       `json:"symbol"`
	Decimals        uint8                        `json:"decimals"`
	TotalSupply     string                       `json:"total_supply"`
	Balances        map[string]string            `json:"balances"`
	Allowances      map[string]map[string]string `json:"allowances"`
	MintingFinished bool                         `json:"minting_finished"`
	Events          []Event                      `json:"events"`
}

// State captures the ledger for persistence.
func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := State{
		Name:            l.Name,
		Symbol:          l.Symbol,
		Decimals:        l.Decimals,
		TotalSupply:     l.totalSupply.Dec(),
		Balances:        make(map[string]string, len(l.balances)),
		Allowances:      make(map[string]map[string]string, len(l.allowances)),
		MintingFinished: l.mintingFinished,
		Events:          append([]Event(nil), l.events...),
	}
	for address, balance := range l.balances {
		s.Balances[address.Hex()] = balance.Dec()
	}
	for owner, spenders := range l.allowances {
		inner := make(map[string]string, len(spenders))
		for spender, allowance := range spenders {
			inner[spender.Hex()] = allowance.Dec()
		}
		s.Allowances[owner.Hex()] = inner
	}
	return s
}

// Restore overwrites the ledger's bookkeeping with a previously captured
// state. Used when loading from persistence; not part of the token API.
func (l *Ledger) Restore(s State) error {
	supply, err := parseAmount(s.TotalSupply)
	if err != nil {
		return fmt.Errorf("total supply: %w", err)
	}
	balances := make(map[common.Address]*uint256.Int, len(s.Balances))
	for address, raw := range s.Balances {
		balance, err := parseAmount(raw)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", address, err)
		}
		balances[common.HexToAddress(address)] = balance
	}
	allowances := make(map[common.Address]map[common.Address]*uint256.Int, len(s.Allowances))
	for owner, spenders := range s.Allowances {
		inner := make(map[common.Address]*uint256.Int, len(spenders))
		for spender, raw := range spenders {
			allowance, err := parseAmount(raw)
			if err != nil {
				return fmt.Errorf("allowance %s->%s: %w", owner, spender, err)
			}
			inner[common.HexToAddress(spender)] = allowance
		}
		allowances[common.HexToAddress(owner)] = inner
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.Name = s.Name
	l.Symbol = s.Symbol
	l.Decimals = s.Decimals
	l.totalSupply = supply
	l.balances = balances
	l.allowances = allowances
	l.mintingFinished = s.MintingFinished
	l.events = append([]Event(nil), s.Events...)
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	if raw == "" {
		return uint256.NewInt(0), nil
	}
	return uint256.FromDecimal(raw)
}
