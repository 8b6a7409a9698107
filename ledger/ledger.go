// Package ledger implements the token's balance and allowance bookkeeping:
// mint, burn, transfer, approve and transferFrom, plus the total-supply
// counter. All arithmetic goes through safemath; mint and burn are gated by
// the sale's administrator authority.
package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/authority"
)

var (
	ErrMintingClosed         = errors.New("minting has been finished")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrAllowanceReset        = errors.New("allowance must be reset to zero before a new approval")
	ErrZeroAmount            = errors.New("amount must be > 0")
)

// Ledger owns per-account balances and per-(owner,spender) allowances for
// one token. The sale engine that constructs it is the only minter.
type Ledger struct {
	Name     string
	Symbol   string
	Decimals uint8

	totalSupply     *uint256.Int
	balances        map[common.Address]*uint256.Int
	allowances      map[common.Address]map[common.Address]*uint256.Int
	mintingFinished bool

	auth   *authority.Authority
	events []Event
	mu     sync.RWMutex
	log    *logrus.Logger
}

// New creates an empty ledger whose mint/burn operations require the
// administrator of auth.
func New(name, symbol string, decimals uint8, auth *authority.Authority, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.New()
	}
	return &Ledger{
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		totalSupply: uint256.NewInt(0),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		auth:        auth,
		log:         log,
	}
}

// TotalSupply returns the current total supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.totalSupply)
}

// BalanceOf returns the balance of address. The null address is rejected.
func (l *Ledger) BalanceOf(address common.Address) (*uint256.Int, error) {
	if address == (common.Address{}) {
		return nil, authority.ErrInvalidAddress
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance(address), nil
}

// MintingFinished reports whether minting has been permanently closed.
func (l *Ledger) MintingFinished() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mintingFinished
}

// FinishMinting closes minting permanently. Administrator-only; calling it
// again once closed is a no-op.
func (l *Ledger) FinishMinting(caller common.Address) error {
	if err := l.auth.Require(caller); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mintingFinished {
		return nil
	}
	l.mintingFinished = true
	l.log.WithField("token", l.Symbol).Info("Minting finished")
	return nil
}

// balance returns the stored balance or zero. Callers hold l.mu.
func (l *Ledger) balance(address common.Address) *uint256.Int {
	if b, ok := l.balances[address]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// generateTxHash derives a short unique hash for event records.
func (l *Ledger) generateTxHash(operation string, address common.Address, amount *uint256.Int) string {
	data := fmt.Sprintf("%s_%s_%s_%s_%d",
		l.Symbol, operation, address.Hex(), amount.Dec(), time.Now().UnixNano())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("0x%x", hash[:8])
}
