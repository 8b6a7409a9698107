// Package crowdsale implements the token-sale state machine: it accepts
// contributions during the sale window, converts them to tokens at a fixed
// rate, enforces per-deposit bounds and the sale-wide hard cap, and settles
// the sale by collecting funds for the beneficiary or refunding contributors.
package crowdsale

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/authority"
	"github.com/tokenforge/tokensale/ledger"
	"github.com/tokenforge/tokensale/registry"
	"github.com/tokenforge/tokensale/safemath"
)

var (
	ErrSaleNotStarted     = errors.New("sale has not started")
	ErrAlreadyCollected   = errors.New("sale already collected")
	ErrNotWhitelisted     = errors.New("account is not whitelisted")
	ErrDepositOutOfBounds = errors.New("deposit outside allowed bounds")
	ErrInsufficientPaidIn = errors.New("amount exceeds recorded contribution")
	ErrIndexOutOfRange    = errors.New("roster index out of range")
	ErrInsufficientFunds  = errors.New("sale holds insufficient funds")
)

// SaleState is the lifecycle position of a sale.
type SaleState string

const (
	StatePending   SaleState = "pending"
	StateOpen      SaleState = "open"
	StateCollected SaleState = "collected"
)

// Params are the immutable sale parameters fixed at construction.
type Params struct {
	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	SaleName      string

	// Rate converts funding units to tokens together with the token's
	// decimal unit: tokens = value * 10^decimals / rate.
	Rate *uint256.Int

	Start      time.Time
	MinDeposit *uint256.Int
	MaxDeposit *uint256.Int
	SoftCap    *uint256.Int
	HardCap    *uint256.Int
}

func (p Params) validate() error {
	for name, v := range map[string]*uint256.Int{
		"rate":        p.Rate,
		"min deposit": p.MinDeposit,
		"max deposit": p.MaxDeposit,
		"soft cap":    p.SoftCap,
		"hard cap":    p.HardCap,
	} {
		if v == nil {
			return fmt.Errorf("%s not set", name)
		}
	}
	if p.Rate.IsZero() {
		return fmt.Errorf("rate must be > 0")
	}
	if p.MaxDeposit.Lt(p.MinDeposit) {
		return fmt.Errorf("max deposit below min deposit")
	}
	if p.HardCap.IsZero() {
		return fmt.Errorf("hard cap must be > 0")
	}
	return nil
}

func (p Params) clone() Params {
	c := p
	c.Rate = new(uint256.Int).Set(p.Rate)
	c.MinDeposit = new(uint256.Int).Set(p.MinDeposit)
	c.MaxDeposit = new(uint256.Int).Set(p.MaxDeposit)
	c.SoftCap = new(uint256.Int).Set(p.SoftCap)
	c.HardCap = new(uint256.Int).Set(p.HardCap)
	return c
}

// Engine is one sale instance. It owns the token ledger it mints into, the
// administrator authority and the contributor whitelist. All mutating
// operations run under a single lock and either complete fully or leave no
// trace.
type Engine struct {
	params    Params
	tokenUnit *uint256.Int // 10^decimals

	ledger    *ledger.Ledger
	auth      *authority.Authority
	whitelist *registry.Whitelist
	vault     Vault

	raised    *uint256.Int // sum of recorded paid-in amounts
	held      *uint256.Int // funds currently held by the sale
	paidIn    map[common.Address]*uint256.Int
	roster    []common.Address
	collected bool

	handlers   []EventHandler
	handlersMu sync.RWMutex
	mu         sync.Mutex
	log        *logrus.Logger
}

// New creates a sale with a freshly created token ledger. The deployer
// becomes the administrator and beneficiary.
func New(params Params, deployer common.Address, vault Vault, log *logrus.Logger) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, fmt.Errorf("vault not set")
	}
	if log == nil {
		log = logrus.New()
	}

	auth, err := authority.New(deployer, log)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		params:    params.clone(),
		tokenUnit: tokenUnit(params.TokenDecimals),
		ledger:    ledger.New(params.TokenName, params.TokenSymbol, params.TokenDecimals, auth, log),
		auth:      auth,
		whitelist: registry.NewWhitelist(auth, log),
		vault:     vault,
		raised:    uint256.NewInt(0),
		held:      uint256.NewInt(0),
		paidIn:    make(map[common.Address]*uint256.Int),
		log:       log,
	}

	log.WithFields(logrus.Fields{
		"sale":     params.SaleName,
		"token":    params.TokenSymbol,
		"hard_cap": params.HardCap.Dec(),
		"soft_cap": params.SoftCap.Dec(),
	}).Info("Sale created")
	return e, nil
}

func tokenUnit(decimals uint8) *uint256.Int {
	unit := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < decimals; i++ {
		unit.Mul(unit, ten)
	}
	return unit
}

// Ledger returns the sale's token ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Admin returns the current administrator (and beneficiary) address.
func (e *Engine) Admin() common.Address {
	return e.auth.Admin()
}

// Params returns a copy of the immutable sale parameters.
func (e *Engine) Params() Params {
	return e.params.clone()
}

// State reports the sale's lifecycle position.
func (e *Engine) State() SaleState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state()
}

func (e *Engine) state() SaleState {
	if e.collected {
		return StateCollected
	}
	if !time.Now().After(e.params.Start) {
		return StatePending
	}
	return StateOpen
}

// Collected reports whether funds have been released to the beneficiary.
func (e *Engine) Collected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collected
}

// Raised returns the sum of recorded contributions.
func (e *Engine) Raised() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(uint256.Int).Set(e.raised)
}

// Held returns the funds currently held by the sale.
func (e *Engine) Held() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(uint256.Int).Set(e.held)
}

// PaidIn returns the recorded contribution of one account.
func (e *Engine) PaidIn(account common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paidInOf(account)
}

func (e *Engine) paidInOf(account common.Address) *uint256.Int {
	if p, ok := e.paidIn[account]; ok {
		return new(uint256.Int).Set(p)
	}
	return uint256.NewInt(0)
}

// RosterLen returns the number of contribution records.
func (e *Engine) RosterLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.roster)
}

// RosterAt returns the contributor at the given roster index. The roster is
// append-only; an account appears once per contribution.
func (e *Engine) RosterAt(index int) (common.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.roster) {
		return common.Address{}, ErrIndexOutOfRange
	}
	return e.roster[index], nil
}

// IsWhitelisted reports whether an account may contribute.
func (e *Engine) IsWhitelisted(account common.Address) (bool, error) {
	return e.whitelist.IsWhitelisted(account)
}

// SetWhitelisted flips an account's admission flag. Administrator-only.
func (e *Engine) SetWhitelisted(caller, account common.Address, allowed bool) error {
	if err := e.whitelist.Set(caller, account, allowed); err != nil {
		return err
	}
	e.emit(Event{
		Type:      EventWhitelistUpdated,
		Account:   account.Hex(),
		Timestamp: time.Now(),
	})
	return nil
}

// WhitelistMembers returns every admitted account.
func (e *Engine) WhitelistMembers() []common.Address {
	return e.whitelist.Members()
}

// TransferOwnership hands the administrator role to newAdmin.
// Administrator-only; the null address is rejected.
func (e *Engine) TransferOwnership(caller, newAdmin common.Address) error {
	if err := e.auth.Transfer(caller, newAdmin); err != nil {
		return err
	}
	e.emit(Event{
		Type:      EventOwnershipTransferred,
		Account:   newAdmin.Hex(),
		Timestamp: time.Now(),
	})
	return nil
}

// FinishMinting permanently closes minting on the sale's ledger.
// Administrator-only and idempotent.
func (e *Engine) FinishMinting(caller common.Address) error {
	return e.ledger.FinishMinting(caller)
}

// tokensFor converts a funding amount to a token amount:
// value * 10^decimals / rate, truncating. Overflow in the multiply surfaces
// as an error rather than silent truncation.
func (e *Engine) tokensFor(value *uint256.Int) (*uint256.Int, error) {
	scaled, err := safemath.Mul(value, e.tokenUnit)
	if err != nil {
		return nil, err
	}
	return safemath.Div(scaled, e.params.Rate)
}
