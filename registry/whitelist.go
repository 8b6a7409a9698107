// Package registry keeps the roster of accounts admitted to the sale.
package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/authority"
)

// Whitelist maps accounts to an admission flag. Edits are administrator-only.
type Whitelist struct {
	allowed map[common.Address]bool
	auth    *authority.Authority
	mu      sync.RWMutex
	log     *logrus.Logger
}

// NewWhitelist creates an empty whitelist gated by auth.
func NewWhitelist(auth *authority.Authority, log *logrus.Logger) *Whitelist {
	if log == nil {
		log = logrus.New()
	}
	return &Whitelist{
		allowed: make(map[common.Address]bool),
		auth:    auth,
		log:     log,
	}
}

// Set flips the admission flag for account. Fails with ErrUnauthorized unless
// caller is the administrator, and with ErrInvalidAddress for the null account.
func (w *Whitelist) Set(caller, account common.Address, allowed bool) error {
	if err := w.auth.Require(caller); err != nil {
		w.log.WithField("caller", caller.Hex()).Warnf("Whitelist edit failed: %v", err)
		return err
	}
	if account == (common.Address{}) {
		return authority.ErrInvalidAddress
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.allowed[account] = allowed
	w.log.WithFields(logrus.Fields{
		"account": account.Hex(),
		"allowed": allowed,
	}).Info("Whitelist updated")
	return nil
}

// IsWhitelisted reports whether account is admitted. The null account is an
// error rather than simply absent.
func (w *Whitelist) IsWhitelisted(account common.Address) (bool, error) {
	if account == (common.Address{}) {
		return false, authority.ErrInvalidAddress
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.allowed[account], nil
}

// Restore replaces the admitted set with members. Used when loading from
// persistence, so it bypasses the administrator gate.
func (w *Whitelist) Restore(members []common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.allowed = make(map[common.Address]bool, len(members))
	for _, account := range members {
		w.allowed[account] = true
	}
}

// Members returns every account currently admitted, for enumeration.
func (w *Whitelist) Members() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var members []common.Address
	for addr, ok := range w.allowed {
		if ok {
			members = append(members, addr)
		}
	}
	return members
}
