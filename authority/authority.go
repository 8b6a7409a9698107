// Package authority holds the single-administrator capability that gates
// privileged sale and ledger operations.
package authority

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnauthorized   = errors.New("unauthorized: admin access required")
	ErrInvalidAddress = errors.New("invalid address")
)

// Authority tracks the current administrator. Exactly one address holds the
// role at a time; it is transferable only by the current holder.
type Authority struct {
	admin common.Address
	mu    sync.RWMutex
	log   *logrus.Logger
}

// New creates an Authority with the given initial administrator.
func New(admin common.Address, log *logrus.Logger) (*Authority, error) {
	if admin == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	if log == nil {
		log = logrus.New()
	}
	return &Authority{admin: admin, log: log}, nil
}

// Admin returns the current administrator address.
func (a *Authority) Admin() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.admin
}

// Require returns ErrUnauthorized unless caller is the current administrator.
func (a *Authority) Require(caller common.Address) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if caller != a.admin {
		return ErrUnauthorized
	}
	return nil
}

// Transfer replaces the administrator. Only the current administrator may
// call it, and the null address is rejected.
func (a *Authority) Transfer(caller, newAdmin common.Address) error {
	if newAdmin == (common.Address{}) {
		return ErrInvalidAddress
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.admin {
		return ErrUnauthorized
	}

	old := a.admin
	a.admin = newAdmin
	a.log.WithFields(logrus.Fields{
		"old_admin": old.Hex(),
		"new_admin": newAdmin.Hex(),
	}).Info("Ownership transferred")
	return nil
}
