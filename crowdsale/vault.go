package crowdsale

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Vault is the seam to whatever actually moves sale funds. Outbound
// transfers are staged on a VaultTx and applied atomically on Commit, so a
// failed stage aborts the enclosing sale operation with nothing paid out.
type Vault interface {
	Begin() VaultTx
}

// VaultTx stages outbound transfers for one sale operation. Transfer may
// fail (the recipient can reject funds); Commit applies every staged
// transfer and must not fail after successful staging; Rollback discards
// the staged transfers.
type VaultTx interface {
	Transfer(to common.Address, amount *uint256.Int) error
	Commit() error
	Rollback()
}

// MemoryVault is an in-process Vault that tracks per-account fund balances.
// It exists for tests and for single-process deployments where the host
// settles real value out of band.
type MemoryVault struct {
	balances map[common.Address]*uint256.Int
	rejected map[common.Address]bool
	mu       sync.Mutex
}

// NewMemoryVault creates an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances: make(map[common.Address]*uint256.Int),
		rejected: make(map[common.Address]bool),
	}
}

// BalanceOf returns the funds credited to an account so far.
func (v *MemoryVault) BalanceOf(account common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b, ok := v.balances[account]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Reject makes future transfers to account fail at staging time, modelling
// a recipient that refuses funds.
func (v *MemoryVault) Reject(account common.Address, reject bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejected[account] = reject
}

// Begin starts a staged transfer batch.
func (v *MemoryVault) Begin() VaultTx {
	return &memoryVaultTx{vault: v}
}

type memoryVaultTx struct {
	vault  *MemoryVault
	staged []payout
	done   bool
}

type payout struct {
	to     common.Address
	amount *uint256.Int
}

func (tx *memoryVaultTx) Transfer(to common.Address, amount *uint256.Int) error {
	tx.vault.mu.Lock()
	defer tx.vault.mu.Unlock()

	if tx.vault.rejected[to] {
		return fmt.Errorf("transfer to %s rejected by recipient", to.Hex())
	}
	tx.staged = append(tx.staged, payout{to: to, amount: new(uint256.Int).Set(amount)})
	return nil
}

func (tx *memoryVaultTx) Commit() error {
	tx.vault.mu.Lock()
	defer tx.vault.mu.Unlock()

	if tx.done {
		return nil
	}
	tx.done = true
	for _, p := range tx.staged {
		current, ok := tx.vault.balances[p.to]
		if !ok {
			current = uint256.NewInt(0)
		}
		tx.vault.balances[p.to] = new(uint256.Int).Add(current, p.amount)
	}
	return nil
}

func (tx *memoryVaultTx) Rollback() {
	tx.done = true
	tx.staged = nil
}
