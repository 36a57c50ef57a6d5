package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/types"
)

var (
	// ErrInsufficientBalance is returned when a transfer would overdraw the
	// sender.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInsufficientAllowance is returned when a delegated transfer exceeds
	// the approved amount.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	// ErrInvalidSnapshot is returned when reverting to an unknown snapshot id.
	ErrInvalidSnapshot = errors.New("ledger: invalid snapshot id")
)

type balanceKey struct {
	addr  common.Address
	asset string
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
	asset   string
}

type journalKind uint8

const (
	journalBalance journalKind = iota
	journalAllowance
)

type journalEntry struct {
	kind      journalKind
	balance   balanceKey
	allowance allowanceKey
	prev      *big.Int
}

// Ledger tracks per-(address, asset) balances and per-(owner, spender, asset)
// allowances with an undo journal. Snapshot/RevertToSnapshot give callers
// all-or-nothing semantics over an arbitrary run of mutations: the settlement
// engine takes one snapshot per cycle and reverts it on any failure.
//
// Mutations are journalled under a single mutex; the journal assumes the
// single-flight discipline the settlement engine enforces, so no two snapshot
// scopes ever interleave.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	journal    []journalEntry
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Snapshot marks the current journal position. The returned id is only valid
// until a later RevertToSnapshot with an earlier id.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

// RevertToSnapshot undoes every mutation recorded after the snapshot id,
// restoring balances and allowances bit-identically.
func (l *Ledger) RevertToSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return ErrInvalidSnapshot
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		entry := l.journal[i]
		switch entry.kind {
		case journalBalance:
			if entry.prev == nil {
				delete(l.balances, entry.balance)
			} else {
				l.balances[entry.balance] = entry.prev
			}
		case journalAllowance:
			if entry.prev == nil {
				delete(l.allowances, entry.allowance)
			} else {
				l.allowances[entry.allowance] = entry.prev
			}
		}
	}
	l.journal = l.journal[:id]
	return nil
}

// DiscardSnapshots drops the journal accumulated so far, committing the
// current state as the new baseline.
func (l *Ledger) DiscardSnapshots() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = l.journal[:0]
}

// Balance returns a copy of the balance held by addr in the given asset.
func (l *Ledger) Balance(addr common.Address, asset string) (*big.Int, error) {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if current, ok := l.balances[balanceKey{addr: addr, asset: normalized}]; ok {
		return new(big.Int).Set(current), nil
	}
	return big.NewInt(0), nil
}

// Mint credits freshly issued units to addr. Used to seed lender liquidity and
// venue inventory at deployment time.
func (l *Ledger) Mint(addr common.Address, asset string, amount *big.Int) error {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: mint amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey{addr: addr, asset: normalized}
	l.setBalance(key, new(big.Int).Add(l.currentBalance(key), amount))
	return nil
}

// Transfer moves amount of asset from one account to another.
func (l *Ledger) Transfer(from, to common.Address, asset string, amount *big.Int) error {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer amount must not be negative")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromKey := balanceKey{addr: from, asset: normalized}
	fromBalance := l.currentBalance(fromKey)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toKey := balanceKey{addr: to, asset: normalized}
	l.setBalance(fromKey, new(big.Int).Sub(fromBalance, amount))
	l.setBalance(toKey, new(big.Int).Add(l.currentBalance(toKey), amount))
	return nil
}

// Approve authorises spender to pull up to amount of owner's asset via
// TransferFrom. A zero amount clears the allowance.
func (l *Ledger) Approve(owner, spender common.Address, asset string, amount *big.Int) error {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: allowance must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{owner: owner, spender: spender, asset: normalized}
	l.journal = append(l.journal, journalEntry{kind: journalAllowance, allowance: key, prev: l.allowances[key]})
	if amount.Sign() == 0 {
		delete(l.allowances, key)
		return nil
	}
	l.allowances[key] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns a copy of the remaining amount spender may pull from
// owner.
func (l *Ledger) Allowance(owner, spender common.Address, asset string) (*big.Int, error) {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if current, ok := l.allowances[allowanceKey{owner: owner, spender: spender, asset: normalized}]; ok {
		return new(big.Int).Set(current), nil
	}
	return big.NewInt(0), nil
}

// TransferFrom moves amount of owner's asset to the recipient, consuming the
// spender's allowance.
func (l *Ledger) TransferFrom(spender, owner, to common.Address, asset string, amount *big.Int) error {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer amount must not be negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowKey := allowanceKey{owner: owner, spender: spender, asset: normalized}
	remaining, ok := l.allowances[allowKey]
	if !ok || remaining.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	fromKey := balanceKey{addr: owner, asset: normalized}
	fromBalance := l.currentBalance(fromKey)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.journal = append(l.journal, journalEntry{kind: journalAllowance, allowance: allowKey, prev: remaining})
	l.allowances[allowKey] = new(big.Int).Sub(remaining, amount)
	toKey := balanceKey{addr: to, asset: normalized}
	l.setBalance(fromKey, new(big.Int).Sub(fromBalance, amount))
	l.setBalance(toKey, new(big.Int).Add(l.currentBalance(toKey), amount))
	return nil
}

func (l *Ledger) currentBalance(key balanceKey) *big.Int {
	if current, ok := l.balances[key]; ok {
		return current
	}
	return big.NewInt(0)
}

func (l *Ledger) setBalance(key balanceKey, value *big.Int) {
	l.journal = append(l.journal, journalEntry{kind: journalBalance, balance: key, prev: l.balances[key]})
	l.balances[key] = value
}
