package fees

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/types"
)

var basisPoints = big.NewInt(10_000)

// ErrInvalidFeeConfig is returned when enabling the fee with an out-of-range
// rate or a zero recipient. The guard prevents silently losing fee revenue or
// routing it to an unspendable address.
var ErrInvalidFeeConfig = errors.New("fee policy: invalid configuration")

// Policy captures whether the protocol fee is active, its rate in basis
// points, and its recipient. The fee is charged on the borrowed amount rather
// than realized profit; a cycle that barely clears its minimum profit still
// owes the full fee.
type Policy struct {
	Enabled   bool
	FeeBps    uint32
	Recipient common.Address
}

// Clone returns a copy of the policy.
func (p Policy) Clone() Policy {
	return Policy{Enabled: p.Enabled, FeeBps: p.FeeBps, Recipient: p.Recipient}
}

// Validate reports whether the policy is internally consistent.
func (p Policy) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.FeeBps == 0 || p.FeeBps > 10_000 {
		return ErrInvalidFeeConfig
	}
	if p.Recipient == (common.Address{}) {
		return ErrInvalidFeeConfig
	}
	return nil
}

// PlannedFee computes the fee owed on the provided borrowed amount:
// amount*FeeBps/10000 when enabled, zero otherwise.
func (p Policy) PlannedFee(amount *big.Int) *big.Int {
	if !p.Enabled || p.FeeBps == 0 || amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(p.FeeBps)))
	return fee.Quo(fee, basisPoints)
}

// Manager holds the live fee policy behind a mutex so the settlement engine
// can read it while administrative updates arrive over RPC.
type Manager struct {
	mu      sync.RWMutex
	policy  Policy
	persist func(Policy) error
}

// NewManager constructs a manager with the fee disabled.
func NewManager() *Manager {
	return &Manager{}
}

// Policy returns a copy of the current policy.
func (m *Manager) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy.Clone()
}

// SetPersistFunc registers a sink that durably records every accepted policy
// update. A nil persist disables persistence.
func (m *Manager) SetPersistFunc(persist func(Policy) error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist = persist
}

// Configure replaces the policy after validating it. Role enforcement happens
// at the settlement engine boundary; the manager only guards consistency. The
// update is persisted before it goes live, so a persistence failure leaves
// the previous policy in force.
func (m *Manager) Configure(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persist != nil {
		if err := m.persist(policy); err != nil {
			return fmt.Errorf("fee policy: persist: %w", err)
		}
	}
	m.policy = policy.Clone()
	return nil
}

// EventTypeConfigUpdated is emitted whenever the fee configuration changes.
const EventTypeConfigUpdated = "fees.config_updated"

// NewConfigUpdatedEvent returns the canonical payload for a fee policy change.
func NewConfigUpdatedEvent(policy Policy) *types.Event {
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: map[string]string{
		"enabled":   strconv.FormatBool(policy.Enabled),
		"feeBps":    strconv.FormatUint(uint64(policy.FeeBps), 10),
		"recipient": strings.ToLower(policy.Recipient.Hex()),
	}}
}
