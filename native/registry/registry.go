package registry

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/events"
	"flasharb/core/types"
)

// Role identifiers. Roles are flat and independent; every operation checks
// exactly the role it requires, never a hierarchy.
const (
	RoleAdmin      = "ROLE_ADMIN"
	RoleGuardian   = "ROLE_GUARDIAN"
	RoleStrategist = "ROLE_STRATEGIST"
	RoleExecutor   = "ROLE_EXECUTOR"
)

var (
	errNilState = errors.New("access registry: state not configured")
	// ErrUnauthorized is returned when the caller lacks the role an
	// operation requires.
	ErrUnauthorized = errors.New("access registry: caller lacks required role")
	// ErrUnknownRole is returned for role identifiers outside the fixed set.
	ErrUnknownRole = errors.New("access registry: unknown role")
	// ErrZeroAddress is returned when a mutator is handed the zero address.
	ErrZeroAddress = errors.New("access registry: zero address")
)

// ApprovalKind distinguishes the three allow-lists the registry maintains.
type ApprovalKind string

const (
	ApprovalAsset    ApprovalKind = "asset"
	ApprovalTarget   ApprovalKind = "target"
	ApprovalSelector ApprovalKind = "selector"
)

// State is the persistence boundary for the registry. The in-memory
// implementation backs tests; the bbolt store backs the daemon.
type State interface {
	HasRole(role string, addr common.Address) (bool, error)
	SetRole(role string, addr common.Address) error
	UnsetRole(role string, addr common.Address) error
	RoleMembers(role string) ([]common.Address, error)

	IsApproved(kind ApprovalKind, key string) (bool, error)
	SetApproved(kind ApprovalKind, key string, approved bool) error

	BorrowCap(asset string) (*big.Int, error)
	SetBorrowCap(asset string, cap *big.Int) error

	Treasury() (common.Address, error)
	SetTreasury(addr common.Address) error
}

// Registry holds role memberships, the asset/target/selector allow-lists, the
// per-asset borrow caps, and the treasury address. It performs no external
// calls; every operation is a state read or a role-gated state write.
type Registry struct {
	state   State
	emitter events.Emitter
}

// NewRegistry constructs a registry over the supplied state, granting the
// initial admin role and recording the initial treasury. Both are required at
// deployment time.
func NewRegistry(state State, admin, treasury common.Address) (*Registry, error) {
	if state == nil {
		return nil, errNilState
	}
	if admin == (common.Address{}) || treasury == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if err := state.SetRole(RoleAdmin, admin); err != nil {
		return nil, err
	}
	if err := state.SetTreasury(treasury); err != nil {
		return nil, err
	}
	return &Registry{state: state, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the event emitter used for change events.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(evt)
}

func validRole(role string) bool {
	switch role {
	case RoleAdmin, RoleGuardian, RoleStrategist, RoleExecutor:
		return true
	}
	return false
}

// HasRole reports whether addr holds the given role. Reads never fail the
// caller; state errors report as "no role" matching the best-effort semantics
// authorization checks need.
func (r *Registry) HasRole(role string, addr common.Address) bool {
	if r == nil || r.state == nil {
		return false
	}
	ok, err := r.state.HasRole(role, addr)
	return err == nil && ok
}

func (r *Registry) requireRole(caller common.Address, role string) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if !r.HasRole(role, caller) {
		return ErrUnauthorized
	}
	return nil
}

// GrantRole assigns role to addr. Admin only.
func (r *Registry) GrantRole(caller common.Address, role string, addr common.Address) error {
	if err := r.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if !validRole(role) {
		return ErrUnknownRole
	}
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := r.state.SetRole(role, addr); err != nil {
		return err
	}
	r.emit(NewRoleGrantedEvent(role, addr))
	return nil
}

// RevokeRole removes role from addr. Admin only.
func (r *Registry) RevokeRole(caller common.Address, role string, addr common.Address) error {
	if err := r.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if !validRole(role) {
		return ErrUnknownRole
	}
	if err := r.state.UnsetRole(role, addr); err != nil {
		return err
	}
	r.emit(NewRoleRevokedEvent(role, addr))
	return nil
}

// RoleMembers returns all addresses assigned to the provided role.
func (r *Registry) RoleMembers(role string) ([]common.Address, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if !validRole(role) {
		return nil, ErrUnknownRole
	}
	return r.state.RoleMembers(role)
}

// IsAssetApproved reports whether the asset may be borrowed.
func (r *Registry) IsAssetApproved(asset string) bool {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return false
	}
	return r.isApproved(ApprovalAsset, normalized)
}

// IsTargetApproved reports whether trade calls may be dispatched to target.
func (r *Registry) IsTargetApproved(target common.Address) bool {
	return r.isApproved(ApprovalTarget, targetKey(target))
}

// IsSelectorAllowed reports whether trade payloads may invoke sel.
func (r *Registry) IsSelectorAllowed(sel types.Selector) bool {
	return r.isApproved(ApprovalSelector, sel.Hex())
}

func (r *Registry) isApproved(kind ApprovalKind, key string) bool {
	if r == nil || r.state == nil {
		return false
	}
	ok, err := r.state.IsApproved(kind, key)
	return err == nil && ok
}

// SetApprovedAsset adds or removes an asset from the borrow allow-list.
// Strategist only.
func (r *Registry) SetApprovedAsset(caller common.Address, asset string, approved bool) error {
	if err := r.requireRole(caller, RoleStrategist); err != nil {
		return err
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if err := r.state.SetApproved(ApprovalAsset, normalized, approved); err != nil {
		return err
	}
	r.emit(NewAssetUpdatedEvent(normalized, approved))
	return nil
}

// SetApprovedTarget adds or removes a venue address from the call allow-list.
// Strategist only.
func (r *Registry) SetApprovedTarget(caller common.Address, target common.Address, approved bool) error {
	if err := r.requireRole(caller, RoleStrategist); err != nil {
		return err
	}
	if target == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := r.state.SetApproved(ApprovalTarget, targetKey(target), approved); err != nil {
		return err
	}
	r.emit(NewTargetUpdatedEvent(target, approved))
	return nil
}

// SetAllowedSelector adds or removes a call selector from the allow-list.
// Strategist only.
func (r *Registry) SetAllowedSelector(caller common.Address, sel types.Selector, allowed bool) error {
	if err := r.requireRole(caller, RoleStrategist); err != nil {
		return err
	}
	if err := r.state.SetApproved(ApprovalSelector, sel.Hex(), allowed); err != nil {
		return err
	}
	r.emit(NewSelectorUpdatedEvent(sel, allowed))
	return nil
}

// BorrowCap returns the configured cap for the asset. A nil result means the
// asset is uncapped.
func (r *Registry) BorrowCap(asset string) *big.Int {
	if r == nil || r.state == nil {
		return nil
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return nil
	}
	cap, err := r.state.BorrowCap(normalized)
	if err != nil || cap == nil || cap.Sign() == 0 {
		return nil
	}
	return new(big.Int).Set(cap)
}

// SetMaxBorrow configures the per-asset borrow cap. A zero cap removes the
// limit. Strategist only.
func (r *Registry) SetMaxBorrow(caller common.Address, asset string, cap *big.Int) error {
	if err := r.requireRole(caller, RoleStrategist); err != nil {
		return err
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if cap != nil && cap.Sign() < 0 {
		return errors.New("access registry: borrow cap must not be negative")
	}
	stored := big.NewInt(0)
	if cap != nil {
		stored = new(big.Int).Set(cap)
	}
	if err := r.state.SetBorrowCap(normalized, stored); err != nil {
		return err
	}
	r.emit(NewCapUpdatedEvent(normalized, stored))
	return nil
}

// Treasury returns the configured protocol fee recipient.
func (r *Registry) Treasury() common.Address {
	if r == nil || r.state == nil {
		return common.Address{}
	}
	addr, err := r.state.Treasury()
	if err != nil {
		return common.Address{}
	}
	return addr
}

// SetTreasury rotates the protocol fee recipient. Admin only.
func (r *Registry) SetTreasury(caller common.Address, treasury common.Address) error {
	if err := r.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if treasury == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := r.state.SetTreasury(treasury); err != nil {
		return err
	}
	r.emit(NewTreasuryUpdatedEvent(treasury))
	return nil
}

func targetKey(target common.Address) string {
	return strings.ToLower(target.Hex())
}
