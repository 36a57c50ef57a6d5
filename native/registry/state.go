package registry

import (
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryState is the in-process State implementation. It backs tests and
// deployments that do not need administrative state to survive restarts.
type MemoryState struct {
	mu        sync.RWMutex
	roles     map[string]map[common.Address]struct{}
	approvals map[ApprovalKind]map[string]struct{}
	caps      map[string]*big.Int
	treasury  common.Address
}

// NewMemoryState constructs an empty in-memory registry state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		roles:     make(map[string]map[common.Address]struct{}),
		approvals: make(map[ApprovalKind]map[string]struct{}),
		caps:      make(map[string]*big.Int),
	}
}

// HasRole implements State.
func (s *MemoryState) HasRole(role string, addr common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.roles[role]
	if !ok {
		return false, nil
	}
	_, ok = members[addr]
	return ok, nil
}

// SetRole implements State. Duplicate assignments are ignored.
func (s *MemoryState) SetRole(role string, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.roles[role]
	if !ok {
		members = make(map[common.Address]struct{})
		s.roles[role] = members
	}
	members[addr] = struct{}{}
	return nil
}

// UnsetRole implements State. Removing an absent member is a no-op.
func (s *MemoryState) UnsetRole(role string, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.roles[role]; ok {
		delete(members, addr)
	}
	return nil
}

// RoleMembers implements State. Members are sorted for determinism.
func (s *MemoryState) RoleMembers(role string) ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]common.Address, 0, len(s.roles[role]))
	for addr := range s.roles[role] {
		members = append(members, addr)
	}
	sort.Slice(members, func(i, j int) bool {
		return strings.Compare(members[i].Hex(), members[j].Hex()) < 0
	})
	return members, nil
}

// IsApproved implements State.
func (s *MemoryState) IsApproved(kind ApprovalKind, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.approvals[kind]
	if !ok {
		return false, nil
	}
	_, ok = entries[key]
	return ok, nil
}

// SetApproved implements State.
func (s *MemoryState) SetApproved(kind ApprovalKind, key string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.approvals[kind]
	if !ok {
		entries = make(map[string]struct{})
		s.approvals[kind] = entries
	}
	if approved {
		entries[key] = struct{}{}
	} else {
		delete(entries, key)
	}
	return nil
}

// BorrowCap implements State.
func (s *MemoryState) BorrowCap(asset string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cap, ok := s.caps[asset]; ok {
		return new(big.Int).Set(cap), nil
	}
	return big.NewInt(0), nil
}

// SetBorrowCap implements State.
func (s *MemoryState) SetBorrowCap(asset string, cap *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap == nil || cap.Sign() == 0 {
		delete(s.caps, asset)
		return nil
	}
	s.caps[asset] = new(big.Int).Set(cap)
	return nil
}

// Treasury implements State.
func (s *MemoryState) Treasury() (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.treasury, nil
}

// SetTreasury implements State.
func (s *MemoryState) SetTreasury(addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treasury = addr
	return nil
}
