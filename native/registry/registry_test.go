package registry

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/events"
	"flasharb/core/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	target   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(NewMemoryState(), admin, treasury)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	// The allow-list and cap mutators are strategist-gated.
	if err := reg.GrantRole(admin, RoleStrategist, admin); err != nil {
		t.Fatalf("grant strategist: %v", err)
	}
	return reg
}

func TestNewRegistryGrantsInitialAdmin(t *testing.T) {
	reg := newTestRegistry(t)
	if !reg.HasRole(RoleAdmin, admin) {
		t.Fatalf("initial admin not granted")
	}
	if reg.Treasury() != treasury {
		t.Fatalf("treasury = %s, want %s", reg.Treasury().Hex(), treasury.Hex())
	}
}

func TestNewRegistryRejectsZeroAnchors(t *testing.T) {
	if _, err := NewRegistry(NewMemoryState(), common.Address{}, treasury); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress for admin, got %v", err)
	}
	if _, err := NewRegistry(NewMemoryState(), admin, common.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress for treasury, got %v", err)
	}
}

func TestGrantAndRevokeRole(t *testing.T) {
	reg := newTestRegistry(t)

	if err := reg.GrantRole(admin, RoleExecutor, operator); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !reg.HasRole(RoleExecutor, operator) {
		t.Fatalf("role not granted")
	}
	members, err := reg.RoleMembers(RoleExecutor)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != operator {
		t.Fatalf("members = %v, want [%s]", members, operator.Hex())
	}

	if err := reg.RevokeRole(admin, RoleExecutor, operator); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if reg.HasRole(RoleExecutor, operator) {
		t.Fatalf("role still held after revoke")
	}
}

func TestRoleMutatorsRequireAdmin(t *testing.T) {
	reg := newTestRegistry(t)

	if err := reg.GrantRole(stranger, RoleExecutor, operator); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("grant by stranger: got %v, want ErrUnauthorized", err)
	}
	if err := reg.SetApprovedAsset(stranger, "USDC", true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("approve asset by stranger: got %v, want ErrUnauthorized", err)
	}
	if err := reg.SetMaxBorrow(stranger, "USDC", big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("set cap by stranger: got %v, want ErrUnauthorized", err)
	}
	if err := reg.SetTreasury(stranger, operator); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("set treasury by stranger: got %v, want ErrUnauthorized", err)
	}
}

func TestUnknownRoleRejected(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.GrantRole(admin, "ROLE_JANITOR", operator); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestAssetApproval(t *testing.T) {
	reg := newTestRegistry(t)

	if reg.IsAssetApproved("USDC") {
		t.Fatalf("asset approved before opt-in")
	}
	if err := reg.SetApprovedAsset(admin, "usdc", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Asset symbols normalize case-insensitively.
	if !reg.IsAssetApproved("USDC") {
		t.Fatalf("asset not approved")
	}
	if err := reg.SetApprovedAsset(admin, "USDC", false); err != nil {
		t.Fatalf("unapprove: %v", err)
	}
	if reg.IsAssetApproved("USDC") {
		t.Fatalf("asset still approved after removal")
	}
}

func TestTargetAndSelectorApproval(t *testing.T) {
	reg := newTestRegistry(t)
	sel := types.SelectorOf("swapExactIn(string,string,uint256)")

	if err := reg.SetApprovedTarget(admin, target, true); err != nil {
		t.Fatalf("approve target: %v", err)
	}
	if !reg.IsTargetApproved(target) {
		t.Fatalf("target not approved")
	}
	if reg.IsTargetApproved(stranger) {
		t.Fatalf("unapproved target reported approved")
	}

	if err := reg.SetAllowedSelector(admin, sel, true); err != nil {
		t.Fatalf("allow selector: %v", err)
	}
	if !reg.IsSelectorAllowed(sel) {
		t.Fatalf("selector not allowed")
	}
	if reg.IsSelectorAllowed(types.SelectorOf("transfer(address,uint256)")) {
		t.Fatalf("unlisted selector reported allowed")
	}
}

func TestBorrowCapLifecycle(t *testing.T) {
	reg := newTestRegistry(t)

	if cap := reg.BorrowCap("USDC"); cap != nil {
		t.Fatalf("cap = %s before configuration, want unlimited", cap)
	}
	if err := reg.SetMaxBorrow(admin, "USDC", big.NewInt(500_000)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	cap := reg.BorrowCap("USDC")
	if cap == nil || cap.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("cap = %v, want 500000", cap)
	}
	// Clearing the cap returns the asset to unlimited.
	if err := reg.SetMaxBorrow(admin, "USDC", nil); err != nil {
		t.Fatalf("clear cap: %v", err)
	}
	if cap := reg.BorrowCap("USDC"); cap != nil {
		t.Fatalf("cap = %s after clearing, want unlimited", cap)
	}
}

func TestSetTreasury(t *testing.T) {
	reg := newTestRegistry(t)

	if err := reg.SetTreasury(admin, common.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := reg.SetTreasury(admin, operator); err != nil {
		t.Fatalf("set treasury: %v", err)
	}
	if reg.Treasury() != operator {
		t.Fatalf("treasury = %s, want %s", reg.Treasury().Hex(), operator.Hex())
	}
}

func TestMutationsEmitEvents(t *testing.T) {
	reg := newTestRegistry(t)
	recorder := events.NewRecorder(16)
	reg.SetEmitter(recorder)

	if err := reg.GrantRole(admin, RoleGuardian, operator); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := reg.SetApprovedAsset(admin, "USDC", true); err != nil {
		t.Fatalf("approve asset: %v", err)
	}

	recorded := recorder.Events()
	if len(recorded) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recorded))
	}
	if recorded[0].EventType() != EventTypeRoleGranted {
		t.Fatalf("first event = %s, want %s", recorded[0].EventType(), EventTypeRoleGranted)
	}
}
