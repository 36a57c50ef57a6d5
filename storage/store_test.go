package storage

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"flasharb/native/fees"
	"flasharb/native/registry"
)

var (
	addrOne = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addrTwo = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestRoleRoundTrip(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.HasRole(registry.RoleExecutor, addrOne)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetRole(registry.RoleExecutor, addrOne))
	require.NoError(t, store.SetRole(registry.RoleExecutor, addrTwo))

	ok, err = store.HasRole(registry.RoleExecutor, addrOne)
	require.NoError(t, err)
	require.True(t, ok)

	members, err := store.RoleMembers(registry.RoleExecutor)
	require.NoError(t, err)
	require.Len(t, members, 2)

	require.NoError(t, store.UnsetRole(registry.RoleExecutor, addrOne))
	ok, err = store.HasRole(registry.RoleExecutor, addrOne)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRolesAreIndependent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetRole(registry.RoleAdmin, addrOne))

	ok, err := store.HasRole(registry.RoleGuardian, addrOne)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApprovalRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetApproved(registry.ApprovalAsset, "USDC", true))
	ok, err := store.IsApproved(registry.ApprovalAsset, "USDC")
	require.NoError(t, err)
	require.True(t, ok)

	// Kinds partition the approval space.
	ok, err = store.IsApproved(registry.ApprovalTarget, "USDC")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetApproved(registry.ApprovalAsset, "USDC", false))
	ok, err = store.IsApproved(registry.ApprovalAsset, "USDC")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBorrowCapRoundTrip(t *testing.T) {
	store := newTestStore(t)

	cap, err := store.BorrowCap("USDC")
	require.NoError(t, err)
	require.Zero(t, cap.Sign())

	require.NoError(t, store.SetBorrowCap("USDC", big.NewInt(2_500_000)))
	cap, err = store.BorrowCap("USDC")
	require.NoError(t, err)
	require.NotNil(t, cap)
	require.Zero(t, cap.Cmp(big.NewInt(2_500_000)))
}

func TestTreasuryRoundTrip(t *testing.T) {
	store := newTestStore(t)

	treasury, err := store.Treasury()
	require.NoError(t, err)
	require.Equal(t, common.Address{}, treasury)

	require.NoError(t, store.SetTreasury(addrTwo))
	treasury, err = store.Treasury()
	require.NoError(t, err)
	require.Equal(t, addrTwo, treasury)
}

func TestFeePolicyRoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.FeePolicy()
	require.NoError(t, err)
	require.False(t, found)

	want := fees.Policy{Enabled: true, FeeBps: 500, Recipient: addrOne}
	require.NoError(t, store.PutFeePolicy(want))

	got, found, err := store.FeePolicy()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	store, err := NewStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetRole(registry.RoleAdmin, addrOne))
	require.NoError(t, store.SetTreasury(addrTwo))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	ok, err := reopened.HasRole(registry.RoleAdmin, addrOne)
	require.NoError(t, err)
	require.True(t, ok)
	treasury, err := reopened.Treasury()
	require.NoError(t, err)
	require.Equal(t, addrTwo, treasury)
}
