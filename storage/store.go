package storage

import (
	"errors"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"flasharb/native/fees"
	"flasharb/native/registry"
)

var (
	bucketRoles     = []byte("roles")
	bucketApprovals = []byte("approvals")
	bucketCaps      = []byte("caps")
	bucketMeta      = []byte("meta")

	keyTreasury  = []byte("treasury")
	keyFeePolicy = []byte("feePolicy")

	errNilStore = errors.New("storage: store not initialised")
)

// Store is the BoltDB-backed persistence layer for administrative state: role
// memberships, the allow-lists, borrow caps, the treasury, and the fee
// policy. Ledger balances deliberately stay out of it; they model on-platform
// funds, not service configuration.
type Store struct {
	db *bolt.DB
}

// NewStore opens (and initialises) the BoltDB-backed store.
func NewStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRoles, bucketApprovals, bucketCaps, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func roleKey(role string, addr common.Address) []byte {
	return []byte(role + "/" + strings.ToLower(addr.Hex()))
}

func approvalKey(kind registry.ApprovalKind, key string) []byte {
	return []byte(string(kind) + "/" + key)
}

// HasRole implements registry.State.
func (s *Store) HasRole(role string, addr common.Address) (bool, error) {
	if s == nil || s.db == nil {
		return false, errNilStore
	}
	var held bool
	err := s.db.View(func(tx *bolt.Tx) error {
		held = tx.Bucket(bucketRoles).Get(roleKey(role, addr)) != nil
		return nil
	})
	return held, err
}

// SetRole implements registry.State.
func (s *Store) SetRole(role string, addr common.Address) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Put(roleKey(role, addr), []byte{1})
	})
}

// UnsetRole implements registry.State.
func (s *Store) UnsetRole(role string, addr common.Address) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Delete(roleKey(role, addr))
	})
}

// RoleMembers implements registry.State. Members come back sorted by address.
func (s *Store) RoleMembers(role string) ([]common.Address, error) {
	if s == nil || s.db == nil {
		return nil, errNilStore
	}
	prefix := []byte(role + "/")
	members := make([]common.Address, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketRoles).Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = cursor.Next() {
			members = append(members, common.HexToAddress(strings.TrimPrefix(string(k), string(prefix))))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool {
		return strings.Compare(members[i].Hex(), members[j].Hex()) < 0
	})
	return members, nil
}

// IsApproved implements registry.State.
func (s *Store) IsApproved(kind registry.ApprovalKind, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errNilStore
	}
	var approved bool
	err := s.db.View(func(tx *bolt.Tx) error {
		approved = tx.Bucket(bucketApprovals).Get(approvalKey(kind, key)) != nil
		return nil
	})
	return approved, err
}

// SetApproved implements registry.State.
func (s *Store) SetApproved(kind registry.ApprovalKind, key string, approved bool) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketApprovals)
		if approved {
			return bucket.Put(approvalKey(kind, key), []byte{1})
		}
		return bucket.Delete(approvalKey(kind, key))
	})
}

// BorrowCap implements registry.State.
func (s *Store) BorrowCap(asset string) (*big.Int, error) {
	if s == nil || s.db == nil {
		return nil, errNilStore
	}
	cap := big.NewInt(0)
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketCaps).Get([]byte(asset)); len(raw) > 0 {
			cap.SetBytes(raw)
		}
		return nil
	})
	return cap, err
}

// SetBorrowCap implements registry.State. A zero cap deletes the entry.
func (s *Store) SetBorrowCap(asset string, cap *big.Int) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCaps)
		if cap == nil || cap.Sign() == 0 {
			return bucket.Delete([]byte(asset))
		}
		return bucket.Put([]byte(asset), cap.Bytes())
	})
}

// Treasury implements registry.State.
func (s *Store) Treasury() (common.Address, error) {
	if s == nil || s.db == nil {
		return common.Address{}, errNilStore
	}
	var treasury common.Address
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(keyTreasury); len(raw) == common.AddressLength {
			copy(treasury[:], raw)
		}
		return nil
	})
	return treasury, err
}

// SetTreasury implements registry.State.
func (s *Store) SetTreasury(addr common.Address) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyTreasury, addr.Bytes())
	})
}

// FeePolicy loads the persisted fee policy, reporting whether one was stored.
func (s *Store) FeePolicy() (fees.Policy, bool, error) {
	if s == nil || s.db == nil {
		return fees.Policy{}, false, errNilStore
	}
	var (
		policy fees.Policy
		found  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyFeePolicy)
		if len(raw) != 1+4+common.AddressLength {
			return nil
		}
		found = true
		policy.Enabled = raw[0] == 1
		policy.FeeBps = uint32(raw[1])<<24 | uint32(raw[2])<<16 | uint32(raw[3])<<8 | uint32(raw[4])
		copy(policy.Recipient[:], raw[5:])
		return nil
	})
	return policy, found, err
}

// PutFeePolicy persists the fee policy so it survives restarts.
func (s *Store) PutFeePolicy(policy fees.Policy) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	raw := make([]byte, 1+4+common.AddressLength)
	if policy.Enabled {
		raw[0] = 1
	}
	raw[1] = byte(policy.FeeBps >> 24)
	raw[2] = byte(policy.FeeBps >> 16)
	raw[3] = byte(policy.FeeBps >> 8)
	raw[4] = byte(policy.FeeBps)
	copy(raw[5:], policy.Recipient.Bytes())
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyFeePolicy, raw)
	})
}
