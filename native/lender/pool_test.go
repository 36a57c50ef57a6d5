package lender

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/state"
)

var (
	poolAddr     = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	borrowerAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	supplierAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

// repayingReceiver pays back principal plus premium from its own balance, so
// the pool sees the growth it insists on.
type repayingReceiver struct {
	ledger *state.Ledger
	repay  bool

	gotInitiator common.Address
	gotPremium   *big.Int
	gotPayload   []byte
}

func (r *repayingReceiver) Address() common.Address { return borrowerAddr }

func (r *repayingReceiver) OnLoanReceived(caller common.Address, asset string, amount, premium *big.Int, initiator common.Address, payload []byte) error {
	r.gotInitiator = initiator
	r.gotPremium = new(big.Int).Set(premium)
	r.gotPayload = payload
	if !r.repay {
		return nil
	}
	repayment := new(big.Int).Add(amount, premium)
	return r.ledger.Transfer(borrowerAddr, caller, asset, repayment)
}

func newTestPool(t *testing.T, premiumBps uint32) (*Pool, *state.Ledger, *repayingReceiver) {
	t.Helper()
	ledger := state.NewLedger()
	pool, err := NewPool(poolAddr, ledger, premiumBps)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	receiver := &repayingReceiver{ledger: ledger, repay: true}
	pool.SetReceiver(receiver)
	if err := ledger.Mint(poolAddr, "USDC", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return pool, ledger, receiver
}

func TestPremiumFor(t *testing.T) {
	pool, _, _ := newTestPool(t, 9)
	if got := pool.PremiumFor(big.NewInt(1_000_000)); got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("premium = %s, want 900", got)
	}
	// Floors: 9 bps of 999 is zero.
	if got := pool.PremiumFor(big.NewInt(999)); got.Sign() != 0 {
		t.Fatalf("premium = %s, want 0", got)
	}
	free, _, _ := newTestPool(t, 0)
	if got := free.PremiumFor(big.NewInt(1_000_000)); got.Sign() != 0 {
		t.Fatalf("zero-bps premium = %s, want 0", got)
	}
}

func TestBorrowRoundTrip(t *testing.T) {
	pool, ledger, receiver := newTestPool(t, 9)
	// The borrower needs its own funds to cover the premium.
	if err := ledger.Mint(borrowerAddr, "USDC", big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	payload := []byte{0xde, 0xad}
	if err := pool.Borrow(borrowerAddr, "USDC", big.NewInt(500_000), payload); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	if receiver.gotInitiator != borrowerAddr {
		t.Fatalf("initiator = %s, want caller", receiver.gotInitiator.Hex())
	}
	if receiver.gotPremium.Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("premium = %s, want 450", receiver.gotPremium)
	}
	if string(receiver.gotPayload) != string(payload) {
		t.Fatalf("payload altered in transit")
	}
	liquidity, err := pool.Liquidity("USDC")
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.Cmp(big.NewInt(1_000_450)) != 0 {
		t.Fatalf("pool balance = %s, want 1000450", liquidity)
	}
}

func TestBorrowFailsWithoutRepayment(t *testing.T) {
	pool, _, receiver := newTestPool(t, 9)
	receiver.repay = false

	err := pool.Borrow(borrowerAddr, "USDC", big.NewInt(500_000), nil)
	if !errors.Is(err, ErrLoanNotRepaid) {
		t.Fatalf("expected ErrLoanNotRepaid, got %v", err)
	}
}

func TestBorrowValidation(t *testing.T) {
	pool, _, _ := newTestPool(t, 9)

	if err := pool.Borrow(borrowerAddr, "USDC", big.NewInt(0), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if err := pool.Borrow(borrowerAddr, "USDC", big.NewInt(1_000_001), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("over liquidity: got %v, want ErrInsufficientLiquidity", err)
	}
}

func TestFund(t *testing.T) {
	pool, ledger, _ := newTestPool(t, 9)
	if err := ledger.Mint(supplierAddr, "USDC", big.NewInt(250_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := pool.Fund(supplierAddr, "USDC", big.NewInt(250_000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	liquidity, err := pool.Liquidity("USDC")
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.Cmp(big.NewInt(1_250_000)) != 0 {
		t.Fatalf("pool balance = %s, want 1250000", liquidity)
	}

	if err := pool.Fund(supplierAddr, "USDC", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero fund: got %v, want ErrInvalidAmount", err)
	}
}

func TestNewPoolValidation(t *testing.T) {
	if _, err := NewPool(common.Address{}, state.NewLedger(), 9); err == nil {
		t.Fatalf("zero address accepted")
	}
	if _, err := NewPool(poolAddr, nil, 9); err == nil {
		t.Fatalf("nil ledger accepted")
	}
	if _, err := NewPool(poolAddr, state.NewLedger(), 10_001); err == nil {
		t.Fatalf("out-of-range premium accepted")
	}
}
