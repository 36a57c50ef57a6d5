package lender

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/state"
	"flasharb/core/types"
)

var (
	errNilLedger   = errors.New("lender pool: ledger not configured")
	errNilReceiver = errors.New("lender pool: receiver not configured")
	// ErrInvalidAmount is returned for non-positive borrow or funding
	// amounts.
	ErrInvalidAmount = errors.New("lender pool: amount must be positive")
	// ErrInsufficientLiquidity is returned when the pool cannot cover the
	// requested loan.
	ErrInsufficientLiquidity = errors.New("lender pool: insufficient liquidity")
	// ErrLoanNotRepaid is returned when the borrower's callback concludes
	// without the pool's balance growing by principal plus premium.
	ErrLoanNotRepaid = errors.New("lender pool: loan not repaid with premium")
)

var basisPoints = big.NewInt(10_000)

// Receiver is the borrower-side callback contract. The pool transfers the
// loan, then synchronously invokes OnLoanReceived before Borrow returns.
type Receiver interface {
	Address() common.Address
	OnLoanReceived(caller common.Address, asset string, amount, premium *big.Int, initiator common.Address, payload []byte) error
}

// Pool is an uncollateralized same-call lender over the shared ledger. It
// holds liquidity at its own address, charges a premium proportional to the
// borrowed amount, and insists on repayment before Borrow returns.
type Pool struct {
	address    common.Address
	ledger     *state.Ledger
	receiver   Receiver
	premiumBps uint32
}

// NewPool constructs a lender pool at the given ledger address with the
// supplied premium rate.
func NewPool(address common.Address, ledger *state.Ledger, premiumBps uint32) (*Pool, error) {
	if address == (common.Address{}) {
		return nil, errors.New("lender pool: address must not be zero")
	}
	if ledger == nil {
		return nil, errNilLedger
	}
	if premiumBps > 10_000 {
		return nil, errors.New("lender pool: premium bps out of range")
	}
	return &Pool{address: address, ledger: ledger, premiumBps: premiumBps}, nil
}

// SetReceiver wires the borrower invoked on every loan.
func (p *Pool) SetReceiver(receiver Receiver) {
	if p == nil {
		return
	}
	p.receiver = receiver
}

// Address returns the pool's ledger identity.
func (p *Pool) Address() common.Address { return p.address }

// PremiumFor computes the premium owed on a loan of the given amount.
func (p *Pool) PremiumFor(amount *big.Int) *big.Int {
	if p == nil || amount == nil || amount.Sign() <= 0 || p.premiumBps == 0 {
		return big.NewInt(0)
	}
	premium := new(big.Int).Mul(amount, big.NewInt(int64(p.premiumBps)))
	return premium.Quo(premium, basisPoints)
}

// Fund moves liquidity from a supplier into the pool.
func (p *Pool) Fund(from common.Address, asset string, amount *big.Int) error {
	if p == nil || p.ledger == nil {
		return errNilLedger
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	return p.ledger.Transfer(from, p.address, normalized, amount)
}

// Liquidity returns the pool's current balance of the asset.
func (p *Pool) Liquidity(asset string) (*big.Int, error) {
	if p == nil || p.ledger == nil {
		return nil, errNilLedger
	}
	return p.ledger.Balance(p.address, asset)
}

// Borrow transfers the amount to the receiver, invokes the callback with the
// computed premium, and verifies repayment arrived before returning. The
// caller identity is reported to the receiver as the loan initiator; the
// borrower's payload passes through opaque and untouched.
func (p *Pool) Borrow(caller common.Address, asset string, amount *big.Int, payload []byte) error {
	if p == nil || p.ledger == nil {
		return errNilLedger
	}
	if p.receiver == nil {
		return errNilReceiver
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}

	preBalance, err := p.ledger.Balance(p.address, normalized)
	if err != nil {
		return err
	}
	if preBalance.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	if err := p.ledger.Transfer(p.address, p.receiver.Address(), normalized, amount); err != nil {
		return err
	}

	premium := p.PremiumFor(amount)
	if err := p.receiver.OnLoanReceived(p.address, normalized, amount, premium, caller, payload); err != nil {
		return err
	}

	postBalance, err := p.ledger.Balance(p.address, normalized)
	if err != nil {
		return err
	}
	expected := new(big.Int).Add(preBalance, premium)
	if postBalance.Cmp(expected) < 0 {
		return ErrLoanNotRepaid
	}
	return nil
}
