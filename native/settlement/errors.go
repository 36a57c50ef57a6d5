package settlement

import (
	"errors"
	"fmt"
	"math/big"
)

// Authorization failures.
var (
	ErrUnauthorized       = errors.New("settlement engine: caller lacks required role")
	ErrUnexpectedLender   = errors.New("settlement engine: callback not from configured lender")
	ErrUntrustedInitiator = errors.New("settlement engine: initiator is not the engine")
)

// Configuration failures.
var (
	ErrAssetNotApproved    = errors.New("settlement engine: asset not approved for borrowing")
	ErrInvalidTarget       = errors.New("settlement engine: trade target not approved")
	ErrInvalidSelector     = errors.New("settlement engine: trade selector not allowed")
	ErrUnknownVenue        = errors.New("settlement engine: no venue registered for target")
	ErrInvalidFeeRecipient = errors.New("settlement engine: fee owed but recipient unset")
)

// Economic failures.
var (
	ErrBaseFeeTooHigh  = errors.New("settlement engine: base fee above requested ceiling")
	ErrDeadlineExpired = errors.New("settlement engine: deadline expired")
)

// State failures.
var (
	ErrLoanInFlight         = errors.New("settlement engine: loan already in flight")
	ErrEnginePaused         = errors.New("settlement engine: paused")
	ErrNoActiveLoan         = errors.New("settlement engine: no active loan")
	ErrAssetMismatch        = errors.New("settlement engine: callback asset does not match active loan")
	ErrRequestMismatch      = errors.New("settlement engine: callback payload does not match issued request")
	ErrNoTrades             = errors.New("settlement engine: trade plan must not be empty")
	ErrZeroAmount           = errors.New("settlement engine: borrow amount must be positive")
	ErrZeroPayout           = errors.New("settlement engine: payout address must not be zero")
	ErrSettlementIncomplete = errors.New("settlement engine: lender returned without invoking callback")
)

// BorrowCapError reports a borrow request above the configured per-asset cap.
type BorrowCapError struct {
	Asset     string
	Requested *big.Int
	Cap       *big.Int
}

func (e *BorrowCapError) Error() string {
	return fmt.Sprintf("settlement engine: borrow amount too high for %s: requested %s, cap %s",
		e.Asset, e.Requested, e.Cap)
}

// InsufficientProfitError reports a cycle whose realized post-trade balance
// fell short of the required threshold. Expected is the full required balance
// (pre-balance + minimum profit + repayment + fee); Actual is the balance the
// trades actually produced.
type InsufficientProfitError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *InsufficientProfitError) Error() string {
	return fmt.Sprintf("settlement engine: insufficient profit: expected balance %s, actual %s",
		e.Expected, e.Actual)
}
