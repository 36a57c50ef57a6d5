package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"flasharb/core/events"
	"flasharb/core/state"
	"flasharb/core/types"
	"flasharb/native/fees"
	"flasharb/native/registry"
)

// Gateway is the uncollateralized-loan provider contract the engine borrows
// from. Borrow must transfer the amount to the engine and synchronously invoke
// the engine's OnLoanReceived before returning.
type Gateway interface {
	Address() common.Address
	Borrow(caller common.Address, asset string, amount *big.Int, payload []byte) error
}

// Venue executes a single trade call on behalf of the caller. Venues are
// untrusted; the engine dispatches to one only after its address and the
// payload selector pass the registry allow-lists.
type Venue interface {
	Execute(caller common.Address, data []byte) ([]byte, error)
}

// runtime is the single mutable slot tracking one settlement cycle. Active is
// true only between the start of a borrow request and the completion of its
// callback; at most one runtime is ever active per engine instance.
type runtime struct {
	active      bool
	settled     bool
	asset       string
	preBalance  *big.Int
	snapshot    int
	payloadHash common.Hash
	policy      fees.Policy
	result      settledResult
}

type settledResult struct {
	gross   *big.Int
	premium *big.Int
	fee     *big.Int
	net     *big.Int
	payout  common.Address
}

// Engine validates borrow requests, invokes the lender, receives the loan
// callback, executes the trade plan against allow-listed venues, verifies the
// profit invariant against actual post-trade balances, and performs the final
// lender/treasury/payout split. All effects of a cycle commit together or not
// at all, via a ledger snapshot taken before the borrow.
type Engine struct {
	address   common.Address
	ledger    *state.Ledger
	registry  *registry.Registry
	feePolicy *fees.Manager
	gateway   Gateway

	mu      sync.Mutex
	runtime runtime
	paused  bool
	venues  map[common.Address]Venue

	emitter   events.Emitter
	nowFn     func() int64
	baseFeeFn func() *big.Int
}

// NewEngine constructs a settlement engine bound to its collaborators. The
// engine address, ledger, registry, fee manager, and lender gateway are all
// required at construction.
func NewEngine(address common.Address, ledger *state.Ledger, reg *registry.Registry, feePolicy *fees.Manager, gateway Gateway) (*Engine, error) {
	if address == (common.Address{}) {
		return nil, errors.New("settlement engine: engine address must not be zero")
	}
	if ledger == nil {
		return nil, errors.New("settlement engine: ledger not configured")
	}
	if reg == nil {
		return nil, errors.New("settlement engine: access registry not configured")
	}
	if feePolicy == nil {
		return nil, errors.New("settlement engine: fee policy not configured")
	}
	if gateway == nil || gateway.Address() == (common.Address{}) {
		return nil, errors.New("settlement engine: lender gateway not configured")
	}
	return &Engine{
		address:   address,
		ledger:    ledger,
		registry:  reg,
		feePolicy: feePolicy,
		gateway:   gateway,
		venues:    make(map[common.Address]Venue),
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		baseFeeFn: func() *big.Int { return big.NewInt(0) },
	}, nil
}

// Address returns the engine's own ledger identity.
func (e *Engine) Address() common.Address { return e.address }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetBaseFeeFunc wires the platform congestion price source checked against
// each request's base fee ceiling.
func (e *Engine) SetBaseFeeFunc(baseFee func() *big.Int) {
	if e == nil {
		return
	}
	if baseFee == nil {
		e.baseFeeFn = func() *big.Int { return big.NewInt(0) }
		return
	}
	e.baseFeeFn = baseFee
}

// RegisterVenue binds a venue adapter to its target address. Registration
// alone grants nothing; dispatch still requires the registry allow-lists.
func (e *Engine) RegisterVenue(target common.Address, venue Venue) {
	if e == nil || venue == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.venues[target] = venue
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) baseFee() *big.Int {
	if e == nil || e.baseFeeFn == nil {
		return big.NewInt(0)
	}
	if fee := e.baseFeeFn(); fee != nil {
		return fee
	}
	return big.NewInt(0)
}

// RuntimeView is the externally visible slice of the cycle state.
type RuntimeView struct {
	Active     bool
	Asset      string
	PreBalance *big.Int
}

// Runtime returns a copy of the current cycle state.
func (e *Engine) Runtime() RuntimeView {
	e.mu.Lock()
	defer e.mu.Unlock()
	view := RuntimeView{Active: e.runtime.active, Asset: e.runtime.asset}
	if e.runtime.preBalance != nil {
		view.PreBalance = new(big.Int).Set(e.runtime.preBalance)
	}
	return view
}

// Paused reports whether the engine is accepting borrow requests.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// RequestArbitrage validates a borrow-trade-repay proposal and hands it to the
// lender. The lender transfers the funds and synchronously invokes
// OnLoanReceived; by the time Borrow returns, the cycle has either settled
// completely or every one of its effects has been reverted.
func (e *Engine) RequestArbitrage(caller common.Address, asset string, amount *big.Int, trades []types.TradeInstruction, minProfit, baseFeeCeiling *big.Int, deadline int64, payout common.Address) error {
	if !e.registry.HasRole(registry.RoleExecutor, caller) {
		return ErrUnauthorized
	}

	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return ErrEnginePaused
	}
	if e.runtime.active {
		e.mu.Unlock()
		return ErrLoanInFlight
	}

	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if !e.registry.IsAssetApproved(normalized) {
		e.mu.Unlock()
		return ErrAssetNotApproved
	}
	if e.baseFee().Cmp(ensureValue(baseFeeCeiling)) > 0 {
		e.mu.Unlock()
		return ErrBaseFeeTooHigh
	}
	if e.now() > deadline {
		e.mu.Unlock()
		return ErrDeadlineExpired
	}
	if len(trades) == 0 {
		e.mu.Unlock()
		return ErrNoTrades
	}
	if payout == (common.Address{}) {
		e.mu.Unlock()
		return ErrZeroPayout
	}
	if amount == nil || amount.Sign() <= 0 {
		e.mu.Unlock()
		return ErrZeroAmount
	}
	if cap := e.registry.BorrowCap(normalized); cap != nil && amount.Cmp(cap) > 0 {
		e.mu.Unlock()
		return &BorrowCapError{Asset: normalized, Requested: new(big.Int).Set(amount), Cap: cap}
	}

	preBalance, err := e.ledger.Balance(e.address, normalized)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	// Initiator is the engine itself, never the human caller: only the
	// engine can be the party that asked the lender for funds, which is
	// what the callback verifies.
	request := &types.SettlementRequest{
		Initiator:      e.address,
		Payout:         payout,
		Asset:          normalized,
		Amount:         new(big.Int).Set(amount),
		MinProfit:      ensureValue(minProfit),
		BaseFeeCeiling: ensureValue(baseFeeCeiling),
		Deadline:       deadline,
		Trades:         trades,
	}
	payload, err := types.EncodeRequest(request)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	e.runtime = runtime{
		active:      true,
		asset:       normalized,
		preBalance:  preBalance,
		snapshot:    e.ledger.Snapshot(),
		payloadHash: ethcrypto.Keccak256Hash(payload),
		policy:      e.feePolicy.Policy(),
	}
	snapshot := e.runtime.snapshot
	e.mu.Unlock()

	e.emit(NewRequestedEvent(caller, normalized, amount, len(trades)))

	borrowErr := e.gateway.Borrow(e.address, normalized, amount, payload)

	e.mu.Lock()
	settled := e.runtime.settled
	result := e.runtime.result
	if borrowErr == nil && settled {
		// The settled cycle is final. Commit the journal so it does not
		// grow without bound across cycles. This happens before the
		// runtime slot frees so the next cycle's snapshot cannot be
		// invalidated by the truncation.
		e.ledger.DiscardSnapshots()
	}
	e.runtime = runtime{}
	e.mu.Unlock()

	if borrowErr == nil && !settled {
		borrowErr = ErrSettlementIncomplete
	}
	if borrowErr != nil {
		if revertErr := e.ledger.RevertToSnapshot(snapshot); revertErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", borrowErr, revertErr)
		}
		return borrowErr
	}

	e.emit(NewSettledEvent(normalized, amount, result.gross, result.premium, result.fee, result.net, result.payout))
	return nil
}

// OnLoanReceived is the lender callback. It executes the trade plan, verifies
// the profit invariant against the actual post-trade balance, repays the
// lender, routes the fee, and forwards the residual profit. Any error returned
// here causes RequestArbitrage to revert the whole cycle.
func (e *Engine) OnLoanReceived(caller common.Address, asset string, amount, premium *big.Int, initiator common.Address, payload []byte) error {
	e.mu.Lock()
	if caller != e.gateway.Address() {
		e.mu.Unlock()
		return ErrUnexpectedLender
	}
	if !e.runtime.active {
		e.mu.Unlock()
		return ErrNoActiveLoan
	}
	if asset != e.runtime.asset {
		e.mu.Unlock()
		return ErrAssetMismatch
	}
	if initiator != e.address {
		e.mu.Unlock()
		return ErrUntrustedInitiator
	}
	if ethcrypto.Keccak256Hash(payload) != e.runtime.payloadHash {
		e.mu.Unlock()
		return ErrRequestMismatch
	}
	preBalance := new(big.Int).Set(e.runtime.preBalance)
	policy := e.runtime.policy
	e.mu.Unlock()

	request, err := types.DecodeRequest(payload)
	if err != nil {
		return err
	}
	if request.Initiator != e.address {
		return ErrUntrustedInitiator
	}
	// Conditions may have shifted between request and callback; re-derive
	// both guards from the decoded request.
	if e.baseFee().Cmp(request.BaseFeeCeiling) > 0 {
		return ErrBaseFeeTooHigh
	}
	if e.now() > request.Deadline {
		return ErrDeadlineExpired
	}

	for i, trade := range request.Trades {
		if !e.registry.IsTargetApproved(trade.Target) {
			return fmt.Errorf("trade %d: %w", i, ErrInvalidTarget)
		}
		sel, ok := types.SelectorFromPayload(trade.Data)
		if !ok {
			return fmt.Errorf("trade %d: %w", i, ErrInvalidSelector)
		}
		if !e.registry.IsSelectorAllowed(sel) {
			return fmt.Errorf("trade %d: %w", i, ErrInvalidSelector)
		}
		e.mu.Lock()
		venue, registered := e.venues[trade.Target]
		e.mu.Unlock()
		if !registered {
			return fmt.Errorf("trade %d: %w", i, ErrUnknownVenue)
		}
		if _, err := venue.Execute(e.address, trade.Data); err != nil {
			// The venue's failure propagates as-is so operators can
			// tell a griefing revert from a misconfiguration.
			return fmt.Errorf("trade %d: %w", i, err)
		}
	}

	repayment := new(big.Int).Add(request.Amount, ensureValue(premium))
	fee := policy.PlannedFee(request.Amount)

	required := new(big.Int).Add(preBalance, request.MinProfit)
	required.Add(required, repayment)
	required.Add(required, fee)

	actual, err := e.ledger.Balance(e.address, asset)
	if err != nil {
		return err
	}
	if actual.Cmp(required) < 0 {
		return &InsufficientProfitError{Expected: required, Actual: actual}
	}

	if err := e.ledger.Transfer(e.address, e.gateway.Address(), asset, repayment); err != nil {
		return err
	}
	if fee.Sign() > 0 {
		if policy.Recipient == (common.Address{}) {
			return ErrInvalidFeeRecipient
		}
		if err := e.ledger.Transfer(e.address, policy.Recipient, asset, fee); err != nil {
			return err
		}
	}

	// Everything above pre-balance + repayment + fee leaves the engine; the
	// borrowed asset's balance lands exactly back at its pre-cycle value.
	net := new(big.Int).Sub(actual, preBalance)
	net.Sub(net, repayment)
	net.Sub(net, fee)
	if err := e.ledger.Transfer(e.address, request.Payout, asset, net); err != nil {
		return err
	}

	gross := new(big.Int).Sub(actual, preBalance)

	e.mu.Lock()
	e.runtime.settled = true
	e.runtime.result = settledResult{
		gross:   gross,
		premium: ensureValue(premium),
		fee:     fee,
		net:     net,
		payout:  request.Payout,
	}
	e.mu.Unlock()
	return nil
}

// Pause stops new borrow requests. Guardian only: pausing is deliberately
// low-trust so it can happen fast.
func (e *Engine) Pause(caller common.Address) error {
	if !e.registry.HasRole(registry.RoleGuardian, caller) {
		return ErrUnauthorized
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.emit(NewPausedEvent(caller))
	return nil
}

// Unpause resumes borrow requests. Admin only: resuming requires the higher
// trust level.
func (e *Engine) Unpause(caller common.Address) error {
	if !e.registry.HasRole(registry.RoleAdmin, caller) {
		return ErrUnauthorized
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.emit(NewUnpausedEvent(caller))
	return nil
}

// RescueTokens sweeps the engine's full balance of an asset to the provided
// recipient. Admin only, and never while a cycle is active.
func (e *Engine) RescueTokens(caller common.Address, asset string, to common.Address) (*big.Int, error) {
	if !e.registry.HasRole(registry.RoleAdmin, caller) {
		return nil, ErrUnauthorized
	}
	if to == (common.Address{}) {
		return nil, ErrZeroPayout
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	// The active check must cover the transfer itself: a sweep journalled
	// after an in-flight cycle's snapshot would be undone by that cycle's
	// revert even though this call reported success.
	e.mu.Lock()
	if e.runtime.active {
		e.mu.Unlock()
		return nil, ErrLoanInFlight
	}
	balance, err := e.ledger.Balance(e.address, normalized)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if balance.Sign() > 0 {
		if err := e.ledger.Transfer(e.address, to, normalized, balance); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	e.mu.Unlock()
	e.emit(NewTokensRescuedEvent(normalized, balance, to))
	return balance, nil
}

// ApproveSpender pre-authorizes a venue to pull engine funds during trades.
// Strategist only, and never while a cycle is active.
func (e *Engine) ApproveSpender(caller, spender common.Address, asset string, amount *big.Int) error {
	if !e.registry.HasRole(registry.RoleStrategist, caller) {
		return ErrUnauthorized
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	// Same journal hazard as RescueTokens: an approval written inside an
	// active cycle would ride its snapshot and vanish on revert.
	e.mu.Lock()
	if e.runtime.active {
		e.mu.Unlock()
		return ErrLoanInFlight
	}
	if err := e.ledger.Approve(e.address, spender, normalized, amount); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()
	e.emit(NewSpenderApprovedEvent(spender, normalized, amount))
	return nil
}

// SetFeePolicy replaces the protocol fee configuration. Admin only; the new
// policy applies to cycles starting afterward.
func (e *Engine) SetFeePolicy(caller common.Address, policy fees.Policy) error {
	if !e.registry.HasRole(registry.RoleAdmin, caller) {
		return ErrUnauthorized
	}
	if err := e.feePolicy.Configure(policy); err != nil {
		return err
	}
	e.emit(fees.NewConfigUpdatedEvent(policy))
	return nil
}

func ensureValue(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
