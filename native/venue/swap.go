package venue

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"flasharb/core/state"
	"flasharb/core/types"
)

// SwapExactInSelector identifies the single operation the swap venue exposes.
var SwapExactInSelector = types.SelectorOf("swapExactIn(string,string,uint256)")

var (
	errNilLedger = errors.New("swap venue: ledger not configured")
	// ErrUnsupportedSelector is returned for payloads invoking anything but
	// swapExactIn.
	ErrUnsupportedSelector = errors.New("swap venue: unsupported selector")
	// ErrUnknownPair is returned when no rate is configured for the
	// requested asset pair.
	ErrUnknownPair = errors.New("swap venue: no rate for pair")
	// ErrInsufficientInventory is returned when the venue cannot cover the
	// output amount.
	ErrInsufficientInventory = errors.New("swap venue: insufficient inventory")
)

type pairKey struct {
	assetIn  string
	assetOut string
}

type pairRate struct {
	num *big.Int
	den *big.Int
}

// SwapArgs is the RLP argument block following the selector in a swapExactIn
// payload.
type SwapArgs struct {
	AssetIn  string
	AssetOut string
	AmountIn *big.Int
}

// Swap is a fixed-rate converter holding its own inventory on the ledger. It
// pulls the input via the caller's allowance and credits the output at the
// configured rate, so a whole trade leg stays inside the journalled ledger.
type Swap struct {
	address common.Address
	ledger  *state.Ledger

	mu    sync.RWMutex
	rates map[pairKey]pairRate
}

// NewSwap constructs a swap venue at the given ledger address.
func NewSwap(address common.Address, ledger *state.Ledger) (*Swap, error) {
	if address == (common.Address{}) {
		return nil, errors.New("swap venue: address must not be zero")
	}
	if ledger == nil {
		return nil, errNilLedger
	}
	return &Swap{address: address, ledger: ledger, rates: make(map[pairKey]pairRate)}, nil
}

// Address returns the venue's ledger identity.
func (s *Swap) Address() common.Address { return s.address }

// SetRate configures the conversion rate num/den applied when swapping
// assetIn for assetOut.
func (s *Swap) SetRate(assetIn, assetOut string, num, den *big.Int) error {
	normalizedIn, err := types.NormalizeAsset(assetIn)
	if err != nil {
		return err
	}
	normalizedOut, err := types.NormalizeAsset(assetOut)
	if err != nil {
		return err
	}
	if num == nil || num.Sign() <= 0 || den == nil || den.Sign() <= 0 {
		return fmt.Errorf("swap venue: rate must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[pairKey{assetIn: normalizedIn, assetOut: normalizedOut}] = pairRate{
		num: new(big.Int).Set(num),
		den: new(big.Int).Set(den),
	}
	return nil
}

// EncodeSwapPayload builds the call payload for a swapExactIn trade
// instruction.
func EncodeSwapPayload(assetIn, assetOut string, amountIn *big.Int) ([]byte, error) {
	args, err := rlp.EncodeToBytes(&SwapArgs{AssetIn: assetIn, AssetOut: assetOut, AmountIn: amountIn})
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), SwapExactInSelector[:]...), args...), nil
}

// Execute implements the settlement engine's Venue interface. The caller must
// have approved the venue to pull the input amount beforehand.
func (s *Swap) Execute(caller common.Address, data []byte) ([]byte, error) {
	if s == nil || s.ledger == nil {
		return nil, errNilLedger
	}
	sel, ok := types.SelectorFromPayload(data)
	if !ok || sel != SwapExactInSelector {
		return nil, ErrUnsupportedSelector
	}
	var args SwapArgs
	if err := rlp.DecodeBytes(data[4:], &args); err != nil {
		return nil, fmt.Errorf("swap venue: decode args: %w", err)
	}
	normalizedIn, err := types.NormalizeAsset(args.AssetIn)
	if err != nil {
		return nil, err
	}
	normalizedOut, err := types.NormalizeAsset(args.AssetOut)
	if err != nil {
		return nil, err
	}
	if args.AmountIn == nil || args.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("swap venue: input amount must be positive")
	}

	s.mu.RLock()
	rate, known := s.rates[pairKey{assetIn: normalizedIn, assetOut: normalizedOut}]
	s.mu.RUnlock()
	if !known {
		return nil, ErrUnknownPair
	}

	amountOut := new(big.Int).Mul(args.AmountIn, rate.num)
	amountOut.Quo(amountOut, rate.den)

	inventory, err := s.ledger.Balance(s.address, normalizedOut)
	if err != nil {
		return nil, err
	}
	if inventory.Cmp(amountOut) < 0 {
		return nil, ErrInsufficientInventory
	}

	if err := s.ledger.TransferFrom(s.address, caller, s.address, normalizedIn, args.AmountIn); err != nil {
		return nil, err
	}
	if err := s.ledger.Transfer(s.address, caller, normalizedOut, amountOut); err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(amountOut)
}
