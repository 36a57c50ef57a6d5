package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// TradeInstruction is a single call the settlement engine performs against an
// approved venue. Data carries the selector followed by the RLP-encoded
// arguments the venue expects.
type TradeInstruction struct {
	Target common.Address
	Data   []byte
}

// SettlementRequest carries every parameter of a borrow-trade-repay cycle from
// the request entry point through the lender callback. It is immutable once
// handed to the lender and must round-trip byte-exactly through the callback
// boundary so the engine can re-validate against the exact submitted terms.
type SettlementRequest struct {
	Initiator      common.Address
	Payout         common.Address
	Asset          string
	Amount         *big.Int
	MinProfit      *big.Int
	BaseFeeCeiling *big.Int
	Deadline       int64
	Trades         []TradeInstruction
}

type wireTrade struct {
	Target common.Address
	Data   []byte
}

type wireRequest struct {
	Initiator      common.Address
	Payout         common.Address
	Asset          string
	Amount         *big.Int
	MinProfit      *big.Int
	BaseFeeCeiling *big.Int
	Deadline       uint64
	Trades         []wireTrade
}

// EncodeRequest serialises the request into the opaque payload handed to the
// lender gateway.
func EncodeRequest(req *SettlementRequest) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("settlement request must not be nil")
	}
	if req.Deadline < 0 {
		return nil, fmt.Errorf("settlement request deadline must not be negative")
	}
	wire := wireRequest{
		Initiator:      req.Initiator,
		Payout:         req.Payout,
		Asset:          req.Asset,
		Amount:         ensureAmount(req.Amount),
		MinProfit:      ensureAmount(req.MinProfit),
		BaseFeeCeiling: ensureAmount(req.BaseFeeCeiling),
		Deadline:       uint64(req.Deadline),
		Trades:         make([]wireTrade, len(req.Trades)),
	}
	for i, trade := range req.Trades {
		wire.Trades[i] = wireTrade{Target: trade.Target, Data: append([]byte(nil), trade.Data...)}
	}
	return rlp.EncodeToBytes(&wire)
}

// DecodeRequest reverses EncodeRequest. The decoded value owns its memory and
// shares nothing with the payload.
func DecodeRequest(payload []byte) (*SettlementRequest, error) {
	var wire wireRequest
	if err := rlp.DecodeBytes(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode settlement request: %w", err)
	}
	req := &SettlementRequest{
		Initiator:      wire.Initiator,
		Payout:         wire.Payout,
		Asset:          wire.Asset,
		Amount:         ensureAmount(wire.Amount),
		MinProfit:      ensureAmount(wire.MinProfit),
		BaseFeeCeiling: ensureAmount(wire.BaseFeeCeiling),
		Deadline:       int64(wire.Deadline),
		Trades:         make([]TradeInstruction, len(wire.Trades)),
	}
	for i, trade := range wire.Trades {
		req.Trades[i] = TradeInstruction{Target: trade.Target, Data: append([]byte(nil), trade.Data...)}
	}
	return req, nil
}

func ensureAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
