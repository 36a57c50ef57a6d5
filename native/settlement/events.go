package settlement

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/types"
)

const (
	EventTypeRequested       = "settlement.requested"
	EventTypeSettled         = "settlement.settled"
	EventTypePaused          = "settlement.paused"
	EventTypeUnpaused        = "settlement.unpaused"
	EventTypeTokensRescued   = "settlement.tokens_rescued"
	EventTypeSpenderApproved = "settlement.spender_approved"
)

// NewRequestedEvent returns the payload emitted when a borrow request passes
// validation and is handed to the lender.
func NewRequestedEvent(initiator common.Address, asset string, amount *big.Int, trades int) *types.Event {
	return &types.Event{Type: EventTypeRequested, Attributes: map[string]string{
		"initiator": strings.ToLower(initiator.Hex()),
		"asset":     asset,
		"amount":    amountString(amount),
		"trades":    big.NewInt(int64(trades)).String(),
	}}
}

// NewSettledEvent returns the payload emitted after a successful settlement:
// the gross balance delta the trades produced, the lender premium, the
// protocol fee, the net profit forwarded, and its destination.
func NewSettledEvent(asset string, amount, gross, premium, fee, net *big.Int, payout common.Address) *types.Event {
	return &types.Event{Type: EventTypeSettled, Attributes: map[string]string{
		"asset":   asset,
		"amount":  amountString(amount),
		"gross":   amountString(gross),
		"premium": amountString(premium),
		"fee":     amountString(fee),
		"net":     amountString(net),
		"payout":  strings.ToLower(payout.Hex()),
	}}
}

// NewPausedEvent returns the payload emitted when a guardian pauses the
// engine.
func NewPausedEvent(guardian common.Address) *types.Event {
	return &types.Event{Type: EventTypePaused, Attributes: map[string]string{
		"guardian": strings.ToLower(guardian.Hex()),
	}}
}

// NewUnpausedEvent returns the payload emitted when an admin resumes the
// engine.
func NewUnpausedEvent(admin common.Address) *types.Event {
	return &types.Event{Type: EventTypeUnpaused, Attributes: map[string]string{
		"admin": strings.ToLower(admin.Hex()),
	}}
}

// NewTokensRescuedEvent returns the payload emitted when an admin sweeps a
// stuck balance out of the engine.
func NewTokensRescuedEvent(asset string, amount *big.Int, to common.Address) *types.Event {
	return &types.Event{Type: EventTypeTokensRescued, Attributes: map[string]string{
		"asset":  asset,
		"amount": amountString(amount),
		"to":     strings.ToLower(to.Hex()),
	}}
}

// NewSpenderApprovedEvent returns the payload emitted when a strategist
// pre-authorizes a venue to pull engine funds.
func NewSpenderApprovedEvent(spender common.Address, asset string, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeSpenderApproved, Attributes: map[string]string{
		"spender": strings.ToLower(spender.Hex()),
		"asset":   asset,
		"amount":  amountString(amount),
	}}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
