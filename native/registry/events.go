package registry

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/core/types"
)

const (
	EventTypeRoleGranted     = "registry.role_granted"
	EventTypeRoleRevoked     = "registry.role_revoked"
	EventTypeAssetUpdated    = "registry.asset_updated"
	EventTypeTargetUpdated   = "registry.target_updated"
	EventTypeSelectorUpdated = "registry.selector_updated"
	EventTypeCapUpdated      = "registry.cap_updated"
	EventTypeTreasuryUpdated = "registry.treasury_updated"
)

// NewRoleGrantedEvent returns the canonical payload for a role grant.
func NewRoleGrantedEvent(role string, addr common.Address) *types.Event {
	return &types.Event{Type: EventTypeRoleGranted, Attributes: map[string]string{
		"role":    role,
		"address": strings.ToLower(addr.Hex()),
	}}
}

// NewRoleRevokedEvent returns the canonical payload for a role revocation.
func NewRoleRevokedEvent(role string, addr common.Address) *types.Event {
	return &types.Event{Type: EventTypeRoleRevoked, Attributes: map[string]string{
		"role":    role,
		"address": strings.ToLower(addr.Hex()),
	}}
}

// NewAssetUpdatedEvent returns the payload emitted when the borrow allow-list
// changes.
func NewAssetUpdatedEvent(asset string, approved bool) *types.Event {
	return &types.Event{Type: EventTypeAssetUpdated, Attributes: map[string]string{
		"asset":    asset,
		"approved": strconv.FormatBool(approved),
	}}
}

// NewTargetUpdatedEvent returns the payload emitted when the venue allow-list
// changes.
func NewTargetUpdatedEvent(target common.Address, approved bool) *types.Event {
	return &types.Event{Type: EventTypeTargetUpdated, Attributes: map[string]string{
		"target":   strings.ToLower(target.Hex()),
		"approved": strconv.FormatBool(approved),
	}}
}

// NewSelectorUpdatedEvent returns the payload emitted when the selector
// allow-list changes.
func NewSelectorUpdatedEvent(sel types.Selector, allowed bool) *types.Event {
	return &types.Event{Type: EventTypeSelectorUpdated, Attributes: map[string]string{
		"selector": sel.Hex(),
		"allowed":  strconv.FormatBool(allowed),
	}}
}

// NewCapUpdatedEvent returns the payload emitted when a borrow cap changes. A
// zero cap reads as "unlimited".
func NewCapUpdatedEvent(asset string, cap *big.Int) *types.Event {
	value := "0"
	if cap != nil {
		value = cap.String()
	}
	return &types.Event{Type: EventTypeCapUpdated, Attributes: map[string]string{
		"asset": asset,
		"cap":   value,
	}}
}

// NewTreasuryUpdatedEvent returns the payload emitted when the treasury
// rotates.
func NewTreasuryUpdatedEvent(treasury common.Address) *types.Event {
	return &types.Event{Type: EventTypeTreasuryUpdated, Attributes: map[string]string{
		"treasury": strings.ToLower(treasury.Hex()),
	}}
}
