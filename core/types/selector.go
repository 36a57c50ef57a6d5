package types

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Selector identifies which operation a call payload invokes on a venue. It is
// the leading four bytes of the Keccak-256 hash of the canonical signature.
type Selector [4]byte

// SelectorOf derives the selector for the provided canonical signature, e.g.
// "swapExactIn(string,string,uint256)".
func SelectorOf(signature string) Selector {
	var sel Selector
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

// SelectorFromPayload extracts the selector from a raw call payload. Payloads
// shorter than four bytes carry no selector.
func SelectorFromPayload(data []byte) (Selector, bool) {
	var sel Selector
	if len(data) < 4 {
		return sel, false
	}
	copy(sel[:], data[:4])
	return sel, true
}

// Hex renders the selector as an 0x-prefixed string for events and logs.
func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}
