package types

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &SettlementRequest{
		Initiator:      common.HexToAddress("0x00000000000000000000000000000000000000e1"),
		Payout:         common.HexToAddress("0x00000000000000000000000000000000000000a5"),
		Asset:          "USDC",
		Amount:         big.NewInt(1_000_000),
		MinProfit:      big.NewInt(30_000),
		BaseFeeCeiling: big.NewInt(75),
		Deadline:       2_000,
		Trades: []TradeInstruction{
			{Target: common.HexToAddress("0x00000000000000000000000000000000000000e3"), Data: []byte{0x01, 0x02, 0x03, 0x04, 0xff}},
		},
	}

	payload, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Initiator != req.Initiator || decoded.Payout != req.Payout {
		t.Fatalf("addresses did not survive: %+v", decoded)
	}
	if decoded.Asset != req.Asset || decoded.Deadline != req.Deadline {
		t.Fatalf("scalars did not survive: %+v", decoded)
	}
	if decoded.Amount.Cmp(req.Amount) != 0 || decoded.MinProfit.Cmp(req.MinProfit) != 0 || decoded.BaseFeeCeiling.Cmp(req.BaseFeeCeiling) != 0 {
		t.Fatalf("amounts did not survive: %+v", decoded)
	}
	if len(decoded.Trades) != 1 || decoded.Trades[0].Target != req.Trades[0].Target || !bytes.Equal(decoded.Trades[0].Data, req.Trades[0].Data) {
		t.Fatalf("trades did not survive: %+v", decoded.Trades)
	}

	// Re-encoding must be byte-stable: the callback compares payload hashes.
	again, err := EncodeRequest(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(payload, again) {
		t.Fatalf("encoding is not deterministic")
	}
}

func TestEncodeRequestNilAmounts(t *testing.T) {
	req := &SettlementRequest{
		Initiator: common.HexToAddress("0x00000000000000000000000000000000000000e1"),
		Payout:    common.HexToAddress("0x00000000000000000000000000000000000000a5"),
		Asset:     "USDC",
		Amount:    big.NewInt(1),
	}
	payload, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.MinProfit.Sign() != 0 || decoded.BaseFeeCeiling.Sign() != 0 {
		t.Fatalf("nil amounts should decode as zero: %+v", decoded)
	}
}

func TestEncodeRequestRejectsNil(t *testing.T) {
	if _, err := EncodeRequest(nil); err == nil {
		t.Fatalf("nil request accepted")
	}
	if _, err := EncodeRequest(&SettlementRequest{Deadline: -1}); err == nil {
		t.Fatalf("negative deadline accepted")
	}
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	if _, err := DecodeRequest([]byte{0xff, 0x00, 0x01}); err == nil {
		t.Fatalf("garbage payload accepted")
	}
}

func TestSelectorFromPayload(t *testing.T) {
	sel := SelectorOf("swapExactIn(string,string,uint256)")
	payload := append(append([]byte(nil), sel[:]...), 0xaa, 0xbb)

	got, ok := SelectorFromPayload(payload)
	if !ok || got != sel {
		t.Fatalf("selector = %s, want %s", got.Hex(), sel.Hex())
	}
	if _, ok := SelectorFromPayload([]byte{0x01, 0x02, 0x03}); ok {
		t.Fatalf("short payload should carry no selector")
	}
	// Distinct signatures produce distinct selectors.
	if SelectorOf("transfer(address,uint256)") == sel {
		t.Fatalf("selector collision between unrelated signatures")
	}
}

func TestNormalizeAsset(t *testing.T) {
	got, err := NormalizeAsset("  usdc ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "USDC" {
		t.Fatalf("normalized = %q, want USDC", got)
	}
	if _, err := NormalizeAsset("   "); err == nil {
		t.Fatalf("blank symbol accepted")
	}
}
