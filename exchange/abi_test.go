package exchange

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

func testMakerOrder() *types.MakerOrder {
	return &types.MakerOrder{
		MakerAddress:          "0x0000000000000000000000000000000000000011",
		MakerAssetAmount:      "1000000000000000000",
		MakerAssetData:        "0xf47261b00000000000000000000000000000000000000000000000000000000000000011",
		MakerFee:              "0",
		TakerAddress:          "0x0000000000000000000000000000000000000022",
		TakerAssetAmount:      "11000000000000000",
		TakerAssetData:        "0xf47261b00000000000000000000000000000000000000000000000000000000000000022",
		TakerFee:              "0",
		SenderAddress:         "0x0000000000000000000000000000000000000033",
		FeeRecipientAddress:   "0x0000000000000000000000000000000000000044",
		ExpirationTimeSeconds: "4102444800",
		ExchangeAddress:       "0x4f833a24e1f95d70f028921e27040ca56e09ab0b",
		Salt:                  "123456789",
		MakerWalletSignature:  "0x010203",
		QuoteID:               "q-1",
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"123", 123, true},
		{"0", 0, true},
		{"0x7b", 123, true},
		{"-0x7b", -123, true},
		{"", 0, false},
		{"12.5", 0, false},
		{"0xzz", 0, false},
	}
	for _, tc := range cases {
		got, err := parseAmount(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("parseAmount(%q) err = %v, want ok=%v", tc.in, err, tc.ok)
		}
		if err == nil && got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("parseAmount(%q) = %s, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDecodeHexPrefixTolerant(t *testing.T) {
	withPrefix, err := decodeHex("0x0102")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	without, err := decodeHex("0102")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(withPrefix, without) {
		t.Fatal("prefix changed the decoding")
	}
}

func TestPackFillOrKillOrder(t *testing.T) {
	data, err := PackFillOrKillOrder(testMakerOrder())
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	parsed, err := abi.JSON(strings.NewReader(ExchangeV2ABI))
	if err != nil {
		t.Fatalf("parse ABI: %v", err)
	}
	method := parsed.Methods["fillOrKillOrder"]
	if !bytes.Equal(data[:4], method.ID) {
		t.Fatalf("selector = %x, want %x", data[:4], method.ID)
	}
	if (len(data)-4)%32 != 0 {
		t.Fatalf("argument payload length %d is not word aligned", len(data)-4)
	}

	// The packed arguments round-trip through the ABI definition.
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(args) != 3 {
		t.Fatalf("arguments = %d, want 3", len(args))
	}
	fillAmount, ok := args[1].(*big.Int)
	if !ok || fillAmount.String() != "11000000000000000" {
		t.Fatalf("takerAssetFillAmount = %v, want the order's taker amount", args[1])
	}
}

func TestPackFillOrKillOrderRejectsBadFields(t *testing.T) {
	order := testMakerOrder()
	order.MakerAssetAmount = "not-a-number"
	if _, err := PackFillOrKillOrder(order); err == nil {
		t.Fatal("expected error for malformed amount")
	}

	order = testMakerOrder()
	order.MakerAssetData = "0xzz"
	if _, err := PackFillOrKillOrder(order); err == nil {
		t.Fatal("expected error for malformed asset data")
	}
}

func TestPackFillOrderWithETH(t *testing.T) {
	fillData, err := PackFillOrKillOrder(testMakerOrder())
	if err != nil {
		t.Fatalf("pack fill: %v", err)
	}

	data, err := PackFillOrderWithETH(big.NewInt(42), fillData, "0x1b0102")
	if err != nil {
		t.Fatalf("pack funding: %v", err)
	}

	parsed, err := abi.JSON(strings.NewReader(TokenlonExchangeABI))
	if err != nil {
		t.Fatalf("parse ABI: %v", err)
	}
	method := parsed.Methods["fillOrderWithETH"]
	if !bytes.Equal(data[:4], method.ID) {
		t.Fatalf("selector = %x, want %x", data[:4], method.ID)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if salt, ok := args[0].(*big.Int); !ok || salt.Int64() != 42 {
		t.Fatalf("salt = %v, want 42", args[0])
	}
	if inner, ok := args[1].([]byte); !ok || !bytes.Equal(inner, fillData) {
		t.Fatal("fill data did not round-trip")
	}
}
