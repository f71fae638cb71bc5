package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func newTestSigner(t *testing.T) *LocalSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := NewLocalSigner(key, big.NewInt(1))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func TestSignPersonalRecovers(t *testing.T) {
	s := newTestSigner(t)
	payload := []byte("auth timestamp 1700000000")

	sigHex, err := s.SignPersonal(context.Background(), hexutil.Encode(payload))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("v = %d, want 27 or 28", sig[64])
	}

	recovery := make([]byte, 65)
	copy(recovery, sig)
	recovery[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(payload), recovery)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}
}

func TestSignPersonalRejectsBadHex(t *testing.T) {
	s := newTestSigner(t)
	if _, err := s.SignPersonal(context.Background(), "not-hex"); err == nil {
		t.Fatal("expected error for non-hex message")
	}
}

func TestSignRawTransaction(t *testing.T) {
	s := newTestSigner(t)
	raw := &types.RawTransaction{
		To:       "0x0000000000000000000000000000000000000077",
		Data:     "0xdeadbeef",
		From:     s.Address().Hex(),
		Nonce:    "0x5",
		GasLimit: "0xc3500",
		GasPrice: "0x3b9aca00",
		Value:    "0x2710",
	}

	signedHex, err := s.SignRawTransaction(context.Background(), raw)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rawBytes, err := hexutil.Decode(signedHex)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(rawBytes); err != nil {
		t.Fatalf("unmarshal signed transaction: %v", err)
	}
	if tx.Nonce() != 5 {
		t.Fatalf("nonce = %d, want 5", tx.Nonce())
	}
	if tx.Gas() != 800000 {
		t.Fatalf("gas = %d, want 800000", tx.Gas())
	}
	if tx.Value().Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("value = %s, want 10000", tx.Value())
	}
	if tx.To() == nil || tx.To().Hex() != "0x0000000000000000000000000000000000000077" {
		t.Fatalf("to = %v", tx.To())
	}

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(1)), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != s.Address() {
		t.Fatalf("sender = %s, want %s", sender.Hex(), s.Address().Hex())
	}
}

func TestSignRawTransactionEmptyValueAndData(t *testing.T) {
	s := newTestSigner(t)
	raw := &types.RawTransaction{
		To:       "0x0000000000000000000000000000000000000011",
		From:     s.Address().Hex(),
		Nonce:    "0x0",
		GasLimit: "0x186a0",
		GasPrice: "0x1",
	}

	signedHex, err := s.SignRawTransaction(context.Background(), raw)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(hexutil.MustDecode(signedHex)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tx.Value().Sign() != 0 || len(tx.Data()) != 0 {
		t.Fatal("empty value and data did not stay empty")
	}
}

func TestSignApproval(t *testing.T) {
	s := newTestSigner(t)
	raw := &types.RawTransaction{
		To:       "0x0000000000000000000000000000000000000011",
		Data:     "0x095ea7b3",
		From:     s.Address().Hex(),
		Nonce:    "0x1",
		GasLimit: "0x186a0",
		GasPrice: "0x1",
		Value:    "0x0",
	}

	approval, err := s.SignApproval(context.Background(), raw)
	if err != nil {
		t.Fatalf("sign approval: %v", err)
	}
	if approval.RawTx == "" {
		t.Fatal("approval raw tx is empty")
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(hexutil.MustDecode(approval.RawTx)); err != nil {
		t.Fatalf("unmarshal approval: %v", err)
	}
	if tx.Nonce() != 1 {
		t.Fatalf("nonce = %d, want 1", tx.Nonce())
	}
}

func TestNewLocalSignerFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	s, err := NewLocalSignerFromHex(keyHex, big.NewInt(1))
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if s.Address() != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatal("address mismatch")
	}

	if _, err := NewLocalSignerFromHex("0xnope", big.NewInt(1)); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if _, err := NewLocalSigner(key, nil); err == nil {
		t.Fatal("expected error for missing chain id")
	}
}
