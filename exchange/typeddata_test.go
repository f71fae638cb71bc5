package exchange

import (
	"math/big"
	"testing"
)

func TestTransactionHashDeterministic(t *testing.T) {
	exchange := "0x4f833a24e1f95d70f028921e27040ca56e09ab0b"
	salt := big.NewInt(123456789)
	signer := "0x9b6a1f8d7e46b8b5a2f3c4d5e6f708192a3b4c5d"
	data := []byte{0x01, 0x02, 0x03, 0x04}

	first, err := TransactionHash(exchange, data, salt, signer)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := TransactionHash(exchange, data, salt, signer)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first != second {
		t.Fatal("hash is not deterministic")
	}
}

func TestTransactionHashSensitivity(t *testing.T) {
	exchange := "0x4f833a24e1f95d70f028921e27040ca56e09ab0b"
	signer := "0x9b6a1f8d7e46b8b5a2f3c4d5e6f708192a3b4c5d"
	data := []byte{0x01, 0x02}

	base, err := TransactionHash(exchange, data, big.NewInt(1), signer)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	saltChanged, err := TransactionHash(exchange, data, big.NewInt(2), signer)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if base == saltChanged {
		t.Fatal("salt change did not change the hash")
	}

	domainChanged, err := TransactionHash("0x0000000000000000000000000000000000000001", data, big.NewInt(1), signer)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if base == domainChanged {
		t.Fatal("verifying contract change did not change the hash")
	}

	dataChanged, err := TransactionHash(exchange, []byte{0x01, 0x03}, big.NewInt(1), signer)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if base == dataChanged {
		t.Fatal("calldata change did not change the hash")
	}
}

func TestNewSalt(t *testing.T) {
	first, err := NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	second, err := NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	if first.Cmp(second) == 0 {
		t.Fatal("two salts are equal")
	}
	if first.BitLen() > 256 {
		t.Fatalf("salt exceeds 256 bits: %d", first.BitLen())
	}
}
