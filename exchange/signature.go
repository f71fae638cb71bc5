package exchange

import (
	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// signatureTypeWallet is the 0x wallet-signature type tag appended to the
// taker signature.
const signatureTypeWallet = 0x04

// ecSignature holds a normalized signature with v in {27, 28}.
type ecSignature struct {
	v byte
	r [32]byte
	s [32]byte
}

// parseSignatureRSV interprets sig as r ‖ s ‖ v, the prevalent eth_sign
// layout.
func parseSignatureRSV(sig []byte) (*ecSignature, error) {
	if len(sig) < 65 {
		return nil, errors.Errorf("signature too short: %d bytes", len(sig))
	}
	out := &ecSignature{v: sig[64]}
	if out.v < 27 {
		out.v += 27
	}
	copy(out.r[:], sig[0:32])
	copy(out.s[:], sig[32:64])
	return out, nil
}

// parseSignatureVRS interprets sig as v ‖ r ‖ s, the recovery-id-first
// layout some clients emit.
func parseSignatureVRS(sig []byte) (*ecSignature, error) {
	if len(sig) < 65 {
		return nil, errors.Errorf("signature too short: %d bytes", len(sig))
	}
	out := &ecSignature{v: sig[0]}
	if out.v < 27 {
		out.v += 27
	}
	copy(out.r[:], sig[1:33])
	copy(out.s[:], sig[33:65])
	return out, nil
}

// recover returns the address whose key produced this signature over hash.
func (sig *ecSignature) recover(hash []byte) (common.Address, error) {
	raw := make([]byte, 65)
	copy(raw[0:32], sig.r[:])
	copy(raw[32:64], sig.s[:])
	raw[64] = sig.v - 27

	pub, err := crypto.SigToPub(hash, raw)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyTakerSignature validates a signature over the personal-message hash
// of payload against the expected signer. There is no consensus on the
// signature byte layout across wallet implementations, so both r‖s‖v and
// v‖r‖s are attempted; whichever interpretation recovers the expected
// address is adopted. Fails with ErrInvalidSignature when neither verifies.
func VerifyTakerSignature(payload []byte, signatureHex string, signer common.Address) (*ecSignature, error) {
	sigBytes, err := decodeHex(signatureHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid signature encoding")
	}

	hash := accounts.TextHash(payload)

	for _, parse := range []func([]byte) (*ecSignature, error){parseSignatureRSV, parseSignatureVRS} {
		sig, err := parse(sigBytes)
		if err != nil {
			continue
		}
		if sig.v != 27 && sig.v != 28 {
			continue
		}
		recovered, err := sig.recover(hash)
		if err != nil {
			continue
		}
		if recovered == signer {
			return sig, nil
		}
	}

	return nil, commonerrors.ErrInvalidSignature
}

// WalletSignature wraps a verified signature into the relay's taker wallet
// signature format: v ‖ r ‖ s ‖ receiver ‖ wallet type tag.
func WalletSignature(sig *ecSignature, receiver common.Address) string {
	buf := make([]byte, 0, 86)
	buf = append(buf, sig.v)
	buf = append(buf, sig.r[:]...)
	buf = append(buf, sig.s[:]...)
	buf = append(buf, receiver.Bytes()...)
	buf = append(buf, signatureTypeWallet)
	return hexutil.Encode(buf)
}
