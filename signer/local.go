// Package signer provides a local private-key implementation of the signing
// capabilities the trading core consumes. Applications holding keys in
// hardware or remote custody implement the same interfaces instead.
package signer

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// LocalSigner signs personal messages and raw transactions with an in-memory
// private key.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewLocalSigner creates a signer from the given private key.
//
// Parameters:
// - privateKey: the private key to be used for signing.
// - chainID: the chain ID used for transaction replay protection.
//
// Returns:
// - *LocalSigner: a new signer instance.
// - error: an error if the private key is not valid.
func NewLocalSigner(privateKey *ecdsa.PrivateKey, chainID *big.Int) (*LocalSigner, error) {
	pubKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("cannot assign public key to ECDSA")
	}
	if chainID == nil {
		return nil, errors.New("chain ID is required")
	}

	return &LocalSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*pubKeyECDSA),
		chainID:    chainID,
	}, nil
}

// NewLocalSignerFromHex creates a signer from a hex-encoded private key.
func NewLocalSignerFromHex(privateKeyHex string, chainID *big.Int) (*LocalSigner, error) {
	if len(privateKeyHex) >= 2 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return NewLocalSigner(privateKey, chainID)
}

// Address returns the signer's address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignPersonal signs the given 0x-prefixed hex payload with the Ethereum
// personal-message prefix and returns the signature as r ‖ s ‖ v hex.
func (s *LocalSigner) SignPersonal(_ context.Context, message string) (string, error) {
	payload, err := hexutil.Decode(message)
	if err != nil {
		return "", errors.Wrap(err, "invalid message encoding")
	}

	signature, err := crypto.Sign(accounts.TextHash(payload), s.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign message")
	}
	signature[64] += 27 // Transform V from 0/1 to 27/28 according to the yellow paper

	return hexutil.Encode(signature), nil
}

// SignApproval signs a token approval transaction to be bundled with an
// order submission.
func (s *LocalSigner) SignApproval(ctx context.Context, tx *types.RawTransaction) (*types.ApprovalTransaction, error) {
	rawTx, err := s.SignRawTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &types.ApprovalTransaction{RawTx: rawTx}, nil
}

// SignRawTransaction signs the raw transaction fields and returns the
// RLP-serialized signed transaction as a hex string.
func (s *LocalSigner) SignRawTransaction(_ context.Context, tx *types.RawTransaction) (string, error) {
	nonce, err := hexutil.DecodeUint64(tx.Nonce)
	if err != nil {
		return "", errors.Wrap(err, "invalid nonce")
	}
	gasLimit, err := hexutil.DecodeUint64(tx.GasLimit)
	if err != nil {
		return "", errors.Wrap(err, "invalid gas limit")
	}
	gasPrice, err := hexutil.DecodeBig(tx.GasPrice)
	if err != nil {
		return "", errors.Wrap(err, "invalid gas price")
	}
	value := new(big.Int)
	if tx.Value != "" && tx.Value != "0x" {
		if value, err = hexutil.DecodeBig(tx.Value); err != nil {
			return "", errors.Wrap(err, "invalid value")
		}
	}
	var data []byte
	if tx.Data != "" && tx.Data != "0x" {
		if data, err = hexutil.Decode(tx.Data); err != nil {
			return "", errors.Wrap(err, "invalid data")
		}
	}

	unsigned := ethtypes.NewTransaction(nonce, common.HexToAddress(tx.To), value, gasLimit, gasPrice, data)

	signedTx, err := ethtypes.SignTx(unsigned, ethtypes.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign transaction")
	}

	rawBytes, err := signedTx.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize transaction")
	}
	return hexutil.Encode(rawBytes), nil
}
