package exchange

import (
	"crypto/rand"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// The 0x v2 EIP-712 domain deliberately omits chainId; domain separation
// comes from the verifying exchange contract address.
const (
	eip712DomainName    = "0x Protocol"
	eip712DomainVersion = "2"
)

// NewSalt returns a per-transaction random 256-bit salt.
func NewSalt() (*big.Int, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}
	return new(big.Int).SetBytes(buf), nil
}

// TransactionHash computes the typed-data hash of the execution transaction
// {salt, signerAddress, data} under the exchange contract's domain. This is
// the executeTxHash the taker signs and the relay matches on-chain.
//
// Parameters:
// - exchangeAddress: the 0x v2 exchange contract address.
// - data: the fill calldata.
// - salt: the per-transaction random salt.
// - signerAddress: the taker address executing the transaction.
//
// Returns:
// - common.Hash: the execution transaction hash.
// - error: an error if typed-data hashing fails.
func TransactionHash(exchangeAddress string, data []byte, salt *big.Int, signerAddress string) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "verifyingContract", Type: "address"},
			},
			"ZeroExTransaction": {
				{Name: "salt", Type: "uint256"},
				{Name: "signerAddress", Type: "address"},
				{Name: "data", Type: "bytes"},
			},
		},
		PrimaryType: "ZeroExTransaction",
		Domain: apitypes.TypedDataDomain{
			Name:              eip712DomainName,
			Version:           eip712DomainVersion,
			VerifyingContract: exchangeAddress,
		},
		Message: apitypes.TypedDataMessage{
			"salt":          (*math.HexOrDecimal256)(salt),
			"signerAddress": signerAddress,
			"data":          hexutil.Encode(data),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to hash execution transaction")
	}
	return common.BytesToHash(hash), nil
}
