package exchange

import (
	"math/big"
	"strings"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// ExchangeV2ABI is the 0x v2 exchange fragment used to build fill calldata.
const ExchangeV2ABI = `[{"constant":false,"inputs":[{"components":[{"name":"makerAddress","type":"address"},{"name":"takerAddress","type":"address"},{"name":"feeRecipientAddress","type":"address"},{"name":"senderAddress","type":"address"},{"name":"makerAssetAmount","type":"uint256"},{"name":"takerAssetAmount","type":"uint256"},{"name":"makerFee","type":"uint256"},{"name":"takerFee","type":"uint256"},{"name":"expirationTimeSeconds","type":"uint256"},{"name":"salt","type":"uint256"},{"name":"makerAssetData","type":"bytes"},{"name":"takerAssetData","type":"bytes"}],"name":"order","type":"tuple"},{"name":"takerAssetFillAmount","type":"uint256"},{"name":"signature","type":"bytes"}],"name":"fillOrKillOrder","outputs":[{"components":[{"name":"makerAssetFilledAmount","type":"uint256"},{"name":"takerAssetFilledAmount","type":"uint256"},{"name":"makerFeePaid","type":"uint256"},{"name":"takerFeePaid","type":"uint256"}],"name":"fillResults","type":"tuple"}],"payable":false,"stateMutability":"nonpayable","type":"function"}]`

// TokenlonExchangeABI is the exchange-contract fragment used to build the
// native-currency funding transaction.
const TokenlonExchangeABI = `[{"constant":false,"inputs":[{"name":"salt","type":"uint256"},{"name":"fillData","type":"bytes"},{"name":"signature","type":"bytes"}],"name":"fillOrderWithETH","outputs":[],"payable":true,"stateMutability":"payable","type":"function"}]`

// abiOrder mirrors the 0x v2 Order tuple component order.
type abiOrder struct {
	MakerAddress          common.Address
	TakerAddress          common.Address
	FeeRecipientAddress   common.Address
	SenderAddress         common.Address
	MakerAssetAmount      *big.Int
	TakerAssetAmount      *big.Int
	MakerFee              *big.Int
	TakerFee              *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	MakerAssetData        []byte
	TakerAssetData        []byte
}

// parseAmount normalizes a maker order numeric field into a big integer.
// Fields arrive as decimal strings; hex is tolerated for robustness.
func parseAmount(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "-0x") {
		v, err := hexutil.DecodeBig(strings.Replace(s, "-0x", "0x", 1))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid hex amount %q", s)
		}
		if strings.HasPrefix(s, "-") {
			v.Neg(v)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid decimal amount %q", s)
	}
	return v, nil
}

// decodeHex decodes a hex string with or without the 0x prefix.
func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid hex string %q", s)
	}
	return data, nil
}

// toABIOrder converts the wire-format maker order into the canonical
// binary-safe representation required by calldata packing.
func toABIOrder(order *types.MakerOrder) (*abiOrder, error) {
	out := &abiOrder{
		MakerAddress:        common.HexToAddress(order.MakerAddress),
		TakerAddress:        common.HexToAddress(order.TakerAddress),
		FeeRecipientAddress: common.HexToAddress(order.FeeRecipientAddress),
		SenderAddress:       common.HexToAddress(order.SenderAddress),
	}

	var err error
	if out.MakerAssetAmount, err = parseAmount(order.MakerAssetAmount); err != nil {
		return nil, errors.Wrap(err, "invalid makerAssetAmount")
	}
	if out.TakerAssetAmount, err = parseAmount(order.TakerAssetAmount); err != nil {
		return nil, errors.Wrap(err, "invalid takerAssetAmount")
	}
	if out.MakerFee, err = parseAmount(order.MakerFee); err != nil {
		return nil, errors.Wrap(err, "invalid makerFee")
	}
	if out.TakerFee, err = parseAmount(order.TakerFee); err != nil {
		return nil, errors.Wrap(err, "invalid takerFee")
	}
	if out.ExpirationTimeSeconds, err = parseAmount(order.ExpirationTimeSeconds); err != nil {
		return nil, errors.Wrap(err, "invalid expirationTimeSeconds")
	}
	if out.Salt, err = parseAmount(order.Salt); err != nil {
		return nil, errors.Wrap(err, "invalid salt")
	}
	if out.MakerAssetData, err = decodeHex(order.MakerAssetData); err != nil {
		return nil, errors.Wrap(err, "invalid makerAssetData")
	}
	if out.TakerAssetData, err = decodeHex(order.TakerAssetData); err != nil {
		return nil, errors.Wrap(err, "invalid takerAssetData")
	}

	return out, nil
}

// PackFillOrKillOrder builds the on-chain calldata filling the maker order
// in full against its maker signature.
func PackFillOrKillOrder(order *types.MakerOrder) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(ExchangeV2ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse exchange ABI")
	}

	o, err := toABIOrder(order)
	if err != nil {
		return nil, err
	}

	makerSignature, err := decodeHex(order.MakerWalletSignature)
	if err != nil {
		return nil, errors.Wrap(err, "invalid makerWalletSignature")
	}

	data, err := parsed.Pack("fillOrKillOrder", o, o.TakerAssetAmount, makerSignature)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack fillOrKillOrder data")
	}
	return data, nil
}

// PackFillOrderWithETH builds the funding-transaction calldata carrying the
// signed fill to the exchange contract.
func PackFillOrderWithETH(salt *big.Int, fillData []byte, takerWalletSignature string) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(TokenlonExchangeABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenlon exchange ABI")
	}

	signature, err := decodeHex(takerWalletSignature)
	if err != nil {
		return nil, errors.Wrap(err, "invalid taker wallet signature")
	}

	data, err := parsed.Pack("fillOrderWithETH", salt, fillData, signature)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack fillOrderWithETH data")
	}
	return data, nil
}
