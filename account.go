package tokenlon

import (
	"context"
	"math/big"
	"strings"

	"github.com/consenlabs/tokenlon-sdk-go/chain"
	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// approveGas is the fixed gas limit for ERC-20 approve transactions.
const approveGas = 100000

// GetBalance returns the address's balance of the given token symbol in
// display units.
func (c *Client) GetBalance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	token, err := c.findToken(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	tokenAddress := token.ContractAddress
	if strings.EqualFold(token.Symbol, nativeSymbol) {
		tokenAddress = ""
	}
	raw, err := c.chain.GetTokenBalance(ctx, c.config.Address, tokenAddress)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(raw, 0).Shift(-token.Decimal), nil
}

// GetAllowance returns the relay proxy's spendable allowance of the given
// token in display units.
func (c *Client) GetAllowance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	raw, token, err := c.rawAllowance(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(raw, 0).Shift(-token.Decimal), nil
}

// IsAllowanceEnough reports whether the allowance covers a trade of the given
// display-unit amount.
func (c *Client) IsAllowanceEnough(ctx context.Context, symbol string, amount decimal.Decimal) (bool, error) {
	raw, token, err := c.rawAllowance(ctx, symbol)
	if err != nil {
		return false, err
	}
	required := amount.Shift(token.Decimal).BigInt()
	return raw.Cmp(required) >= 0, nil
}

// SetAllowance approves the relay proxy to spend the given display-unit
// amount of the token and broadcasts the approval.
//
// Returns:
// - string: the approval transaction hash.
// - error: an error if signing or broadcast fails.
func (c *Client) SetAllowance(ctx context.Context, symbol string, amount decimal.Decimal) (string, error) {
	token, err := c.findToken(ctx, symbol)
	if err != nil {
		return "", err
	}
	return c.sendApprove(ctx, token, amount.Shift(token.Decimal).BigInt())
}

// SetUnlimitedAllowance approves the relay proxy for the maximum amount.
func (c *Client) SetUnlimitedAllowance(ctx context.Context, symbol string) (string, error) {
	token, err := c.findToken(ctx, symbol)
	if err != nil {
		return "", err
	}
	return c.sendApprove(ctx, token, ethmath.MaxBig256)
}

// CloseAllowance revokes the relay proxy's allowance for the token.
func (c *Client) CloseAllowance(ctx context.Context, symbol string) (string, error) {
	token, err := c.findToken(ctx, symbol)
	if err != nil {
		return "", err
	}
	return c.sendApprove(ctx, token, new(big.Int))
}

func (c *Client) findToken(ctx context.Context, symbol string) (*types.Token, error) {
	tokens, err := c.TradeTokens(ctx)
	if err != nil {
		return nil, err
	}
	token, ok := types.FindToken(tokens, symbol)
	if !ok {
		return nil, commonerrors.ErrTokenNotFound
	}
	return token, nil
}

func (c *Client) rawAllowance(ctx context.Context, symbol string) (*big.Int, *types.Token, error) {
	token, err := c.findToken(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(token.Symbol, nativeSymbol) {
		return nil, nil, errors.New("the native currency has no allowance")
	}

	config, err := c.appConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	raw, err := c.chain.GetAllowance(ctx, token.ContractAddress, c.config.Address, config.TokenlonExchangeContractAddress)
	if err != nil {
		return nil, nil, err
	}
	return raw, token, nil
}

// sendApprove signs and broadcasts an approval of amount for the relay proxy.
func (c *Client) sendApprove(ctx context.Context, token *types.Token, amount *big.Int) (string, error) {
	if strings.EqualFold(token.Symbol, nativeSymbol) {
		return "", errors.New("the native currency has no allowance")
	}

	config, err := c.appConfig(ctx)
	if err != nil {
		return "", err
	}

	rawTx, n, err := c.buildApproveTransaction(ctx, token.ContractAddress, config.TokenlonExchangeContractAddress, amount)
	if err != nil {
		return "", err
	}

	signed, err := c.config.RawTransactionSigner.SignRawTransaction(ctx, rawTx)
	if err != nil {
		return "", errors.Wrap(err, "approval sign failed")
	}
	rawBytes, err := parseHexBytes(signed)
	if err != nil {
		return "", errors.Wrap(err, "invalid signed approval encoding")
	}

	txHash, err := c.chain.SendRawTransaction(ctx, rawBytes)
	if err != nil {
		return "", err
	}
	c.sequencer.Commit(n)
	return txHash, nil
}

// buildApproveTransaction assembles the unsigned approve transaction with a
// fresh nonce from the sequencer.
func (c *Client) buildApproveTransaction(ctx context.Context, tokenAddress, spender string, amount *big.Int) (*types.RawTransaction, uint64, error) {
	n, err := c.sequencer.Next(ctx)
	if err != nil {
		return nil, 0, err
	}

	data, err := chain.PackApprove(spender, amount)
	if err != nil {
		return nil, 0, err
	}

	gasPrice, err := c.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, 0, err
	}

	return &types.RawTransaction{
		To:       tokenAddress,
		Data:     hexutil.Encode(data),
		From:     c.config.Address,
		Nonce:    hexutil.EncodeUint64(n),
		GasLimit: hexutil.EncodeUint64(approveGas),
		GasPrice: hexutil.EncodeBig(gasPrice),
		Value:    "0x0",
	}, n, nil
}

// parseOrderAmount normalizes an order amount field into a big integer.
func parseOrderAmount(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") {
		return hexutil.DecodeBig(s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid order amount %q", s)
	}
	return v, nil
}

// parseHexBytes decodes a hex string with or without the 0x prefix.
func parseHexBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
