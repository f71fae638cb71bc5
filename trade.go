package tokenlon

import (
	"context"
	"math/big"
	"strings"

	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/consenlabs/tokenlon-sdk-go/exchange"
	"github.com/consenlabs/tokenlon-sdk-go/rpc"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// nativeSymbol is the symbol of the chain's native currency in the relay
// token table.
const nativeSymbol = "ETH"

// GetQuote negotiates a firm quote for the given intent. The returned quote
// stays tradeable for the quote validity window; pass its QuoteID to Trade
// within that window.
func (c *Client) GetQuote(ctx context.Context, intent *types.TradeIntent) (*types.QuoteResult, error) {
	return c.engine.RequestQuote(ctx, intent)
}

// Trade settles a previously negotiated quote: signs the maker order with
// the injected wallet capabilities, submits it to the relay, and broadcasts
// the funding transaction when the trade is paid in the native currency.
//
// Parameters:
// - quoteID: the id returned by GetQuote.
//
// Returns:
// - *types.TradeResult: the settlement outcome.
// - error: ErrInvalidQuoteID or ErrQuoteExpired on cache misses, signing and
//   submission errors otherwise.
func (c *Client) Trade(ctx context.Context, quoteID string) (*types.TradeResult, error) {
	cached, err := c.cache.Get(quoteID)
	if err != nil {
		return nil, err
	}

	config, err := c.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := c.TradeTokens(ctx)
	if err != nil {
		return nil, err
	}

	outToken, ok := types.FindToken(tokens, cached.Intent.OutgoingSymbol())
	if !ok {
		return nil, commonerrors.ErrTokenNotFound
	}
	payWithETH := strings.EqualFold(outToken.Symbol, nativeSymbol)

	required, err := parseOrderAmount(cached.Order.TakerAssetAmount)
	if err != nil {
		return nil, err
	}
	if err := c.checkBalance(ctx, outToken, payWithETH, required); err != nil {
		return nil, err
	}

	var approval *types.ApprovalTransaction
	var approvalNonce uint64
	if !payWithETH {
		approval, approvalNonce, err = c.ensureAllowance(ctx, config, outToken, required)
		if err != nil {
			return nil, err
		}
	}

	settlement, err := c.pipeline.Sign(ctx, &exchange.SignInput{
		Intent:       &cached.Intent,
		Order:        cached.Order,
		TakerAddress: c.address,
		Config:       config,
		PayWithETH:   payWithETH,
	})
	if err != nil {
		return nil, err
	}

	if err := c.relay.PlaceOrder(ctx, &rpc.PlaceOrderRequest{
		SettlementOrder: settlement.Order,
		Source:          orderSource,
		Approval:        approval,
	}); err != nil {
		return nil, err
	}

	// The relay broadcasts on its side; broadcasting here as well covers a
	// relay that accepted the order but failed to relay the transaction.
	if settlement.HasFundingTx {
		rawBytes, decodeErr := parseHexBytes(settlement.RawTx)
		if decodeErr == nil {
			if _, sendErr := c.chain.SendRawTransaction(ctx, rawBytes); sendErr != nil {
				c.logger.WithError(sendErr).Warn("Client-side funding broadcast failed")
			}
		}
		c.sequencer.Commit(settlement.Nonce)
	}
	if approval != nil {
		c.sequencer.Commit(approvalNonce)
	}

	c.logger.WithFields(logrus.Fields{
		"quoteId":       quoteID,
		"executeTxHash": settlement.Order.ExecuteTxHash,
	}).Info("Order submitted")

	return &types.TradeResult{
		Success:       true,
		ExecuteTxHash: settlement.Order.ExecuteTxHash,
		TxHash:        settlement.TxHash,
	}, nil
}

// checkBalance verifies the taker holds the outgoing asset amount the order
// consumes.
func (c *Client) checkBalance(ctx context.Context, outToken *types.Token, payWithETH bool, required *big.Int) error {
	tokenAddress := outToken.ContractAddress
	if payWithETH {
		tokenAddress = ""
	}
	balance, err := c.chain.GetTokenBalance(ctx, c.config.Address, tokenAddress)
	if err != nil {
		return errors.Wrap(err, "failed to check balance")
	}
	if balance.Cmp(required) < 0 {
		return commonerrors.ErrInsufficientBalance
	}
	return nil
}

// ensureAllowance verifies the relay proxy may spend the outgoing token. A
// short allowance fails with ErrInsufficientAllowance unless an approval
// signer is configured, in which case a signed unlimited approval is bundled
// with the order for the relay to mine first.
func (c *Client) ensureAllowance(
	ctx context.Context,
	config *types.AppConfig,
	outToken *types.Token,
	required *big.Int,
) (*types.ApprovalTransaction, uint64, error) {
	spender := config.TokenlonExchangeContractAddress

	allowance, err := c.chain.GetAllowance(ctx, outToken.ContractAddress, c.config.Address, spender)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to check allowance")
	}
	if allowance.Cmp(required) >= 0 {
		return nil, 0, nil
	}

	if c.config.ApproveAndFillSigner == nil {
		return nil, 0, commonerrors.ErrInsufficientAllowance
	}

	rawTx, n, err := c.buildApproveTransaction(ctx, outToken.ContractAddress, spender, ethmath.MaxBig256)
	if err != nil {
		return nil, 0, err
	}

	approval, err := c.config.ApproveAndFillSigner.SignApproval(ctx, rawTx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "approval sign failed")
	}

	c.logger.WithField("token", outToken.Symbol).Info("Bundling token approval with order")
	return approval, n, nil
}
