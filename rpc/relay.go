package rpc

import (
	"context"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/shopspring/decimal"
)

// PlaceOrderRequest is the order submission payload. Approval carries an
// optional signed token approval to be mined before the fill.
type PlaceOrderRequest struct {
	*types.SettlementOrder
	Source   string                     `json:"source"`
	Approval *types.ApprovalTransaction `json:"approval,omitempty"`
}

// OrderState describes the relay-side lifecycle of a submitted order.
type OrderState struct {
	ExecuteTxHash string `json:"executeTxHash"`
	TxHash        string `json:"txHash"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
}

// HistoryQuery selects a page of a taker's past orders.
type HistoryQuery struct {
	SignerAddr string `json:"signerAddr"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perpage"`
}

// Ticker is a 24h market summary for one pair.
type Ticker struct {
	Pair      string          `json:"pair"`
	Last      decimal.Decimal `json:"last"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp int64           `json:"timestamp"`
}

// TradeTokenList fetches the relay's tradable token table.
func (c *Client) TradeTokenList(ctx context.Context) ([]types.Token, error) {
	var tokens []types.Token
	if err := c.call(ctx, c.endpoints.Exchange, "tokenlon.getTradeTokenList", nil, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// MobileAppConfig fetches the relay's contract address configuration.
func (c *Client) MobileAppConfig(ctx context.Context) (*types.AppConfig, error) {
	var config types.AppConfig
	if err := c.call(ctx, c.endpoints.Exchange, "tokenlon.getMobileAppConfig", nil, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// SdkJwtToken exchanges a timestamped signature for a short-lived feed token.
//
// Parameters:
// - timestamp: the unix timestamp that was signed.
// - signature: the personal signature over the timestamp.
//
// Returns:
// - string: the JWT granting pricing feed access.
// - error: an error if the relay rejects the signature.
func (c *Client) SdkJwtToken(ctx context.Context, timestamp int64, signature string) (string, error) {
	params := []interface{}{map[string]interface{}{
		"timestamp": timestamp,
		"signature": signature,
	}}
	var token string
	if err := c.call(ctx, c.endpoints.Exchange, "auth.getSdkJwtToken", params, &token); err != nil {
		return "", err
	}
	return token, nil
}

// PlaceOrder submits the signed settlement to the relay for execution.
func (c *Client) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) error {
	return c.call(ctx, c.endpoints.Exchange, "tokenlon.placeOrder", []interface{}{req}, nil)
}

// OrderState returns the relay-side state of an order by execution hash.
func (c *Client) OrderState(ctx context.Context, executeTxHash string) (*OrderState, error) {
	params := []interface{}{map[string]interface{}{"executeTxHash": executeTxHash}}
	var state OrderState
	if err := c.call(ctx, c.endpoints.Exchange, "tokenlon.getOrderState", params, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// OrdersHistory returns a page of the taker's past orders.
func (c *Client) OrdersHistory(ctx context.Context, query *HistoryQuery) ([]OrderState, error) {
	var orders []OrderState
	if err := c.call(ctx, c.endpoints.Exchange, "tokenlon.getOrdersHistory", []interface{}{query}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// MarketPrice returns the USD market price of the given token symbol.
func (c *Client) MarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := []interface{}{map[string]interface{}{
		"base":  symbol,
		"quote": "USDT",
	}}
	var price decimal.Decimal
	if err := c.call(ctx, c.endpoints.Exchange, "api.getMarketPrice", params, &price); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// Pairs returns the pairs traded on the relay market.
func (c *Client) Pairs(ctx context.Context) ([]string, error) {
	var pairs []string
	if err := c.call(ctx, c.endpoints.Market, "market.getPairs", nil, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Ticker returns the 24h market summary for the given pair, e.g. "ETH_USDT".
func (c *Client) Ticker(ctx context.Context, pair string) (*Ticker, error) {
	params := []interface{}{map[string]interface{}{"pair": pair}}
	var ticker Ticker
	if err := c.call(ctx, c.endpoints.Market, "market.getTicker", params, &ticker); err != nil {
		return nil, err
	}
	return &ticker, nil
}
