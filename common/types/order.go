package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the user-facing direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a side string to its canonical upper-case form.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(s)) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// TradeIntent describes what the user wants to trade. It is immutable once
// submitted to negotiation.
//
// Fields:
// - Base: base token symbol.
// - Quote: quote token symbol.
// - Side: trade direction from the user's perspective.
// - Amount: base token amount in display units.
type TradeIntent struct {
	Base   string
	Quote  string
	Side   Side
	Amount decimal.Decimal
}

// Symbol returns the pair symbol in BASE_QUOTE form used by pricing topics.
func (i *TradeIntent) Symbol() string {
	return strings.ToUpper(i.Base) + "_" + strings.ToUpper(i.Quote)
}

// OutgoingSymbol returns the symbol of the asset the user pays with.
func (i *TradeIntent) OutgoingSymbol() string {
	if i.Side == SideSell {
		return strings.ToUpper(i.Base)
	}
	return strings.ToUpper(i.Quote)
}

// MakerOrder is a relay-countersigned offer from a market maker. Amounts are
// arbitrary-precision decimal strings to avoid floating-point loss. The order
// is treated as opaque until it enters the signing pipeline.
type MakerOrder struct {
	MakerAddress          string `json:"makerAddress"`
	MakerAssetAmount      string `json:"makerAssetAmount"`
	MakerAssetData        string `json:"makerAssetData"`
	MakerFee              string `json:"makerFee"`
	TakerAddress          string `json:"takerAddress"`
	TakerAssetAmount      string `json:"takerAssetAmount"`
	TakerAssetData        string `json:"takerAssetData"`
	TakerFee              string `json:"takerFee"`
	SenderAddress         string `json:"senderAddress"`
	FeeRecipientAddress   string `json:"feeRecipientAddress"`
	ExpirationTimeSeconds string `json:"expirationTimeSeconds"`
	ExchangeAddress       string `json:"exchangeAddress"`
	Salt                  string `json:"salt"`
	MakerWalletSignature  string `json:"makerWalletSignature"`
	QuoteID               string `json:"quoteId"`
	FeeFactor             int64  `json:"feeFactor"`
}

// SettlementOrder is a MakerOrder extended with the taker-side signature
// fields required by the relay's order format.
type SettlementOrder struct {
	MakerOrder
	SignedTxSalt         string `json:"signedTxSalt"`
	ExecuteTxHash        string `json:"executeTxHash"`
	SignedTxData         string `json:"signedTxData"`
	TakerWalletSignature string `json:"takerWalletSignature"`
}

// QuoteResponse is the market maker payload delivered over a pricing topic.
type QuoteResponse struct {
	Exchangeable bool        `json:"exchangeable"`
	Order        *MakerOrder `json:"order,omitempty"`
	Rate         float64     `json:"rate,omitempty"`
	MinAmount    float64     `json:"minAmount,omitempty"`
	MaxAmount    float64     `json:"maxAmount,omitempty"`
	Message      string      `json:"message,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

// QuoteResult is the caller-facing outcome of a successful negotiation.
// Amounts are converted through each token's decimal precision.
type QuoteResult struct {
	QuoteID     string
	Base        string
	Quote       string
	Side        Side
	Amount      decimal.Decimal
	QuoteAmount decimal.Decimal
	Price       decimal.Decimal
	Timestamp   int64
	MinAmount   float64
	MaxAmount   float64
}

// SignedSettlement is the output of the order signing pipeline. It is
// consumed by relay submission and not persisted beyond the settlement call.
//
// Fields:
// - Order: the maker order with appended taker signature fields.
// - RawTx: the serialized signed funding transaction, set only when the
//   maker-side asset is the native currency.
// - TxHash: the funding transaction hash, set together with RawTx.
// - Nonce: the nonce consumed by the funding transaction.
// - HasFundingTx: true when RawTx/TxHash/Nonce are populated.
type SignedSettlement struct {
	Order        *SettlementOrder
	RawTx        string
	TxHash       string
	Nonce        uint64
	HasFundingTx bool
}

// TradeResult reports the outcome of a settlement. ExecuteTxHash identifies
// the fill for later status polling; TxHash is set only when a funding
// transaction was broadcast.
type TradeResult struct {
	Success       bool   `json:"success"`
	ExecuteTxHash string `json:"executeTxHash"`
	TxHash        string `json:"txHash,omitempty"`
}
