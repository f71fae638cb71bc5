package types

import "strings"

// Token describes a tradable token as configured by the relay, including the
// per-pair amount bounds enforced before any network call.
type Token struct {
	Symbol          string   `json:"symbol"`
	Logo            string   `json:"logo,omitempty"`
	ContractAddress string   `json:"contractAddress"`
	Decimal         int32    `json:"decimal"`
	MinTradeAmount  float64  `json:"minTradeAmount,omitempty"`
	MaxTradeAmount  float64  `json:"maxTradeAmount,omitempty"`
	Precision       int      `json:"precision,omitempty"`
	Opposites       []string `json:"opposites,omitempty"`
}

// HasOpposite reports whether the token can be traded against the given symbol.
func (t *Token) HasOpposite(symbol string) bool {
	for _, s := range t.Opposites {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// FindToken looks up a token by symbol, case-insensitively.
func FindToken(tokens []Token, symbol string) (*Token, bool) {
	for i := range tokens {
		if strings.EqualFold(tokens[i].Symbol, symbol) {
			return &tokens[i], true
		}
	}
	return nil, false
}

// AppConfig holds the relay-published contract addresses required by the
// signing pipeline.
type AppConfig struct {
	NetworkID                      int    `json:"networkId"`
	ERC20ProxyContractAddress      string `json:"erc20ProxyContractAddress"`
	ExchangeContractAddress        string `json:"exchangeContractAddress"`
	ForwarderContractAddress       string `json:"forwarderContractAddress"`
	ZRXContractAddress             string `json:"zrxContractAddress"`
	TokenlonExchangeContractAddress string `json:"tokenlonExchangeContractAddress"`
	WETHContractAddress            string `json:"wethContractAddress"`
	UserProxyContractAddress       string `json:"userProxyContractAddress"`
}
