// Package gasprice resolves the gas price for funding transactions from a gas
// oracle, with the node's suggestion as fallback, and boosts it for trades
// worth hurrying.
package gasprice

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultStationURL = "https://ethgasstation.info/json/ethgasAPI.json"
	requestTimeout    = 10 * time.Second

	// boostWorthUSD is the trade worth above which the gas price gets the
	// priority multiplier. Unknown worth is treated the same way.
	boostWorthUSD = 1000
)

// The oracle reports prices in tenths of gwei.
var tenthGweiInWei = decimal.NewFromInt(100000000)

var boostFactor = decimal.NewFromFloat(1.2)

// NodePricer is the node fallback when the oracle is unreachable.
type NodePricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// PriceSource resolves a token symbol to its USD market price.
type PriceSource interface {
	MarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Provider resolves gas prices for funding transactions.
type Provider struct {
	stationURL string
	httpClient *http.Client
	node       NodePricer
	prices     PriceSource
	logger     *logrus.Logger
}

// NewProvider creates a gas price provider.
//
// Parameters:
// - node: the node fallback pricer. May be nil when no node is available.
// - prices: the market price source for trade worth. May be nil.
// - logger: the logger for logging events.
//
// Returns:
// - *Provider: the provider.
func NewProvider(node NodePricer, prices PriceSource, logger *logrus.Logger) *Provider {
	return &Provider{
		stationURL: defaultStationURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		node:       node,
		prices:     prices,
		logger:     logger,
	}
}

type stationResponse struct {
	Fast    decimal.Decimal `json:"fast"`
	Average decimal.Decimal `json:"average"`
}

// GasPrice returns the gas price in wei for the funding transaction of the
// given trade. High-worth trades get a priority boost; so do trades whose
// worth cannot be established, since underpricing those risks a stuck fill.
func (p *Provider) GasPrice(ctx context.Context, intent *types.TradeIntent) (*big.Int, error) {
	base, err := p.fastPrice(ctx)
	if err != nil {
		return nil, err
	}

	if p.shouldBoost(ctx, intent) {
		base = base.Mul(boostFactor)
	}
	return base.BigInt(), nil
}

// fastPrice reads the oracle's fast tier, falling back to the node's
// suggested price when the oracle is unreachable.
func (p *Provider) fastPrice(ctx context.Context) (decimal.Decimal, error) {
	resp, err := p.queryStation(ctx)
	if err == nil {
		return resp.Fast.Mul(tenthGweiInWei), nil
	}
	p.logger.WithError(err).Warn("Gas oracle unavailable, falling back to node gas price")

	if p.node == nil {
		return decimal.Zero, errors.Wrap(err, "gas oracle unavailable and no node fallback")
	}
	suggested, err := p.node.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get fallback gas price")
	}
	return decimal.NewFromBigInt(suggested, 0), nil
}

func (p *Provider) queryStation(ctx context.Context) (*stationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.stationURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gas oracle request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "gas oracle request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("gas oracle returned status %d", resp.StatusCode)
	}

	var out stationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode gas oracle response")
	}
	if out.Fast.IsZero() {
		return nil, errors.New("gas oracle returned zero fast price")
	}
	return &out, nil
}

// shouldBoost reports whether the trade's USD worth warrants the priority
// multiplier.
func (p *Provider) shouldBoost(ctx context.Context, intent *types.TradeIntent) bool {
	if intent == nil || p.prices == nil {
		return true
	}

	worth := p.orderWorth(ctx, intent)
	return worth.IsZero() || worth.GreaterThanOrEqual(decimal.NewFromInt(boostWorthUSD))
}

// orderWorth estimates the USD worth of the trade from the base token market
// price. Returns zero when the worth cannot be established.
func (p *Provider) orderWorth(ctx context.Context, intent *types.TradeIntent) decimal.Decimal {
	if strings.EqualFold(intent.Base, "USDT") {
		return intent.Amount
	}

	price, err := p.prices.MarketPrice(ctx, intent.Base)
	if err != nil {
		p.logger.WithError(err).WithField("symbol", intent.Base).Warn("Failed to get market price for order worth")
		return decimal.Zero
	}
	return price.Mul(intent.Amount)
}
