// Package quote converts a trade intent into a cached, tradeable maker
// order through the two-phase provisional/firm negotiation with a market
// maker over the real-time pricing channel.
package quote

import (
	"context"
	"sync"
	"time"

	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/consenlabs/tokenlon-sdk-go/pricefeed"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// requestTimeout bounds each quote request over the channel. There is no
// retry on timeout; the caller may retry the whole negotiation.
const requestTimeout = 5 * time.Second

// Channel is the slice of the pricing channel the engine drives. A fresh
// channel is used per negotiation because Disconnect is permanent for an
// instance.
type Channel interface {
	Connect(ctx context.Context) error
	SubscribeNewOrder(req *pricefeed.QuoteRequest, handler pricefeed.Handler) error
	SubscribeLastOrder(req *pricefeed.QuoteRequest, handler pricefeed.Handler) error
	UnsubscribeAll()
	Disconnect()
}

// TokenSource supplies the tradable-token table with per-pair bounds.
type TokenSource interface {
	TradeTokens(ctx context.Context) ([]types.Token, error)
}

// Engine orchestrates quote negotiation for one signing address.
type Engine struct {
	newChannel func() Channel
	tokens     TokenSource
	userAddr   string
	currency   string
	cache      *Cache
	logger     *logrus.Logger
	now        func() time.Time
	timeout    time.Duration
}

// NewEngine creates a negotiation engine.
//
// Parameters:
// - newChannel: factory producing a fresh pricing channel per negotiation.
// - tokens: the tradable-token table source.
// - userAddr: the taker address quoted against.
// - currency: optional display currency forwarded as a subscription header.
// - cache: the quote cache shared with settlement.
// - logger: the logger for logging events.
func NewEngine(
	newChannel func() Channel,
	tokens TokenSource,
	userAddr string,
	currency string,
	cache *Cache,
	logger *logrus.Logger,
) *Engine {
	return &Engine{
		newChannel: newChannel,
		tokens:     tokens,
		userAddr:   userAddr,
		currency:   currency,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
		timeout:    requestTimeout,
	}
}

// RequestQuote validates the intent, negotiates a provisional then a firm
// quote with the market maker, caches the firm maker order and returns the
// caller-facing result. Validation failures never touch the network. The
// channel is always torn down before returning, success or not.
func (e *Engine) RequestQuote(ctx context.Context, intent *types.TradeIntent) (*types.QuoteResult, error) {
	tokens, err := e.tokens.TradeTokens(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get trade token list")
	}
	if err := validateIntent(tokens, intent); err != nil {
		return nil, err
	}

	ch := e.newChannel()
	if err := ch.Connect(ctx); err != nil {
		return nil, err
	}

	firm, err := e.negotiate(ctx, ch, intent)

	ch.UnsubscribeAll()
	ch.Disconnect()

	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"pair": intent.Symbol(),
			"side": intent.Side,
		}).WithError(err).Warn("Quote negotiation failed")
		return nil, err
	}

	e.cache.Put(*intent, firm.Order)
	return e.toQuoteResult(tokens, intent, firm)
}

// negotiate runs the two successive channel requests. The provisional
// request exists purely to fail fast before committing to the firm
// round-trip; it is fully resolved before the firm request is issued.
func (e *Engine) negotiate(ctx context.Context, ch Channel, intent *types.TradeIntent) (*types.QuoteResponse, error) {
	req := &pricefeed.QuoteRequest{
		Base:     intent.Base,
		Quote:    intent.Quote,
		Side:     intent.Side,
		Amount:   intent.Amount,
		UserAddr: e.userAddr,
		Currency: e.currency,
	}

	provisional, err := e.request(ctx, ch, req, false)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(intent.Amount, provisional); err != nil {
		return nil, err
	}

	firm, err := e.request(ctx, ch, req, true)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(intent.Amount, firm); err != nil {
		return nil, err
	}

	return firm, nil
}

// request issues one subscribe-and-wait round-trip, racing the maker's
// response against the fixed deadline through a settle-once completion so a
// late callback can never overwrite a delivered result.
func (e *Engine) request(ctx context.Context, ch Channel, req *pricefeed.QuoteRequest, firm bool) (*types.QuoteResponse, error) {
	done := newCompletion()
	handler := func(resp *types.QuoteResponse, err error) {
		done.settle(resp, err)
	}

	var err error
	if firm {
		err = ch.SubscribeLastOrder(req, handler)
	} else {
		err = ch.SubscribeNewOrder(req, handler)
	}
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case r := <-done.ch:
		return r.resp, r.err
	case <-timer.C:
		return nil, commonerrors.ErrQuoteTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// toQuoteResult derives the human-readable price and amounts from the maker
// order's raw asset amounts through the quote token's decimal precision.
func (e *Engine) toQuoteResult(tokens []types.Token, intent *types.TradeIntent, resp *types.QuoteResponse) (*types.QuoteResult, error) {
	quoteToken, ok := types.FindToken(tokens, intent.Quote)
	if !ok {
		return nil, commonerrors.ErrTokenNotFound
	}

	// For a user BUY the maker sells the base token, so the quote-side
	// amount is the taker asset amount, and vice versa.
	raw := resp.Order.MakerAssetAmount
	if intent.Side == types.SideBuy {
		raw = resp.Order.TakerAssetAmount
	}

	assetAmount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid asset amount %q in maker order", raw)
	}

	quoteAmount := assetAmount.Shift(-quoteToken.Decimal)

	return &types.QuoteResult{
		QuoteID:     resp.Order.QuoteID,
		Base:        intent.Base,
		Quote:       intent.Quote,
		Side:        intent.Side,
		Amount:      intent.Amount,
		QuoteAmount: quoteAmount,
		Price:       quoteAmount.Div(intent.Amount),
		Timestamp:   e.now().Unix(),
		MinAmount:   resp.MinAmount,
		MaxAmount:   resp.MaxAmount,
	}, nil
}

// validateIntent checks the pair and amount against the system token table.
func validateIntent(tokens []types.Token, intent *types.TradeIntent) error {
	baseToken, ok := types.FindToken(tokens, intent.Base)
	if !ok {
		return commonerrors.ErrUnsupportedPair
	}
	if !baseToken.HasOpposite(intent.Quote) {
		return commonerrors.ErrUnsupportedPair
	}
	if !intent.Amount.IsPositive() {
		return commonerrors.ErrBelowMinTradeAmount
	}
	if baseToken.MinTradeAmount > 0 && intent.Amount.LessThan(decimal.NewFromFloat(baseToken.MinTradeAmount)) {
		return commonerrors.ErrBelowMinTradeAmount
	}
	if baseToken.MaxTradeAmount > 0 && intent.Amount.GreaterThan(decimal.NewFromFloat(baseToken.MaxTradeAmount)) {
		return commonerrors.ErrAboveMaxTradeAmount
	}
	return nil
}

// checkResponse validates a maker response: explicit decline reasons are
// raised verbatim, counterparty bounds are enforced, and an order payload
// must be present despite success markers.
func checkResponse(amount decimal.Decimal, resp *types.QuoteResponse) error {
	if resp.Reason != "" {
		return &commonerrors.MakerDeclinedError{Reason: resp.Reason}
	}
	if resp.MinAmount > 0 && amount.LessThan(decimal.NewFromFloat(resp.MinAmount)) {
		return commonerrors.ErrBelowMakerMinAmount
	}
	if resp.MaxAmount > 0 && amount.GreaterThan(decimal.NewFromFloat(resp.MaxAmount)) {
		return commonerrors.ErrAboveMakerMaxAmount
	}
	if !resp.Exchangeable {
		return commonerrors.ErrNoLiquidity
	}
	if resp.Order == nil {
		return commonerrors.ErrEmptyResponse
	}
	return nil
}

type completionResult struct {
	resp *types.QuoteResponse
	err  error
}

// completion is a single-assignment result slot: exactly one settle wins,
// later calls are no-ops.
type completion struct {
	once sync.Once
	ch   chan completionResult
}

func newCompletion() *completion {
	return &completion{ch: make(chan completionResult, 1)}
}

func (c *completion) settle(resp *types.QuoteResponse, err error) {
	c.once.Do(func() {
		c.ch <- completionResult{resp: resp, err: err}
	})
}
