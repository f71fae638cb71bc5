// Package tokenlon is the client SDK for trading against the Tokenlon relay:
// real-time quote negotiation over the pricing feed, order signing through
// injected wallet capabilities, and settlement submission.
package tokenlon

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/consenlabs/tokenlon-sdk-go/chain"
	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/consenlabs/tokenlon-sdk-go/exchange"
	"github.com/consenlabs/tokenlon-sdk-go/gasprice"
	"github.com/consenlabs/tokenlon-sdk-go/nonce"
	"github.com/consenlabs/tokenlon-sdk-go/pricefeed"
	"github.com/consenlabs/tokenlon-sdk-go/quote"
	"github.com/consenlabs/tokenlon-sdk-go/rpc"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// cacheTTL bounds how long relay-published configuration (token table,
// contract addresses, feed JWT) is reused before a refetch.
const cacheTTL = 5 * time.Minute

// orderSource tags submitted orders with this SDK as their origin.
const orderSource = "tokenlon-sdk-go"

// Config configures a client for one signing address.
type Config struct {
	// Address is the taker address all quotes and settlements are bound to.
	Address string
	// PersonalSigner signs the taker order payload. Required.
	PersonalSigner types.PersonalSigner
	// RawTransactionSigner signs funding and allowance transactions. Required.
	RawTransactionSigner types.RawTransactionSigner
	// ApproveAndFillSigner, when set, lets Trade bundle a token approval with
	// the order submission instead of failing on a short allowance.
	ApproveAndFillSigner types.ApproveAndFillSigner
	// ProviderURL is the Ethereum node RPC endpoint.
	ProviderURL string
	// Currency is an optional display currency forwarded to the pricing feed.
	Currency string
	// Debug switches all relay endpoints to the staging environment.
	Debug bool
	// Logger is optional; a default logger is created when nil.
	Logger *logrus.Logger
}

// Client is the SDK entry point. One instance serves one signing address;
// quote negotiations on an instance must be serialized by the caller.
type Client struct {
	config    Config
	address   ethcommon.Address
	endpoints rpc.Endpoints
	logger    *logrus.Logger

	relay     *rpc.Client
	chain     *chain.Client
	cache     *quote.Cache
	sequencer *nonce.Sequencer
	engine    *quote.Engine
	pipeline  *exchange.Pipeline

	now func() time.Time

	cacheMutex   sync.Mutex
	cachedTokens []types.Token
	tokensAt     time.Time
	cachedConfig *types.AppConfig
	configAt     time.Time
	cachedJwt    string
	jwtAt        time.Time
}

// NewClient creates a client from the given configuration.
//
// Parameters:
// - config: the client configuration.
//
// Returns:
// - *Client: the client.
// - error: an error if the configuration is incomplete or the node is
//   unreachable.
func NewClient(config Config) (*Client, error) {
	if !ethcommon.IsHexAddress(config.Address) {
		return nil, errors.Errorf("invalid address %q", config.Address)
	}
	if config.PersonalSigner == nil {
		return nil, errors.New("personal signer is required")
	}
	if config.RawTransactionSigner == nil {
		return nil, errors.New("raw transaction signer is required")
	}
	if config.ProviderURL == "" {
		return nil, errors.New("provider URL is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}

	chainClient, err := chain.NewClient(config.ProviderURL, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:    config,
		address:   ethcommon.HexToAddress(config.Address),
		endpoints: rpc.DefaultEndpoints(config.Debug),
		logger:    logger,
		chain:     chainClient,
		cache:     quote.NewCache(),
		now:       time.Now,
	}

	c.relay = rpc.NewClient(c.endpoints, logger)
	c.sequencer = nonce.NewSequencer(chainClient, c.address, logger)

	gasPricer := gasprice.NewProvider(chainClient, c.relay, logger)
	c.pipeline = exchange.NewPipeline(
		config.PersonalSigner,
		config.RawTransactionSigner,
		c.sequencer,
		chainClient,
		gasPricer,
		logger,
	)

	newChannel := func() quote.Channel {
		return pricefeed.NewChannel(c.endpoints.Publisher, c, logger)
	}
	c.engine = quote.NewEngine(newChannel, c, config.Address, config.Currency, c.cache, logger)

	return c, nil
}

// Close releases the client's node connection.
func (c *Client) Close() {
	c.chain.Close()
}

// GetTokens returns the relay's tradable token table.
func (c *Client) GetTokens(ctx context.Context) ([]types.Token, error) {
	return c.TradeTokens(ctx)
}

// TradeTokens returns the token table, cached for the configuration TTL.
func (c *Client) TradeTokens(ctx context.Context) ([]types.Token, error) {
	c.cacheMutex.Lock()
	if c.cachedTokens != nil && c.now().Sub(c.tokensAt) < cacheTTL {
		tokens := c.cachedTokens
		c.cacheMutex.Unlock()
		return tokens, nil
	}
	c.cacheMutex.Unlock()

	tokens, err := c.relay.TradeTokenList(ctx)
	if err != nil {
		return nil, err
	}

	c.cacheMutex.Lock()
	c.cachedTokens = tokens
	c.tokensAt = c.now()
	c.cacheMutex.Unlock()
	return tokens, nil
}

// appConfig returns the relay contract configuration, cached for the TTL.
func (c *Client) appConfig(ctx context.Context) (*types.AppConfig, error) {
	c.cacheMutex.Lock()
	if c.cachedConfig != nil && c.now().Sub(c.configAt) < cacheTTL {
		config := c.cachedConfig
		c.cacheMutex.Unlock()
		return config, nil
	}
	c.cacheMutex.Unlock()

	config, err := c.relay.MobileAppConfig(ctx)
	if err != nil {
		return nil, err
	}

	c.cacheMutex.Lock()
	c.cachedConfig = config
	c.configAt = c.now()
	c.cacheMutex.Unlock()
	return config, nil
}

// SdkJwtToken returns the pricing feed auth token, authenticating with a
// personal signature over the current timestamp. Cached for the TTL.
func (c *Client) SdkJwtToken(ctx context.Context) (string, error) {
	c.cacheMutex.Lock()
	if c.cachedJwt != "" && c.now().Sub(c.jwtAt) < cacheTTL {
		token := c.cachedJwt
		c.cacheMutex.Unlock()
		return token, nil
	}
	c.cacheMutex.Unlock()

	timestamp := c.now().Unix()
	message := hexutil.Encode([]byte(strconv.FormatInt(timestamp, 10)))
	signature, err := c.config.PersonalSigner.SignPersonal(ctx, message)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign auth timestamp")
	}

	token, err := c.relay.SdkJwtToken(ctx, timestamp, signature)
	if err != nil {
		return "", err
	}

	c.cacheMutex.Lock()
	c.cachedJwt = token
	c.jwtAt = c.now()
	c.cacheMutex.Unlock()
	return token, nil
}

// GetPairs returns the pairs traded on the relay market.
func (c *Client) GetPairs(ctx context.Context) ([]string, error) {
	return c.relay.Pairs(ctx)
}

// GetTicker returns the 24h market summary for the given pair.
func (c *Client) GetTicker(ctx context.Context, pair string) (*rpc.Ticker, error) {
	return c.relay.Ticker(ctx, pair)
}

// GetOrderState returns the relay-side state of a submitted order.
func (c *Client) GetOrderState(ctx context.Context, executeTxHash string) (*rpc.OrderState, error) {
	return c.relay.OrderState(ctx, executeTxHash)
}

// GetOrdersHistory returns a page of this address's past orders.
func (c *Client) GetOrdersHistory(ctx context.Context, page, perPage int) ([]rpc.OrderState, error) {
	return c.relay.OrdersHistory(ctx, &rpc.HistoryQuery{
		SignerAddr: c.config.Address,
		Page:       page,
		PerPage:    perPage,
	})
}
