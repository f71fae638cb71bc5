package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// retryInterval is the fixed backoff between connect attempts.
	retryInterval = time.Second
	// maxConnectAttempts is the connect retry budget.
	maxConnectAttempts = 3
	// feedEndpoint is the relay endpoint serving the pricing feed.
	feedEndpoint = "exchange"
	// sentinelBody is the transport's priming payload on a fresh
	// subscription; it must never reach a handler.
	sentinelBody = "None"
)

// State describes the channel connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateInterrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// Handler receives decoded quote payloads. Malformed payloads are reported
// through err, never panicked or swallowed.
type Handler func(resp *types.QuoteResponse, err error)

// TokenProvider supplies the JWT used to authenticate the pricing feed.
type TokenProvider interface {
	SdkJwtToken(ctx context.Context) (string, error)
}

// QuoteRequest identifies a pricing topic: pair, side, amount and the
// requesting address, plus an optional display currency header.
type QuoteRequest struct {
	Base     string
	Quote    string
	Side     types.Side
	Amount   decimal.Decimal
	UserAddr string
	Currency string
}

func (r *QuoteRequest) symbol() string {
	return strings.ToUpper(r.Base) + "_" + strings.ToUpper(r.Quote)
}

func (r *QuoteRequest) path(kind string) string {
	return fmt.Sprintf("/user/%s/%s/%s/%s/%s",
		kind, r.symbol(), strings.ToUpper(string(r.Side)), r.Amount.String(), r.UserAddr)
}

func (r *QuoteRequest) headers() map[string]string {
	if r.Currency == "" {
		return map[string]string{}
	}
	return map[string]string{"currency": r.Currency}
}

type subscription struct {
	id      string
	path    string
	handler Handler
}

// Channel maintains a single persistent, authenticated connection to the
// relay's pricing feed with at-most-one-active-subscription semantics.
// One instance serves one client session; callers must serialize
// negotiations per instance.
type Channel struct {
	endpoint string
	auth     TokenProvider
	dialer   Dialer
	logger   *logrus.Logger

	retryInterval time.Duration
	maxAttempts   int

	mu             sync.Mutex
	conn           Conn
	connecting     bool
	interrupted    bool
	failedAttempts int
	subs           map[string]*subscription
	seq            int
}

// Option overrides a channel default. Used by tests to shorten the backoff
// and swap the transport.
type Option func(*Channel)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithRetryInterval overrides the fixed connect backoff.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Channel) { c.retryInterval = d }
}

// NewChannel creates a pricing channel for the given relay endpoint.
//
// Parameters:
// - endpoint: the relay publisher URL (http(s) scheme, /rpc suffix tolerated).
// - auth: the JWT source for feed authentication.
// - logger: the logger for logging events.
// - opts: optional overrides.
//
// Returns:
// - *Channel: the channel, in Disconnected state.
func NewChannel(endpoint string, auth TokenProvider, logger *logrus.Logger, opts ...Option) *Channel {
	c := &Channel{
		endpoint:      endpoint,
		auth:          auth,
		dialer:        WebsocketDialer{},
		logger:        logger,
		retryInterval: retryInterval,
		maxAttempts:   maxConnectAttempts,
		subs:          make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.interrupted:
		return StateInterrupted
	case c.connecting:
		return StateConnecting
	case c.conn != nil:
		return StateConnected
	default:
		return StateDisconnected
	}
}

// Connect establishes the feed connection. It is idempotent when already
// connected, fails with ErrAlreadyConnecting when an attempt is in flight,
// and returns immediately without attempting once Disconnect has set the
// interrupt flag. Each underlying failure increments the failure counter and
// retries after a fixed backoff; once the budget is exhausted Connect fails
// with ErrConnectFailed. The counter resets only on success.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.interrupted {
		c.mu.Unlock()
		return nil
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return commonerrors.ErrAlreadyConnecting
	}
	if c.failedAttempts >= c.maxAttempts {
		c.mu.Unlock()
		return commonerrors.ErrConnectFailed
	}
	c.connecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	for {
		err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.failedAttempts = 0
			c.mu.Unlock()
			return nil
		}

		c.mu.Lock()
		c.failedAttempts++
		attempts := c.failedAttempts
		interrupted := c.interrupted
		c.mu.Unlock()

		c.logger.WithFields(logrus.Fields{
			"attempt": attempts,
			"error":   err,
		}).Warn("Pricing feed connect attempt failed")

		if interrupted {
			return nil
		}
		if attempts >= c.maxAttempts {
			return commonerrors.ErrConnectFailed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}
}

// dial performs one underlying connect attempt: websocket handshake,
// CONNECT frame, CONNECTED confirmation, then starts the read loop.
func (c *Channel) dial(ctx context.Context) error {
	feedURL, err := c.feedURL(ctx)
	if err != nil {
		return err
	}

	conn, err := c.dialer.Dial(ctx, feedURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to dial pricing feed")
	}

	connect := &Frame{Command: cmdConnect, Headers: map[string]string{}}
	if err := conn.WriteMessage(connect.Marshal()); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to send CONNECT frame")
	}

	data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to read CONNECTED frame")
	}
	frame, err := ParseFrame(data)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to parse CONNECTED frame")
	}
	if frame.Command != cmdConnected {
		_ = conn.Close()
		return errors.Errorf("unexpected frame %s during handshake", frame.Command)
	}

	c.mu.Lock()
	if c.interrupted {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// feedURL builds the authenticated websocket URL for the feed endpoint.
func (c *Channel) feedURL(ctx context.Context) (string, error) {
	host := strings.TrimSuffix(c.endpoint, "/rpc")
	host = strings.Replace(host, "https://", "wss://", 1)
	host = strings.Replace(host, "http://", "ws://", 1)

	if c.auth == nil {
		return host + "/" + feedEndpoint, nil
	}

	token, err := c.auth.SdkJwtToken(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get feed auth token")
	}
	authorization := "JSSDK " + token
	return host + "/" + feedEndpoint + "?Authorization=" + url.QueryEscape(authorization), nil
}

func (c *Channel) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			c.logger.WithError(err).Warn("Dropping unparsable feed frame")
			continue
		}

		switch frame.Command {
		case cmdMessage:
			c.dispatch(frame)
		case cmdError:
			c.logger.WithField("message", frame.Headers["message"]).Warn("Pricing feed reported an error frame")
		}
	}
}

// dispatch routes a MESSAGE frame to its subscription handler. The sentinel
// priming payload is discarded; malformed payloads reach the handler as an
// error.
func (c *Channel) dispatch(frame *Frame) {
	c.mu.Lock()
	var handler Handler
	if sub, ok := c.subs[frame.Headers["subscription"]]; ok {
		handler = sub.handler
	} else {
		for _, sub := range c.subs {
			if sub.path == frame.Headers["destination"] {
				handler = sub.handler
				break
			}
		}
	}
	c.mu.Unlock()

	if handler == nil {
		return
	}

	body := bytes.TrimSpace(frame.Body)
	if string(body) == sentinelBody {
		return
	}

	var resp types.QuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		handler(nil, errors.Wrap(err, "malformed quote payload"))
		return
	}
	handler(&resp, nil)
}

// SubscribeNewOrder subscribes to the provisional quote topic for req.
// Any existing subscription is removed first.
func (c *Channel) SubscribeNewOrder(req *QuoteRequest, handler Handler) error {
	return c.subscribe("newOrder", req.path("order"), req.headers(), handler)
}

// SubscribeLastOrder subscribes to the firm quote topic for req.
// Any existing subscription is removed first.
func (c *Channel) SubscribeLastOrder(req *QuoteRequest, handler Handler) error {
	return c.subscribe("lastOrder", req.path("lastOrder"), req.headers(), handler)
}

func (c *Channel) subscribe(name, path string, headers map[string]string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return commonerrors.ErrChannelClosed
	}

	// The channel supports one live subscription set per request at a time.
	c.unsubscribeAllLocked()

	c.seq++
	id := fmt.Sprintf("%s-%d", name, c.seq)

	frameHeaders := map[string]string{
		"id":          id,
		"destination": path,
	}
	for k, v := range headers {
		frameHeaders[k] = v
	}

	frame := &Frame{Command: cmdSubscribe, Headers: frameHeaders}
	if err := c.conn.WriteMessage(frame.Marshal()); err != nil {
		return errors.Wrapf(err, "failed to subscribe %s %s", name, path)
	}

	c.subs[id] = &subscription{id: id, path: path, handler: handler}
	return nil
}

// UnsubscribeAll removes every active subscription without tearing down the
// connection.
func (c *Channel) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribeAllLocked()
}

func (c *Channel) unsubscribeAllLocked() {
	for id := range c.subs {
		if c.conn != nil {
			frame := &Frame{Command: cmdUnsubscribe, Headers: map[string]string{"id": id}}
			if err := c.conn.WriteMessage(frame.Marshal()); err != nil {
				c.logger.WithField("subscription", id).WithError(err).Warn("Failed to send UNSUBSCRIBE frame")
			}
		}
		delete(c.subs, id)
	}
}

// Disconnect sets the permanent interrupt flag, unsubscribes all active
// subscriptions and tears down the transport. This is the only path that
// stops reconnection; transient connect failures never set the flag.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.interrupted = true
	c.unsubscribeAllLocked()

	if c.conn != nil {
		frame := &Frame{Command: cmdDisconnect, Headers: map[string]string{}}
		if err := c.conn.WriteMessage(frame.Marshal()); err != nil {
			c.logger.WithError(err).Debug("Failed to send DISCONNECT frame")
		}
		_ = c.conn.Close()
		c.conn = nil
	}
}
