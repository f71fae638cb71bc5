// Package rpc implements the JSON-RPC 2.0 client for the relay's exchange and
// market endpoints.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const requestTimeout = 30 * time.Second

// Endpoints holds the relay URL set. Exchange serves trading methods and
// authentication, Market serves pair and ticker data, Publisher serves the
// real-time pricing feed.
type Endpoints struct {
	Exchange  string
	Market    string
	Publisher string
}

// DefaultEndpoints returns the production relay URLs, or the staging set when
// debug is enabled.
func DefaultEndpoints(debug bool) Endpoints {
	if debug {
		return Endpoints{
			Exchange:  "https://exchange.dev.tokenlon.im/rpc",
			Market:    "https://market.dev.tokenlon.im/rpc",
			Publisher: "https://publisher.dev.tokenlon.im/rpc",
		}
	}
	return Endpoints{
		Exchange:  "https://exchange.tokenlon.im/rpc",
		Market:    "https://market.tokenlon.im/rpc",
		Publisher: "https://publisher.tokenlon.im/rpc",
	}
}

// Client is a JSON-RPC 2.0 client over HTTP.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a relay RPC client.
func NewClient(endpoints Endpoints, logger *logrus.Logger) *Client {
	return &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// call performs one JSON-RPC request against url and decodes the result into
// out. A nil out discards the result.
func (c *Client) call(ctx context.Context, url, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "failed to create %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", method)
	}
	if decoded.Error != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"code":   decoded.Error.Code,
		}).Error("Relay returned error")
		return errors.Errorf("%s: relay error %d: %s", method, decoded.Error.Code, decoded.Error.Message)
	}

	if out == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return errors.Errorf("%s returned empty result", method)
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s result", method)
	}
	return nil
}
