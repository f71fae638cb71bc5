package pricefeed

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Conn is a message-oriented transport connection.
type Conn interface {
	// ReadMessage blocks until the next message arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage writes a single message.
	WriteMessage(data []byte) error
	// Close tears down the connection. Any blocked ReadMessage returns an error.
	Close() error
}

// Dialer establishes transport connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WebsocketDialer dials the pricing feed over a websocket.
type WebsocketDialer struct{}

// Dial establishes a websocket connection to the given URL.
//
// Parameters:
// - ctx: the context bounding the dial.
// - url: the ws/wss endpoint.
// - header: additional handshake headers.
//
// Returns:
// - Conn: the established connection.
// - error: an error if the handshake fails.
func (WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket dial failed with status %s", resp.Status)
		}
		return nil, errors.Wrap(err, "websocket dial failed")
	}
	return &wsConn{conn: conn}, nil
}
