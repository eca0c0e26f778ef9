package jsonrpc

import (
	"context"
	"encoding/json"
	"net/url"
	"sync/atomic"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"nhooyr.io/websocket"
)

var log = logger.GetGoI2PLogger()

// maxMessageSize caps a single frame from the daemon. Relayed API responses
// travel inside one frame.
const maxMessageSize = 32 << 20

// ErrMissingResult is returned for a success response without a result.
var ErrMissingResult = oops.New("invalid reply, no 'result'")

// Client calls methods on the tunnel daemon's JSON-RPC endpoint.
type Client struct {
	url    string
	nextID atomic.Int64
}

// NewClient validates rawURL (ws:// or wss://) and returns a client for it.
func NewClient(rawURL string) (*Client, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return &Client{url: rawURL}, nil
}

// ValidateURL checks that rawURL is an absolute WebSocket URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return oops.Wrapf(err, "unable to parse IPC url %q", rawURL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return oops.Errorf("IPC url %q must use ws or wss", rawURL)
	}
	if u.Host == "" {
		return oops.Errorf("IPC url %q has no host", rawURL)
	}
	return nil
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string {
	return c.url
}

// Call opens a connection, performs a single call and closes the connection.
// The result is decoded into result unless it is nil.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	conn, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Call(ctx, method, params, result)
}

// Dial opens a long lived connection, used for subscriptions.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, oops.Wrapf(err, "unable to connect WebSocket to %s", c.url)
	}
	ws.SetReadLimit(maxMessageSize)
	log.WithFields(logger.Fields{
		"at":     "(Client) Dial",
		"reason": "connected",
		"url":    c.url,
	}).Debug("connected to tunnel daemon")
	return &Conn{ws: ws, client: c}, nil
}

// Conn is an open WebSocket to the daemon. It is not safe for concurrent use.
type Conn struct {
	ws     *websocket.Conn
	client *Client
	// notifications read while waiting for a response
	pending []*Message
}

// Call sends one request and waits for the response with the same id.
// Notifications received in the meantime are kept for Next.
func (c *Conn) Call(ctx context.Context, method string, params, result interface{}) error {
	id := c.client.nextID.Add(1)
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return oops.Wrapf(err, "unable to encode %s request", method)
	}
	log.WithFields(logger.Fields{
		"at":     "(Conn) Call",
		"reason": "sending_request",
		"method": method,
		"id":     id,
	}).Debug("sending JSON-RPC request")
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return oops.Wrapf(err, "unable to send %s request", method)
	}

	for {
		msg, err := c.read(ctx)
		if err != nil {
			return err
		}
		if msg.IsNotification() {
			c.pending = append(c.pending, msg)
			continue
		}
		if msg.ID == nil || *msg.ID != id {
			log.WithFields(logger.Fields{
				"at":     "(Conn) Call",
				"reason": "unexpected_response_id",
				"method": method,
				"id":     id,
			}).Warn("dropping response for another request")
			continue
		}
		if msg.Error != nil {
			return msg.Error
		}
		if len(msg.Result) == 0 {
			return ErrMissingResult
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return oops.Wrapf(err, "unable to decode %s result", method)
		}
		return nil
	}
}

// Next returns the next notification pushed by the daemon.
func (c *Conn) Next(ctx context.Context) (*Message, error) {
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		return msg, nil
	}
	for {
		msg, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		if msg.IsNotification() {
			return msg, nil
		}
	}
}

// Close closes the connection with a normal closure.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *Conn) read(ctx context.Context) (*Message, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, oops.Wrapf(err, "unable to read from tunnel daemon")
	}
	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
