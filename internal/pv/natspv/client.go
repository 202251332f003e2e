// Package natspv implements pv.Client on top of a NATS PV gateway.
//
// The gateway bridges the target's PVs onto NATS: every PV is a subject
// named after the channel, monitors arrive as Message payloads on that
// subject, a request on the subject returns the current value, and a
// request on "<channel>.put" writes a value and is acknowledged once the
// write completed on the target.
//
// Values are plain JSON. Waveforms arrive as number arrays; byte arrays may
// also arrive as base64 strings, the JSON encoding of []byte, and are left
// as strings for the dataset accessors to decode.
package natspv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mrzor/rtems-tracer/internal/pv"
)

// Message is the gateway envelope for monitor updates and Get replies.
type Message struct {
	Status    int             `json:"status"`
	Timestamp pv.Stamp        `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// PutRequest is the body of a write request.
type PutRequest struct {
	Value any `json:"value"`
}

// PutReply is the gateway acknowledgment of a write.
type PutReply struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the timeout applied to Get and Put requests when the
// caller's context carries no deadline. Default: 5s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for undecodable payloads and connection events.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithName sets the NATS connection name.
func WithName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// Client is a pv.Client backed by a NATS connection.
type Client struct {
	conn    *nats.Conn
	logger  *zap.Logger
	timeout time.Duration
	name    string

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// Connect dials the NATS server at url.
func Connect(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger:  zap.NewNop(),
		timeout: 5 * time.Second,
		name:    "rtems-tracer",
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := nats.Connect(url,
		nats.Name(c.name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("PV gateway disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("PV gateway reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to PV gateway %s: %w", url, err)
	}
	c.conn = conn
	return c, nil
}

// Subscribe implements pv.Client.
func (c *Client) Subscribe(_ context.Context, channel string, fn func(pv.Update)) (pv.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, pv.ErrClosed
	}

	sub, err := c.conn.Subscribe(channel, func(msg *nats.Msg) {
		u, err := DecodeUpdate(channel, msg.Data)
		if err != nil {
			c.logger.Warn("Discarding undecodable PV update",
				zap.String("channel", channel),
				zap.Error(err))
			return
		}
		fn(u)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Get implements pv.Client.
func (c *Client) Get(ctx context.Context, channel string) (any, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	msg, err := c.request(ctx, channel, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", channel, err)
	}
	u, err := DecodeUpdate(channel, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", channel, err)
	}
	if u.Status != 0 {
		return nil, fmt.Errorf("get %s: gateway status %d", channel, u.Status)
	}
	return u.Value, nil
}

// Put implements pv.Client.
func (c *Client) Put(ctx context.Context, channel string, value any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	body, err := json.Marshal(PutRequest{Value: value})
	if err != nil {
		return fmt.Errorf("put %s: encoding value: %w", channel, err)
	}
	msg, err := c.request(ctx, channel+".put", body)
	if err != nil {
		return fmt.Errorf("put %s: %w", channel, err)
	}

	var reply PutReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("put %s: decoding reply: %w", channel, err)
	}
	if reply.Status != 0 {
		return fmt.Errorf("put %s: gateway status %d: %s", channel, reply.Status, reply.Error)
	}
	return nil
}

// Close unsubscribes every monitor and drains the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe() //nolint:errcheck // Connection is drained right after
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("draining PV gateway connection: %w", err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, subject string, body []byte) (*nats.Msg, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, pv.ErrClosed
	}

	msg, err := c.conn.RequestWithContext(ctx, subject, body)
	if errors.Is(err, nats.ErrNoResponders) {
		return nil, fmt.Errorf("%w: no gateway for %s", pv.ErrNotFound, subject)
	}
	return msg, err
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// DecodeUpdate decodes a gateway Message into a pv.Update.
// JSON numbers decode as float64 and arrays as []any.
func DecodeUpdate(channel string, data []byte) (pv.Update, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return pv.Update{}, fmt.Errorf("decoding message: %w", err)
	}

	var value any
	if len(msg.Value) > 0 {
		if err := json.Unmarshal(msg.Value, &value); err != nil {
			return pv.Update{}, fmt.Errorf("decoding value: %w", err)
		}
	}

	return pv.Update{
		Channel: channel,
		Value:   value,
		Status:  msg.Status,
		Stamp:   msg.Timestamp,
	}, nil
}
