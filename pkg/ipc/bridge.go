package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Request is one invocation sent over the bridge.
type Request struct {
	ID      string          `json:"id"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers the Request with the same ID. Exactly one of Result and
// Error is set.
type Reply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// =============================================================================
// SERVER
// =============================================================================

// Bridge serves a Registry over WebSocket. Requests on one connection are
// handled in order.
type Bridge struct {
	registry       *Registry
	logger         zerolog.Logger
	originPatterns []string
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(l zerolog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithOriginPatterns allows cross-origin renderers matching the patterns.
func WithOriginPatterns(patterns ...string) BridgeOption {
	return func(b *Bridge) { b.originPatterns = patterns }
}

// NewBridge creates a bridge for registry.
func NewBridge(registry *Registry, opts ...BridgeOption) *Bridge {
	b := &Bridge{registry: registry, logger: log.Logger}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ServeHTTP upgrades the connection and serves it until the peer closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: b.originPatterns})
	if err != nil {
		b.logger.Warn().Err(err).Msg("ipc_bridge_accept_failed")
		return
	}
	defer conn.CloseNow()

	if err := b.Serve(r.Context(), conn); err != nil {
		b.logger.Warn().Err(err).Msg("ipc_bridge_closed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// Serve reads requests from conn and writes replies until the peer closes
// the connection or ctx is done. A normal close returns nil.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn) error {
	for {
		var req Request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		reply := b.handle(ctx, req)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return fmt.Errorf("write reply %s: %w", req.ID, err)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, req Request) Reply {
	reply := Reply{ID: req.ID}

	result, err := b.registry.Invoke(ctx, req.Channel, req.Payload)
	if err != nil {
		b.logger.Debug().Str("channel", req.Channel).Err(err).Msg("ipc_invoke_failed")
		reply.Error = err.Error()
		return reply
	}

	raw, err := json.Marshal(result)
	if err != nil {
		reply.Error = fmt.Sprintf("encode result: %v", err)
		return reply
	}
	reply.Result = raw
	return reply
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// =============================================================================
// CLIENT
// =============================================================================

// RemoteError is an error returned by a handler on the far side of a bridge.
type RemoteError struct {
	Channel string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ipc %s: %s", e.Channel, e.Message)
}

// Client invokes channels through a Bridge. Calls are serialized.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to a bridge at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Invoke sends payload to channel and decodes the result into out (if non-nil).
func (c *Client) Invoke(ctx context.Context, channel string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{ID: uuid.New().String(), Channel: channel, Payload: raw}
	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var reply Reply
	if err := wsjson.Read(ctx, c.conn, &reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if reply.ID != req.ID {
		return fmt.Errorf("reply id %q does not match request %q", reply.ID, req.ID)
	}
	if reply.Error != "" {
		return &RemoteError{Channel: channel, Message: reply.Error}
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
