package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 1 << 20
)

// frame is the wire envelope, both directions.
type frame struct {
	Op string `json:"op"`

	// op=event (inbound)
	Type      string `json:"type,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	FromBot   bool   `json:"from_bot,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
	Command   string `json:"command,omitempty"`
	Content   string `json:"content,omitempty"`

	// op=register_commands (outbound)
	Commands []CommandSpec `json:"commands,omitempty"`
}

// WebsocketDialer dials the production gateway.
type WebsocketDialer struct {
	url string
}

// NewWebsocketDialer returns a Dialer for the gateway at url.
func NewWebsocketDialer(url string) *WebsocketDialer {
	return &WebsocketDialer{url: url}
}

// Dial opens a session authenticated by token. A 401 or 403 handshake
// response maps to ErrInvalidToken.
func (d *WebsocketDialer) Dial(ctx context.Context, token string) (Connection, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrInvalidToken, resp.StatusCode)
		}
		return nil, fmt.Errorf("gateway: dial %s: %w", d.url, err)
	}
	ws.SetReadLimit(readLimit)

	c := &wsConn{
		ws:     ws,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type wsConn struct {
	ws *websocket.Conn

	// wmu serializes writes; gorilla permits one concurrent writer.
	wmu sync.Mutex

	events chan Event

	mu     sync.Mutex
	dead   error
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) Events() <-chan Event { return c.events }

func (c *wsConn) readLoop() {
	defer close(c.events)

	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			c.mu.Lock()
			if !c.closed {
				if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
					// The gateway revokes sessions whose token expired
					// mid-flight with a policy close.
					c.dead = fmt.Errorf("%w: session revoked", ErrInvalidToken)
				} else {
					c.dead = fmt.Errorf("gateway: read: %w", err)
				}
			}
			c.mu.Unlock()
			return
		}
		if f.Op != "event" {
			continue
		}
		select {
		case c.events <- Event{
			Type:      EventType(f.Type),
			GuildID:   f.GuildID,
			ChannelID: f.ChannelID,
			UserID:    f.UserID,
			FromBot:   f.FromBot,
			Admin:     f.Admin,
			Command:   f.Command,
			Content:   f.Content,
		}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) writeJSON(ctx context.Context, f frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("gateway: set write deadline: %w", err)
	}
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("gateway: write: %w", err)
	}
	return nil
}

func (c *wsConn) Send(ctx context.Context, channelID, content string) error {
	return c.writeJSON(ctx, frame{Op: "message", ChannelID: channelID, Content: content})
}

func (c *wsConn) RegisterCommands(ctx context.Context, cmds []CommandSpec) error {
	return c.writeJSON(ctx, frame{Op: "register_commands", Commands: cmds})
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)

		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		c.wmu.Unlock()
		_ = c.ws.Close()
	})
	return nil
}

func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}
