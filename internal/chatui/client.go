package chatui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mwinata/crm-web-ui/internal/models"
)

const defaultResponseTimeout = 60 * time.Second

// Update is delivered on the client's update channel after each change to the renderer.
type Update struct {
	// Event is the inbound event that was applied, zero when TimedOut is set.
	Event models.Event
	// TurnDone is set when the update ended a conversation turn and input is enabled again.
	TurnDone bool
	// TimedOut is set when the response watchdog expired instead of an event arriving.
	TimedOut bool
}

// Client connects the Renderer to a chat socket. It generates an opaque session id once,
// dials /ws/chat/{sessionId}, serializes all renderer access, and owns the per-turn
// response watchdog. Outbound frames go through a single writer goroutine so the
// connection never sees concurrent writes.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	renderer *Renderer
	watchdog *time.Timer

	send      chan models.Outbound
	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithResponseTimeout overrides the per-turn watchdog duration.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Dial connects to the chat socket of the server at baseURL. The scheme is rewritten for
// websocket use, so both http:// and ws:// addresses are accepted.
func Dial(ctx context.Context, baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	sessionID := uuid.New().String()
	u.Path = "/ws/chat/" + sessionID

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chat socket: %w", err)
	}

	c := &Client{
		conn:      conn,
		sessionID: sessionID,
		timeout:   defaultResponseTimeout,
		logger:    logger.With(slog.String("module", "chatui"), slog.String("sessionID", sessionID)),
		renderer:  NewRenderer(logger),
		send:      make(chan models.Outbound, 8),
		updates:   make(chan Update, 16),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.writeLoop()

	return c, nil
}

// SessionID returns the client-generated session identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Updates delivers one Update per applied event or watchdog expiry. Consumers should
// also select on Done, which fires when the read loop exits.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Done fires when the client has shut down and no further updates will arrive.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send submits a user message for the next turn. It reports false when the renderer
// rejected the text (empty after trimming, or input disabled).
func (c *Client) Send(text string) bool {
	c.mu.Lock()
	out, ok := c.renderer.Send(text)
	if ok {
		c.armWatchdog()
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case c.send <- out:
	case <-c.done:
		return false
	}
	return true
}

// Messages returns the current rendered message list.
func (c *Client) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderer.Messages()
}

// InputEnabled reports whether a new message may be sent.
func (c *Client) InputEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderer.InputEnabled()
}

// Run reads inbound frames until the connection closes or ctx is cancelled. Malformed
// frames are dropped with a logged warning and no state change.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()
	defer func() {
		c.mu.Lock()
		c.stopWatchdog()
		c.mu.Unlock()
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read chat socket: %w", err)
		}

		ev, err := models.DecodeEvent(data)
		if err != nil {
			c.logger.Warn("Dropping malformed event", slog.String("error", err.Error()))
			continue
		}

		c.mu.Lock()
		c.renderer.Apply(ev)
		turnDone := c.renderer.InputEnabled()
		if turnDone {
			c.stopWatchdog()
		} else {
			c.armWatchdog()
		}
		c.mu.Unlock()

		select {
		case c.updates <- Update{Event: ev, TurnDone: turnDone}:
		case <-c.done:
			return nil
		}
	}
}

// Close tears down the connection and stops the writer goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writeLoop() {
	for {
		select {
		case out := <-c.send:
			if err := c.conn.WriteJSON(out); err != nil {
				c.logger.Warn("Failed to transmit message", slog.String("error", err.Error()))
			}
		case <-c.done:
			return
		}
	}
}

// armWatchdog (re)starts the per-turn response deadline. Called with mu held.
func (c *Client) armWatchdog() {
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	c.watchdog = time.AfterFunc(c.timeout, c.expire)
}

// stopWatchdog cancels the pending deadline, if any. Called with mu held.
func (c *Client) stopWatchdog() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

func (c *Client) expire() {
	c.mu.Lock()
	c.renderer.Timeout()
	c.watchdog = nil
	c.mu.Unlock()

	select {
	case c.updates <- Update{TurnDone: true, TimedOut: true}:
	case <-c.done:
	}
}
