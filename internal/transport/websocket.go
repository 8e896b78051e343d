package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
)

// WSClient receives realtime record updates over WebSocket.
type WSClient struct {
	url    string
	token  string
	logger *events.Logger

	// Connection state
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	// Channels
	messages chan models.UpdateMessage
	errors   chan error
	done     chan struct{}

	// Heartbeat
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWSClient creates an update stream client. cfg may be nil for defaults.
func NewWSClient(wsURL, token string, cfg *config.UpdatesConfig, logger *events.Logger) *WSClient {
	// If it's not already a WebSocket URL, convert http(s) to ws(s)
	if len(wsURL) > 4 && wsURL[:4] == "http" {
		wsURL = "ws" + wsURL[4:]
	}

	pingInterval := 30 * time.Second
	buffer := 64
	if cfg != nil {
		if cfg.PingInterval > 0 {
			pingInterval = cfg.PingInterval
		}
		if cfg.Buffer > 0 {
			buffer = cfg.Buffer
		}
	}

	return &WSClient{
		url:          wsURL + "/updates/connect",
		token:        token,
		logger:       logger.WithField("component", "ws_client"),
		messages:     make(chan models.UpdateMessage, buffer),
		errors:       make(chan error, 10),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		pongTimeout:  10 * time.Second,
	}
}

// Connect establishes the WebSocket connection.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	c.logger.WithField("url", c.url).Info("Connecting to update stream")

	// Set up headers
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.token)

	// Connect with timeout
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("update stream connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("update stream connect failed: %w", err)
	}

	c.conn = conn
	c.closed = false

	// Start goroutines
	go c.readLoop()
	go c.pingLoop()

	c.logger.Info("Update stream connected")
	return nil
}

// Subscribe sends the subscription message.
func (c *WSClient) Subscribe(msg models.SubscribeMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	msg.Op = models.UpdateOpSubscribe

	c.logger.WithFields(map[string]any{
		"kinds":  msg.Kinds,
		"device": msg.Device,
	}).Debug("Sending subscribe message")

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	return nil
}

// Messages returns the message channel.
func (c *WSClient) Messages() <-chan models.UpdateMessage {
	return c.messages
}

// Errors returns the error channel.
func (c *WSClient) Errors() <-chan error {
	return c.errors
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		// Send close message
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// readLoop reads frames from the stream.
func (c *WSClient) readLoop() {
	defer func() {
		c.Close()
		close(c.messages)
		close(c.errors)
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		// Set read deadline for pong
		_ = conn.SetReadDeadline(time.Now().Add(c.pongTimeout + c.pingInterval))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(c.pongTimeout + c.pingInterval))
			return nil
		})

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.WithError(err).Error("Update stream read error")
				c.errors <- err
			}
			return
		}

		msg, err := models.ParseUpdateMessage(data)
		if err != nil {
			c.logger.WithError(err).Warn("Dropping unparseable update frame")
			continue
		}

		// Application-level keepalive frames stay inside the transport
		if msg.Op == models.UpdateOpPong {
			c.logger.Debug("Received pong frame")
			continue
		}

		c.logger.WithFields(map[string]any{
			"op":        msg.Op,
			"kind":      msg.Kind,
			"record_id": msg.RecordID,
		}).Debug("Received update")

		select {
		case c.messages <- *msg:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic pings.
func (c *WSClient) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				return
			}

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.WithError(err).Error("Ping failed")
				return
			}

		case <-c.done:
			return
		}
	}
}
