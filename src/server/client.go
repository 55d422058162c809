package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *models.MEnvelope

	// Allow-list from the presented token; nil means an unrestricted
	// (unauthenticated) connection limited to the public channels.
	allowList []string
	userID    string

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool
}

// -----------------------------------------------------------------------------

func newClient(hub *Hub, conn *websocket.Conn, token *models.MAccessToken) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *models.MEnvelope, sendBufferSize),
		joined: make(map[string]struct{}),
	}
	if token != nil {
		c.allowList = token.AllowedChannels
		c.userID = token.UserID
	}
	return c
}

// -----------------------------------------------------------------------------

// Allowed reports whether this connection may join the channel. Restricted
// connections check their allow-list; unrestricted ones get the public
// channels plus nothing user-scoped but their own.
func (c *Client) Allowed(channel string) bool {
	if c.allowList != nil {
		return allowedByList(c.allowList, channel)
	}
	if channel == UserChannel(c.userID) && c.userID != "" {
		return true
	}
	// Public surface: price, alerts, system, provider channels
	return channel != "" && !isUserChannel(channel)
}

func isUserChannel(channel string) bool {
	return len(channel) > 5 && channel[:5] == "user:"
}

// -----------------------------------------------------------------------------

func (c *Client) track(channel string) {
	c.mu.Lock()
	c.joined[channel] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrack(channel string) {
	c.mu.Lock()
	delete(c.joined, channel)
	c.mu.Unlock()
}

func (c *Client) joinedChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.joined))
	for incoming := range c.joined {
		out = append(out, incoming)
	}
	return out
}

// -----------------------------------------------------------------------------

// trySend queues a message without blocking. Returns false when the client
// is gone or too slow and its buffer is full.
func (c *Client) trySend(msg *models.MEnvelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming subscribe/unsubscribe commands.
// Acts as the watchdog for the connection.
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.hub.Drop(c)
		c.conn.Close()
		c.hub.Logger.Debug("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.handleCommand(message)
	}
}

// -----------------------------------------------------------------------------

func (c *Client) handleCommand(message []byte) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.trySend(&models.MEnvelope{Event: "subscription_error", Error: "malformed command"})
		return
	}

	switch cmd.Command {
	case "subscribe":
		if err := c.hub.Subscribe(c, cmd.Channel); err != nil {
			c.trySend(&models.MEnvelope{Event: "subscription_error", Channel: cmd.Channel, Error: err.Error()})
			return
		}
		c.trySend(&models.MEnvelope{Event: "subscription_success", Channel: cmd.Channel})

	case "unsubscribe":
		c.hub.Unsubscribe(c, cmd.Channel)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to the client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Debug("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
