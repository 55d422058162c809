package server

import (
	"fmt"
	"strings"
	"sync"

	"price-relay/src/logger"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// Hub: named-channel pub/sub registry
// -----------------------------------------------------------------------------

// Well-known channels. Provider channels use the provider name verbatim,
// per-user channels are "user:<id>".
const (
	ChannelPrice  = "price"
	ChannelAlerts = "alerts"
	ChannelSystem = "system"
)

func UserChannel(userID string) string {
	return "user:" + userID
}

// -----------------------------------------------------------------------------

// Hub keeps the subscriber registry. It is mutated by connection lifecycle
// events and read by every publish; the lock here is its own, never shared
// with ingestion.
type Hub struct {
	Logger *logger.Logger

	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
}

// -----------------------------------------------------------------------------

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		Logger:   log,
		channels: make(map[string]map[*Client]struct{}),
	}
}

// -----------------------------------------------------------------------------

// Subscribe joins a client to a channel, checking the client's allow-list
// for token-authenticated connections.
func (h *Hub) Subscribe(c *Client, channel string) error {
	if channel == "" {
		return fmt.Errorf("channel name is empty")
	}
	if !c.Allowed(channel) {
		return fmt.Errorf("not authorized for channel %q", channel)
	}

	h.mu.Lock()
	subs := h.channels[channel]
	if subs == nil {
		subs = make(map[*Client]struct{})
		h.channels[channel] = subs
	}
	subs[c] = struct{}{}
	h.mu.Unlock()

	c.track(channel)
	h.Logger.Debug("Client subscribed to %s", channel)
	return nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes a client from one channel.
func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	if subs := h.channels[channel]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	h.mu.Unlock()

	c.untrack(channel)
}

// -----------------------------------------------------------------------------

// Drop removes a client from every channel it joined and closes its send
// queue. Called once from the client's read pump on disconnect.
func (h *Hub) Drop(c *Client) {
	channels := c.joinedChannels()

	h.mu.Lock()
	for _, ch := range channels {
		if subs := h.channels[ch]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	h.mu.Unlock()

	c.closeSend()
}

// -----------------------------------------------------------------------------

// Publish delivers an event to all current subscribers of a channel.
// Best-effort: a client whose send buffer is full is skipped, never awaited.
func (h *Hub) Publish(channel, event string, payload interface{}) {
	h.mu.RLock()
	subs := h.channels[channel]
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg := &models.MEnvelope{Event: event, Channel: channel, Payload: payload}
	for _, c := range targets {
		if !c.trySend(msg) {
			h.Logger.Warning("Dropping message on %s: client send buffer full", channel)
		}
	}
}

// -----------------------------------------------------------------------------

// HasSubscribers reports whether a channel has at least one live subscriber.
func (h *Hub) HasSubscribers(channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel]) > 0
}

// -----------------------------------------------------------------------------

// ConnectionCount returns the number of distinct connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, subs := range h.channels {
		for c := range subs {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}

// -----------------------------------------------------------------------------

// allowedByList checks a channel against an allow-list of explicit names or
// the "*" wildcard.
func allowedByList(allowList []string, channel string) bool {
	for _, entry := range allowList {
		if entry == "*" || strings.EqualFold(entry, channel) {
			return true
		}
	}
	return false
}
