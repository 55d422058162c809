package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-relay/src/logger"
	"price-relay/src/models"
)

func newTestHub() *Hub {
	return NewHub(logger.NewLogger("error", "hub-test"))
}

// newHubClient builds a client without a live websocket; trySend only
// touches the send queue, so tests can drain it directly.
func newHubClient(hub *Hub, token *models.MAccessToken) *Client {
	return newClient(hub, nil, token)
}

func drain(c *Client) []*models.MEnvelope {
	var out []*models.MEnvelope
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// -----------------------------------------------------------------------------

func TestSubscribeAndPublish(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	c := newHubClient(hub, nil)

	require.NoError(t, hub.Subscribe(c, ChannelPrice))
	assert.True(t, hub.HasSubscribers(ChannelPrice))

	hub.Publish(ChannelPrice, "price_update", models.MPriceUpdate{Symbol: "USD/TRY"})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, "price_update", msgs[0].Event)
	assert.Equal(t, ChannelPrice, msgs[0].Channel)
}

func TestPublishOnlyReachesSubscribedChannel(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	priceClient := newHubClient(hub, nil)
	alertClient := newHubClient(hub, nil)

	require.NoError(t, hub.Subscribe(priceClient, ChannelPrice))
	require.NoError(t, hub.Subscribe(alertClient, ChannelAlerts))

	hub.Publish(ChannelPrice, "price_update", nil)

	assert.Len(t, drain(priceClient), 1)
	assert.Empty(t, drain(alertClient))
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	assert.False(t, hub.HasSubscribers(ChannelPrice))
	hub.Publish(ChannelPrice, "price_update", nil) // must not panic
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	c := newHubClient(hub, nil)

	require.NoError(t, hub.Subscribe(c, ChannelPrice))
	hub.Unsubscribe(c, ChannelPrice)

	assert.False(t, hub.HasSubscribers(ChannelPrice))
	hub.Publish(ChannelPrice, "price_update", nil)
	assert.Empty(t, drain(c))
}

func TestDropRemovesFromAllChannels(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	c := newHubClient(hub, nil)

	require.NoError(t, hub.Subscribe(c, ChannelPrice))
	require.NoError(t, hub.Subscribe(c, ChannelAlerts))
	require.NoError(t, hub.Subscribe(c, "primary-feed"))
	assert.Equal(t, 1, hub.ConnectionCount())

	hub.Drop(c)

	assert.False(t, hub.HasSubscribers(ChannelPrice))
	assert.False(t, hub.HasSubscribers(ChannelAlerts))
	assert.False(t, hub.HasSubscribers("primary-feed"))
	assert.Zero(t, hub.ConnectionCount())

	// Publishing after the drop never reaches the closed client.
	hub.Publish(ChannelPrice, "price_update", nil)
	assert.False(t, c.trySend(&models.MEnvelope{Event: "late"}))
}

func TestSlowClientIsSkippedNotAwaited(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	c := newHubClient(hub, nil)
	require.NoError(t, hub.Subscribe(c, ChannelPrice))

	// Fill the send buffer.
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, c.trySend(&models.MEnvelope{Event: "fill"}))
	}

	// Publish returns immediately; the overflow message is dropped.
	hub.Publish(ChannelPrice, "price_update", nil)
	assert.Len(t, drain(c), sendBufferSize)
}

// -----------------------------------------------------------------------------
// Channel authorization
// -----------------------------------------------------------------------------

func TestUnauthenticatedClientPublicChannelsOnly(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	c := newHubClient(hub, nil)

	assert.NoError(t, hub.Subscribe(c, ChannelPrice))
	assert.NoError(t, hub.Subscribe(c, ChannelAlerts))
	assert.NoError(t, hub.Subscribe(c, ChannelSystem))
	assert.NoError(t, hub.Subscribe(c, "primary-feed"))

	err := hub.Subscribe(c, UserChannel("someone"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestTokenAllowListRestrictsChannels(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	token := &models.MAccessToken{
		UserID:          "u1",
		AllowedChannels: []string{ChannelPrice, UserChannel("u1")},
	}
	c := newHubClient(hub, token)

	assert.NoError(t, hub.Subscribe(c, ChannelPrice))
	assert.NoError(t, hub.Subscribe(c, UserChannel("u1")))

	assert.Error(t, hub.Subscribe(c, ChannelAlerts), "not on the allow-list")
	assert.Error(t, hub.Subscribe(c, UserChannel("u2")))
}

func TestWildcardTokenAllowsEverything(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	token := &models.MAccessToken{UserID: "u1", AllowedChannels: []string{"*"}}
	c := newHubClient(hub, token)

	assert.NoError(t, hub.Subscribe(c, ChannelPrice))
	assert.NoError(t, hub.Subscribe(c, UserChannel("u2")))
	assert.NoError(t, hub.Subscribe(c, "any-provider"))
}

func TestEmptyChannelRejected(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	c := newHubClient(hub, nil)
	assert.Error(t, hub.Subscribe(c, ""))
}

func TestHandleCommandSubscribeFlow(t *testing.T) {
	t.Parallel()
	hub := newTestHub()
	c := newHubClient(hub, nil)

	c.handleCommand([]byte(`{"command":"subscribe","channel":"price"}`))
	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, "subscription_success", msgs[0].Event)
	assert.True(t, hub.HasSubscribers(ChannelPrice))

	c.handleCommand([]byte(`{"command":"subscribe","channel":"user:other"}`))
	msgs = drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, "subscription_error", msgs[0].Event)

	c.handleCommand([]byte(`not json`))
	msgs = drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, "subscription_error", msgs[0].Event)
	assert.Equal(t, "malformed command", msgs[0].Error)

	c.handleCommand([]byte(`{"command":"unsubscribe","channel":"price"}`))
	assert.False(t, hub.HasSubscribers(ChannelPrice))
}
