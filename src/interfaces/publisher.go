package interfaces

// -----------------------------------------------------------------------------
// IPublisher is the fan-out surface handed to ingestion, pricing and the
// schedulers. Delivery is best-effort per subscriber; a slow or disconnected
// subscriber never blocks publication to others.
// -----------------------------------------------------------------------------

type IPublisher interface {

	// Publish delivers an event to every current subscriber of the channel.
	Publish(channel, event string, payload interface{})

	// -----------------------------------------------------------------------------

	// HasSubscribers reports whether any live connection is subscribed to
	// the channel. Used to skip derived-pricing work for offline users.
	HasSubscribers(channel string) bool
}
