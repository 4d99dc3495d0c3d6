package signaling

// TopicForUser returns the per-recipient signaling topic. Every companion
// subscribes to its own topic and publishes to its peer's.
func TopicForUser(userID string) string {
	return "signal.user." + userID
}

// Subscription is a live topic subscription. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Transport delivers signaling envelopes between companions over named
// topics. Subscribe must return only once the subscription is confirmed
// live: a Publish issued after Subscribe returns is guaranteed to reach the
// handler.
type Transport interface {
	Publish(topic string, data []byte) error
	Subscribe(topic string, handler func(data []byte)) (Subscription, error)
	Close() error
}
