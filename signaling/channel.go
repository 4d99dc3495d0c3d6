package signaling

import (
	"sync"

	"carelink/core"
	"carelink/protocol"
)

// Handlers receives decoded signaling messages. Nil fields are skipped.
type Handlers struct {
	OnPresence     func(protocol.PresencePayload)
	OnIncomingCall func(protocol.IncomingCallPayload)
	OnCallEnded    func(protocol.CallEndedPayload)
	OnEmergency    func(protocol.EmergencyPayload)
}

// Channel binds a local user to the transport: it listens on the user's own
// topic and publishes to peers' topics.
type Channel struct {
	userID    string
	transport Transport
	logger    *core.Logger

	mu   sync.Mutex
	sub  Subscription
	seen map[string]struct{}
}

func NewChannel(userID string, transport Transport, logger *core.Logger) *Channel {
	return &Channel{
		userID:    userID,
		transport: transport,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
}

func (c *Channel) UserID() string { return c.userID }

// Listen subscribes to the local user's topic. It returns once the
// subscription is confirmed, so a peer prompted after Listen returns can
// publish without racing the subscription.
func (c *Channel) Listen(handlers Handlers) error {
	sub, err := c.transport.Subscribe(TopicForUser(c.userID), func(data []byte) {
		c.receive(data, handlers)
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// StopListening drops the topic subscription. Idempotent.
func (c *Channel) StopListening() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (c *Channel) receive(data []byte, handlers Handlers) {
	env, err := protocol.Unmarshal(data)
	if err != nil {
		c.logger.Warn("dropping malformed signal", "error", err)
		return
	}
	if env.From == c.userID {
		return
	}
	if c.duplicate(env.ID) {
		return
	}

	switch env.Type {
	case protocol.MsgPresence:
		if handlers.OnPresence == nil {
			return
		}
		payload, err := protocol.UnmarshalPayload[protocol.PresencePayload](env.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed presence signal", "error", err)
			return
		}
		handlers.OnPresence(payload)
	case protocol.MsgIncomingCall:
		if handlers.OnIncomingCall == nil {
			return
		}
		payload, err := protocol.UnmarshalPayload[protocol.IncomingCallPayload](env.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed call signal", "error", err)
			return
		}
		handlers.OnIncomingCall(payload)
	case protocol.MsgCallEnded:
		if handlers.OnCallEnded == nil {
			return
		}
		payload, err := protocol.UnmarshalPayload[protocol.CallEndedPayload](env.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed call signal", "error", err)
			return
		}
		handlers.OnCallEnded(payload)
	case protocol.MsgEmergency:
		if handlers.OnEmergency == nil {
			return
		}
		payload, err := protocol.UnmarshalPayload[protocol.EmergencyPayload](env.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed emergency signal", "error", err)
			return
		}
		handlers.OnEmergency(payload)
	default:
		c.logger.Warn("dropping signal of unknown type", "type", string(env.Type))
	}
}

// duplicate remembers envelope IDs so redelivered messages are handled once.
func (c *Channel) duplicate(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[id]; ok {
		return true
	}
	// Bounded: old IDs are forgotten wholesale rather than tracked by age.
	if len(c.seen) > 1024 {
		c.seen = make(map[string]struct{})
	}
	c.seen[id] = struct{}{}
	return false
}

// SendTo publishes a typed payload to a peer's topic.
func (c *Channel) SendTo(peerID string, msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(c.userID, msgType, payload)
	if err != nil {
		return err
	}
	return c.transport.Publish(TopicForUser(peerID), data)
}
