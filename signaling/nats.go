package signaling

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"carelink/core"
)

// NATSTransportConfig holds the broker connection settings.
type NATSTransportConfig struct {
	URL  string
	Name string
}

func DefaultNATSTransportConfig() NATSTransportConfig {
	return NATSTransportConfig{
		URL:  nats.DefaultURL,
		Name: "carelink",
	}
}

// NATSTransport routes signaling over a NATS broker.
type NATSTransport struct {
	conn   *nats.Conn
	logger *core.Logger
}

func NewNATSTransport(config NATSTransportConfig, logger *core.Logger) (*NATSTransport, error) {
	conn, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("signaling broker disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("signaling broker reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, core.TransportError("connect signaling broker", err)
	}
	return &NATSTransport{conn: conn, logger: logger}, nil
}

func (t *NATSTransport) Publish(topic string, data []byte) error {
	if err := t.conn.Publish(topic, data); err != nil {
		return core.TransportError("publish signal", err)
	}
	return nil
}

// Subscribe registers the handler and flushes the connection so the
// subscription is confirmed on the broker before returning.
func (t *NATSTransport) Subscribe(topic string, handler func(data []byte)) (Subscription, error) {
	sub, err := t.conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, core.TransportError("subscribe signal topic", err)
	}
	if err := t.conn.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, core.TransportError("confirm signal subscription", err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (t *NATSTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Drain(); err != nil {
		t.conn.Close()
		return fmt.Errorf("failed to drain signaling connection: %w", err)
	}
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	if s.sub == nil || !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}
