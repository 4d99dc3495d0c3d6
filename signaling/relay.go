package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"carelink/core"
)

// relayFrame is the wire format between relay clients and the relay server.
type relayFrame struct {
	Op    string          `json:"op"` // "sub", "unsub", "pub", "ack"
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	relayOpSub   = "sub"
	relayOpUnsub = "unsub"
	relayOpPub   = "pub"
	relayOpAck   = "ack"

	relayKeepAliveInterval = 8 * time.Second
	relayAckTimeout        = 5 * time.Second
)

// RelayServer is a WebSocket fan-out hub for deployments without a broker.
// Each client subscribes to topics; published frames are forwarded to every
// other subscriber of the topic.
type RelayServer struct {
	logger   *core.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*relayClientConn]struct{}
}

func NewRelayServer(logger *core.Logger) *RelayServer {
	return &RelayServer{
		logger:  logger,
		clients: make(map[*relayClientConn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve blocks, listening on addr until ctx is cancelled.
func (s *RelayServer) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/signal", s.handleWS)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	s.logger.Info("signaling relay listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type relayClientConn struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	topicsMu sync.RWMutex
	topics   map[string]struct{}
}

func (c *relayClientConn) write(frame relayFrame) error {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *relayClientConn) subscribed(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (s *RelayServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("relay upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &relayClientConn{conn: conn, topics: make(map[string]struct{})}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame relayFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("relay received malformed frame", "error", err)
			continue
		}
		switch frame.Op {
		case relayOpSub:
			client.topicsMu.Lock()
			client.topics[frame.Topic] = struct{}{}
			client.topicsMu.Unlock()
			// The ack tells the subscriber it is safe to prompt a publish.
			if err := client.write(relayFrame{Op: relayOpAck, Topic: frame.Topic}); err != nil {
				return
			}
		case relayOpUnsub:
			client.topicsMu.Lock()
			delete(client.topics, frame.Topic)
			client.topicsMu.Unlock()
		case relayOpPub:
			s.fanOut(client, frame)
		}
	}
}

func (s *RelayServer) fanOut(from *relayClientConn, frame relayFrame) {
	s.mu.RLock()
	targets := make([]*relayClientConn, 0, len(s.clients))
	for client := range s.clients {
		if client == from {
			continue
		}
		if client.subscribed(frame.Topic) {
			targets = append(targets, client)
		}
	}
	s.mu.RUnlock()

	for _, client := range targets {
		if err := client.write(frame); err != nil {
			s.logger.Error("relay write to subscriber failed", "error", err)
		}
	}
}

// RelayTransportConfig holds the relay client settings.
type RelayTransportConfig struct {
	URL string // ws://host:port/signal
}

// RelayTransport is the client side of the relay hub.
type RelayTransport struct {
	config RelayTransportConfig
	logger *core.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]*relaySubscription

	acksMu sync.Mutex
	acks   map[string]chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewRelayTransport(config RelayTransportConfig, logger *core.Logger) (*RelayTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(config.URL, nil)
	if err != nil {
		return nil, core.TransportError("connect signaling relay", err)
	}
	t := &RelayTransport{
		config:   config,
		logger:   logger,
		conn:     conn,
		handlers: make(map[string][]*relaySubscription),
		acks:     make(map[string]chan struct{}),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	go t.keepAlive()
	return t, nil
}

func (t *RelayTransport) Publish(topic string, data []byte) error {
	return t.write(relayFrame{Op: relayOpPub, Topic: topic, Data: data})
}

// Subscribe sends the subscription request and waits for the server's ack so
// the subscription is live before returning.
func (t *RelayTransport) Subscribe(topic string, handler func(data []byte)) (Subscription, error) {
	sub := &relaySubscription{transport: t, topic: topic, handler: handler}

	t.handlersMu.Lock()
	existing := len(t.handlers[topic])
	t.handlers[topic] = append(t.handlers[topic], sub)
	t.handlersMu.Unlock()

	if existing > 0 {
		// Already subscribed on the wire.
		return sub, nil
	}

	ack := make(chan struct{})
	t.acksMu.Lock()
	t.acks[topic] = ack
	t.acksMu.Unlock()

	if err := t.write(relayFrame{Op: relayOpSub, Topic: topic}); err != nil {
		t.removeHandler(sub)
		return nil, err
	}

	select {
	case <-ack:
		return sub, nil
	case <-t.done:
		t.removeHandler(sub)
		return nil, core.TransportError("subscribe signal topic", fmt.Errorf("relay connection closed"))
	case <-time.After(relayAckTimeout):
		t.removeHandler(sub)
		return nil, core.TransportError("subscribe signal topic", fmt.Errorf("timed out waiting for subscription ack"))
	}
}

func (t *RelayTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.connMu.Lock()
		defer t.connMu.Unlock()
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = t.conn.Close()
	})
	return err
}

func (t *RelayTransport) write(frame relayFrame) error {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode relay frame: %w", err)
	}
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return core.TransportError("relay write", err)
	}
	return nil
}

func (t *RelayTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Error("relay connection lost", "error", err)
				t.Close()
			}
			return
		}
		var frame relayFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			t.logger.Warn("relay sent malformed frame", "error", err)
			continue
		}
		switch frame.Op {
		case relayOpAck:
			t.acksMu.Lock()
			if ack, ok := t.acks[frame.Topic]; ok {
				close(ack)
				delete(t.acks, frame.Topic)
			}
			t.acksMu.Unlock()
		case relayOpPub:
			t.dispatch(frame.Topic, frame.Data)
		}
	}
}

func (t *RelayTransport) dispatch(topic string, data []byte) {
	t.handlersMu.RLock()
	subs := make([]*relaySubscription, len(t.handlers[topic]))
	copy(subs, t.handlers[topic])
	t.handlersMu.RUnlock()
	for _, sub := range subs {
		sub.handler(data)
	}
}

func (t *RelayTransport) keepAlive() {
	ticker := time.NewTicker(relayKeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.connMu.Lock()
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.connMu.Unlock()
			if err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *RelayTransport) removeHandler(target *relaySubscription) bool {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	subs := t.handlers[target.topic]
	for i, sub := range subs {
		if sub == target {
			t.handlers[target.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return len(t.handlers[target.topic]) == 0
}

type relaySubscription struct {
	transport *RelayTransport
	topic     string
	handler   func(data []byte)
	once      sync.Once
}

func (s *relaySubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		if s.transport.removeHandler(s) {
			err = s.transport.write(relayFrame{Op: relayOpUnsub, Topic: s.topic})
		}
	})
	return err
}
