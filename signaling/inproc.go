package signaling

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"carelink/core"
)

// InProcTransport routes signaling inside a single process. Used by tests and
// by the demo binaries when both companions run on one machine.
type InProcTransport struct {
	pubSub *gochannel.GoChannel

	mu     sync.Mutex
	closed bool
}

func NewInProcTransport() *InProcTransport {
	return &InProcTransport{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, watermill.NopLogger{}),
	}
}

func (t *InProcTransport) Publish(topic string, data []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := t.pubSub.Publish(topic, msg); err != nil {
		return core.TransportError("publish signal", err)
	}
	return nil
}

// Subscribe registers the handler. The gochannel subscriber is live once
// Subscribe returns, so publishes issued afterwards are delivered.
func (t *InProcTransport) Subscribe(topic string, handler func(data []byte)) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	messages, err := t.pubSub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, core.TransportError("subscribe signal topic", err)
	}

	go func() {
		for msg := range messages {
			handler(msg.Payload)
			msg.Ack()
		}
	}()

	return &inprocSubscription{cancel: cancel}, nil
}

func (t *InProcTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.pubSub.Close()
}

type inprocSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *inprocSubscription) Unsubscribe() error {
	s.once.Do(s.cancel)
	return nil
}
