package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"carelink/core"
	"carelink/protocol"
)

// CallState tracks the lifecycle of a demo call.
type CallState int

const (
	CallCalling CallState = iota
	CallConnected
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallCalling:
		return "calling"
	case CallConnected:
		return "connected"
	case CallEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// connectDelay is the simulated ring time before a call reports connected.
const connectDelay = 3 * time.Second

// CallUpdate is delivered to the observer on every state or elapsed change.
type CallUpdate struct {
	CallID  string
	State   CallState
	Elapsed time.Duration
}

// Call is an outgoing demo call. It rings for a fixed interval, reports
// connected, then ticks elapsed time once per second until ended.
type Call struct {
	id       string
	channel  *Channel
	peerID   string
	onUpdate func(CallUpdate)
	logger   *core.Logger

	mu          sync.Mutex
	state       CallState
	connectedAt time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// StartCall notifies the peer and begins the ring timer. onUpdate is invoked
// from a background goroutine.
func StartCall(channel *Channel, peerID, fromName string, onUpdate func(CallUpdate), logger *core.Logger) (*Call, error) {
	call := &Call{
		id:       uuid.New().String(),
		channel:  channel,
		peerID:   peerID,
		onUpdate: onUpdate,
		logger:   logger,
		state:    CallCalling,
		stop:     make(chan struct{}),
	}

	err := channel.SendTo(peerID, protocol.MsgIncomingCall, protocol.IncomingCallPayload{
		CallID:   call.id,
		FromUser: channel.UserID(),
		FromName: fromName,
	})
	if err != nil {
		return nil, err
	}

	call.notify()
	go call.run()
	return call, nil
}

func (c *Call) ID() string { return c.id }

func (c *Call) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed reports time since the call connected, zero while ringing.
func (c *Call) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectedAt.IsZero() {
		return 0
	}
	return time.Since(c.connectedAt).Truncate(time.Second)
}

// End hangs up, notifies the peer, and stops the ticker. Idempotent.
func (c *Call) End(reason string) {
	c.stopOnce.Do(func() {
		close(c.stop)

		c.mu.Lock()
		duration := 0
		if !c.connectedAt.IsZero() {
			duration = int(time.Since(c.connectedAt).Seconds())
		}
		c.state = CallEnded
		c.mu.Unlock()

		err := c.channel.SendTo(c.peerID, protocol.MsgCallEnded, protocol.CallEndedPayload{
			CallID:          c.id,
			Reason:          reason,
			DurationSeconds: duration,
		})
		if err != nil {
			c.logger.Error("failed to notify peer of call end", "error", err)
		}
		c.notify()
	})
}

// HandleRemoteEnd tears the call down after the peer hung up. Payloads for
// other calls are ignored; nothing is published back, the peer already knows.
func (c *Call) HandleRemoteEnd(p protocol.CallEndedPayload) {
	if p.CallID != c.id {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stop)

		c.mu.Lock()
		c.state = CallEnded
		c.mu.Unlock()

		c.notify()
	})
}

func (c *Call) run() {
	select {
	case <-time.After(connectDelay):
	case <-c.stop:
		return
	}

	c.mu.Lock()
	c.state = CallConnected
	c.connectedAt = time.Now()
	c.mu.Unlock()
	c.notify()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.notify()
		case <-c.stop:
			return
		}
	}
}

func (c *Call) notify() {
	if c.onUpdate == nil {
		return
	}
	c.mu.Lock()
	update := CallUpdate{CallID: c.id, State: c.state}
	if !c.connectedAt.IsZero() {
		update.Elapsed = time.Since(c.connectedAt).Truncate(time.Second)
	}
	c.mu.Unlock()
	c.onUpdate(update)
}
