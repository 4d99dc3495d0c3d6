package signaling

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/protocol"
)

func TestCallNotifiesPeerAndHangsUp(t *testing.T) {
	transport := NewInProcTransport()
	defer transport.Close()

	monitor := NewChannel("maria", transport, testLogger())
	companion := NewChannel("rosa", transport, testLogger())

	incoming := make(chan protocol.IncomingCallPayload, 1)
	ended := make(chan protocol.CallEndedPayload, 1)
	require.NoError(t, companion.Listen(Handlers{
		OnIncomingCall: func(p protocol.IncomingCallPayload) { incoming <- p },
		OnCallEnded:    func(p protocol.CallEndedPayload) { ended <- p },
	}))
	defer companion.StopListening()

	var mu sync.Mutex
	var updates []CallState
	call, err := StartCall(monitor, "rosa", "Maria", func(u CallUpdate) {
		mu.Lock()
		updates = append(updates, u.State)
		mu.Unlock()
	}, testLogger())
	require.NoError(t, err)
	require.Equal(t, CallCalling, call.State())
	require.Zero(t, call.Elapsed())

	select {
	case p := <-incoming:
		require.Equal(t, call.ID(), p.CallID)
		require.Equal(t, "Maria", p.FromName)
	case <-time.After(time.Second):
		t.Fatal("peer never notified of the call")
	}

	call.End("changed my mind")
	call.End("again") // idempotent

	select {
	case p := <-ended:
		require.Equal(t, call.ID(), p.CallID)
		require.Equal(t, 0, p.DurationSeconds) // ended while still ringing
	case <-time.After(time.Second):
		t.Fatal("peer never notified of hangup")
	}

	require.Equal(t, CallEnded, call.State())
	mu.Lock()
	require.Equal(t, CallCalling, updates[0])
	require.Equal(t, CallEnded, updates[len(updates)-1])
	mu.Unlock()
}

func TestCallRemoteHangupEndsCall(t *testing.T) {
	transport := NewInProcTransport()
	defer transport.Close()

	monitor := NewChannel("maria", transport, testLogger())
	companion := NewChannel("rosa", transport, testLogger())

	ended := make(chan protocol.CallEndedPayload, 1)
	require.NoError(t, monitor.Listen(Handlers{
		OnCallEnded: func(p protocol.CallEndedPayload) { ended <- p },
	}))
	defer monitor.StopListening()

	var mu sync.Mutex
	var updates []CallState
	call, err := StartCall(monitor, "rosa", "Maria", func(u CallUpdate) {
		mu.Lock()
		updates = append(updates, u.State)
		mu.Unlock()
	}, testLogger())
	require.NoError(t, err)

	// A payload for some other call leaves this one alone.
	call.HandleRemoteEnd(protocol.CallEndedPayload{CallID: "someone-else"})
	require.Equal(t, CallCalling, call.State())

	// The peer hangs up: the call ends without publishing call_ended back.
	require.NoError(t, companion.SendTo("maria", protocol.MsgCallEnded, protocol.CallEndedPayload{
		CallID: call.ID(), Reason: "hangup",
	}))

	select {
	case p := <-ended:
		call.HandleRemoteEnd(p)
	case <-time.After(time.Second):
		t.Fatal("monitor never saw the remote hangup")
	}

	require.Equal(t, CallEnded, call.State())
	mu.Lock()
	require.Equal(t, CallEnded, updates[len(updates)-1])
	mu.Unlock()

	// End after a remote teardown stays a no-op, nothing reaches the peer.
	peerEnded := make(chan protocol.CallEndedPayload, 1)
	require.NoError(t, companion.Listen(Handlers{
		OnCallEnded: func(p protocol.CallEndedPayload) { peerEnded <- p },
	}))
	defer companion.StopListening()

	call.End("too late")
	select {
	case <-peerEnded:
		t.Fatal("remote teardown must not publish call_ended back")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCallConnectsAfterRingInterval(t *testing.T) {
	transport := NewInProcTransport()
	defer transport.Close()

	monitor := NewChannel("maria", transport, testLogger())

	connected := make(chan struct{})
	var once sync.Once
	call, err := StartCall(monitor, "rosa", "Maria", func(u CallUpdate) {
		if u.State == CallConnected {
			once.Do(func() { close(connected) })
		}
	}, testLogger())
	require.NoError(t, err)
	defer call.End("test over")

	select {
	case <-connected:
	case <-time.After(connectDelay + 2*time.Second):
		t.Fatal("call never connected")
	}
	require.Equal(t, CallConnected, call.State())
}
