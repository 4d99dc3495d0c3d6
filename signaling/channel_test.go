package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/core"
	"carelink/protocol"
)

func testLogger() *core.Logger { return core.NewDevelopmentLogger() }

func TestChannelDeliversAfterListenReturns(t *testing.T) {
	transport := NewInProcTransport()
	defer transport.Close()

	companion := NewChannel("rosa", transport, testLogger())
	monitor := NewChannel("maria", transport, testLogger())

	calls := make(chan protocol.IncomingCallPayload, 1)
	require.NoError(t, companion.Listen(Handlers{
		OnIncomingCall: func(p protocol.IncomingCallPayload) { calls <- p },
	}))
	defer companion.StopListening()

	// Listen has returned, so this publish must not race the subscription.
	require.NoError(t, monitor.SendTo("rosa", protocol.MsgIncomingCall, protocol.IncomingCallPayload{
		CallID:   "c1",
		FromUser: "maria",
		FromName: "Maria",
	}))

	select {
	case p := <-calls:
		require.Equal(t, "c1", p.CallID)
		require.Equal(t, "maria", p.FromUser)
	case <-time.After(time.Second):
		t.Fatal("incoming call never delivered")
	}
}

func TestChannelIgnoresOwnMessages(t *testing.T) {
	transport := NewInProcTransport()
	defer transport.Close()

	companion := NewChannel("rosa", transport, testLogger())
	received := make(chan protocol.PresencePayload, 1)
	require.NoError(t, companion.Listen(Handlers{
		OnPresence: func(p protocol.PresencePayload) { received <- p },
	}))
	defer companion.StopListening()

	// A message from rosa arriving on rosa's own topic is dropped.
	require.NoError(t, companion.SendTo("rosa", protocol.MsgPresence, protocol.PresencePayload{
		UserID: "rosa", Timestamp: time.Now(),
	}))

	select {
	case <-received:
		t.Fatal("own message should have been filtered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelDropsMalformedSignals(t *testing.T) {
	transport := NewInProcTransport()
	defer transport.Close()

	companion := NewChannel("rosa", transport, testLogger())
	received := make(chan protocol.PresencePayload, 1)
	require.NoError(t, companion.Listen(Handlers{
		OnPresence: func(p protocol.PresencePayload) { received <- p },
	}))
	defer companion.StopListening()

	require.NoError(t, transport.Publish(TopicForUser("rosa"), []byte("not json")))
	require.NoError(t, transport.Publish(TopicForUser("rosa"), []byte(`{"id":"x","from":"y"}`)))

	select {
	case <-received:
		t.Fatal("malformed signal should have been dropped")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelStopListeningIsIdempotent(t *testing.T) {
	transport := NewInProcTransport()
	defer transport.Close()

	companion := NewChannel("rosa", transport, testLogger())
	require.NoError(t, companion.Listen(Handlers{}))
	require.NoError(t, companion.StopListening())
	require.NoError(t, companion.StopListening())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := protocol.Marshal("maria", protocol.MsgEmergency, protocol.EmergencyPayload{
		UserID: "rosa", Note: "help me", Keyword: "help",
	})
	require.NoError(t, err)

	env, err := protocol.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgEmergency, env.Type)
	require.Equal(t, "maria", env.From)
	require.NotEmpty(t, env.ID)

	payload, err := protocol.UnmarshalPayload[protocol.EmergencyPayload](env.Payload)
	require.NoError(t, err)
	require.Equal(t, "help me", payload.Note)
}
