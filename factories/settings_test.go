package factories

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsConfigFromJSON(t *testing.T) {
	data := []byte(`{
		"user_id": "rosa",
		"display_name": "Rosa",
		"language": "es",
		"peer_id": "maria",
		"recognition": {
			"streaming_url": "wss://stt.example.com/listen",
			"transcribe_url": "https://stt.example.com/transcribe"
		},
		"chat": {
			"provider": "sse",
			"sse": {"endpoint": "https://chat.example.com/stream"}
		},
		"synthesis": {"endpoint": "https://tts.example.com/speak"},
		"signaling": {"provider": "nats", "nats_url": "nats://localhost:4222"}
	}`)

	cfg, err := SettingsConfigFromJSON(data)
	require.NoError(t, err)
	require.Equal(t, "rosa", cfg.UserID)
	require.Equal(t, "es", cfg.Language)
	require.Equal(t, "es", cfg.Recognition.Language)
	require.Equal(t, "wss://stt.example.com/listen", cfg.Recognition.StreamingURL)
	require.Equal(t, ChatProviderSSE, cfg.Chat.Provider)
	require.Equal(t, SignalingProviderNATS, cfg.Signaling.Provider)

	// Omitted delays pick up the defaults.
	require.NotZero(t, cfg.Recognition.EmptyResultDelay)
}

func TestSettingsConfigRequiresUserID(t *testing.T) {
	_, err := SettingsConfigFromJSON([]byte(`{"language": "en"}`))
	require.Error(t, err)
}

func TestBuildChatProviderValidation(t *testing.T) {
	_, err := BuildChatProvider(ChatSettings{Provider: "sse"}, nil)
	require.Error(t, err)

	_, err = BuildChatProvider(ChatSettings{Provider: "carrier-pigeon"}, nil)
	require.Error(t, err)
}

func TestBuildSignalingTransportDefaultsToInProc(t *testing.T) {
	transport, err := BuildSignalingTransport(SignalingSettings{}, nil)
	require.NoError(t, err)
	require.NoError(t, transport.Close())
}
