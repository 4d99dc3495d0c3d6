package factories

import (
	"fmt"

	"carelink/conversation"
	"carelink/core"
	"carelink/signaling"
)

// Chat provider names accepted in settings.json.
const (
	ChatProviderSSE    = "sse"
	ChatProviderOpenAI = "openai"
)

// BuildChatProvider constructs the chat provider selected by the settings.
func BuildChatProvider(settings ChatSettings, logger *core.Logger) (conversation.ChatProvider, error) {
	provider := settings.Provider
	if provider == "" {
		provider = ChatProviderSSE
	}
	switch provider {
	case ChatProviderSSE:
		if settings.SSE.Endpoint == "" {
			return nil, fmt.Errorf("chat: sse provider requires an endpoint")
		}
		return conversation.NewSSEProvider(settings.SSE, logger), nil
	case ChatProviderOpenAI:
		p, err := conversation.NewOpenAIProvider(settings.OpenAI)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("chat: unknown provider %q", provider)
	}
}

// Signaling transport names accepted in settings.json.
const (
	SignalingProviderNATS   = "nats"
	SignalingProviderRelay  = "relay"
	SignalingProviderInProc = "inproc"
)

// BuildSignalingTransport constructs the signaling transport selected by the
// settings.
func BuildSignalingTransport(settings SignalingSettings, logger *core.Logger) (signaling.Transport, error) {
	provider := settings.Provider
	if provider == "" {
		provider = SignalingProviderInProc
	}
	switch provider {
	case SignalingProviderNATS:
		cfg := signaling.DefaultNATSTransportConfig()
		if settings.NATSURL != "" {
			cfg.URL = settings.NATSURL
		}
		return signaling.NewNATSTransport(cfg, logger)
	case SignalingProviderRelay:
		if settings.RelayURL == "" {
			return nil, fmt.Errorf("signaling: relay provider requires a url")
		}
		return signaling.NewRelayTransport(signaling.RelayTransportConfig{URL: settings.RelayURL}, logger)
	case SignalingProviderInProc:
		return signaling.NewInProcTransport(), nil
	default:
		return nil, fmt.Errorf("signaling: unknown provider %q", provider)
	}
}
