// Package factories builds the application graph from settings.json: the
// recognition stack, the chat provider, the voice, the signaling transport,
// and the assembled pipeline.
package factories

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	"carelink/conversation"
	"carelink/recognition"
)

// RecognitionSettings configures both recognition capabilities. An empty
// StreamingURL disables the streaming recognizer and every interaction uses
// the capture pipeline.
type RecognitionSettings struct {
	StreamingURL   string `json:"streaming_url,omitempty"`
	StreamingToken string `json:"streaming_token,omitempty"`

	TranscribeURL    string `json:"transcribe_url"`
	TranscribeAPIKey string `json:"transcribe_api_key,omitempty"`

	recognition.Config
}

// ChatSettings selects and configures the chat provider.
type ChatSettings struct {
	// Provider is "sse" or "openai". Defaults to "sse".
	Provider string `json:"provider,omitempty"`

	SSE    conversation.SSEProviderConfig    `json:"sse,omitempty"`
	OpenAI conversation.OpenAIProviderConfig `json:"openai,omitempty"`
}

// SynthesisSettings configures the remote voice endpoint.
type SynthesisSettings struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key,omitempty"`
}

// SignalingSettings selects and configures the signaling transport.
type SignalingSettings struct {
	// Provider is "nats", "relay" or "inproc". Defaults to "inproc".
	Provider string `json:"provider,omitempty"`

	NATSURL  string `json:"nats_url,omitempty"`
	RelayURL string `json:"relay_url,omitempty"`
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Language    string `json:"language,omitempty"`
	// PeerID is the linked companion or monitor account.
	PeerID string `json:"peer_id,omitempty"`
	// LogFile, when set, turns on rotating JSON file logging.
	LogFile string `json:"log_file,omitempty"`

	Recognition RecognitionSettings `json:"recognition"`
	Chat        ChatSettings        `json:"chat"`
	Synthesis   SynthesisSettings   `json:"synthesis"`
	Signaling   SignalingSettings   `json:"signaling"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Language: "en",
		Recognition: RecognitionSettings{
			Config: recognition.DefaultConfig(),
		},
		Chat:      ChatSettings{Provider: ChatProviderSSE},
		Signaling: SignalingSettings{Provider: SignalingProviderInProc},
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig, filling
// defaults for omitted fields.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	if cfg.UserID == "" {
		return SettingsConfig{}, fmt.Errorf("settings: user_id is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	cfg.Recognition.Language = cfg.Language
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}
