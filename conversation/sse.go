package conversation

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"carelink/core"

	"github.com/bytedance/sonic"
)

// Message is one chat message prepared for the upstream endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatProvider streams a completion for a prepared message list. Deltas are
// sent on outChan as they arrive, unbatched; the provider returns once the
// stream terminates. outChan is not closed by the provider.
type ChatProvider interface {
	StreamCompletion(ctx context.Context, userID string, messages []Message, outChan chan<- string) error
}

// sseDoneSentinel terminates the event stream.
const sseDoneSentinel = "[DONE]"

// SSEProviderConfig holds configuration for the raw SSE chat provider.
type SSEProviderConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

// SSEProvider talks to the chat endpoint's server-sent-event contract:
// POST {messages, userId, system} answered by a text/event-stream of
// data: {"text": "..."} lines terminated by data: [DONE].
type SSEProvider struct {
	httpClient *http.Client
	config     SSEProviderConfig
	logger     *core.Logger
}

type sseRequest struct {
	Messages []Message `json:"messages"`
	UserID   string    `json:"userId"`
	System   string    `json:"system,omitempty"`
}

type sseDelta struct {
	Text string `json:"text"`
}

func NewSSEProvider(config SSEProviderConfig, logger *core.Logger) *SSEProvider {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &SSEProvider{
		// No overall timeout: the stream is long-lived and bounded by ctx.
		httpClient: &http.Client{},
		config:     config,
		logger:     logger,
	}
}

// StreamCompletion issues the request and relays each text delta immediately.
func (p *SSEProvider) StreamCompletion(
	ctx context.Context,
	userID string,
	messages []Message,
	outChan chan<- string,
) error {
	var system string
	upstream := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		upstream = append(upstream, m)
	}

	payload, err := sonic.Marshal(sseRequest{
		Messages: upstream,
		UserID:   userID,
		System:   system,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return core.TransportError("chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return core.StatusError("chat", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == sseDoneSentinel {
			return nil
		}

		var delta sseDelta
		if err := sonic.Unmarshal([]byte(data), &delta); err != nil {
			p.logger.Debug("chat: skipping unparsable SSE line", "error", err)
			continue
		}
		if delta.Text == "" {
			continue
		}

		select {
		case outChan <- delta.Text:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return core.TransportError("chat stream", err)
	}
	// Stream ended without the sentinel; treat what we have as complete.
	return nil
}
