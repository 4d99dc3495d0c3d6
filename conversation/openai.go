package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"carelink/core"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProviderConfig holds configuration for the OpenAI-compatible chat
// provider.
type OpenAIProviderConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"` // for OpenAI-compatible gateways
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// OpenAIProvider implements ChatProvider against OpenAI-compatible chat
// completion endpoints, streaming always.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIProviderConfig

	// Streaming management
	activeStreams map[string]*openai.ChatCompletionStream
	streamsMutex  sync.Mutex
	streamSeq     int
}

func NewOpenAIProvider(config OpenAIProviderConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	var client *openai.Client
	if config.BaseURL != "" {
		cc := openai.DefaultConfig(config.APIKey)
		cc.BaseURL = config.BaseURL
		client = openai.NewClientWithConfig(cc)
	} else {
		client = openai.NewClient(config.APIKey)
	}

	return &OpenAIProvider{
		client:        client,
		config:        config,
		activeStreams: make(map[string]*openai.ChatCompletionStream),
	}, nil
}

// StreamCompletion runs a streaming completion, relaying content deltas.
func (p *OpenAIProvider) StreamCompletion(
	ctx context.Context,
	userID string,
	messages []Message,
	outChan chan<- string,
) error {
	req := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    p.convertMessages(messages),
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Stream:      true,
		User:        userID,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return core.TransportError("chat", err)
	}

	streamID := p.registerStream(stream)
	defer func() {
		p.unregisterStream(streamID)
		stream.Close()
	}()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return core.TransportError("chat stream", err)
		}

		if len(response.Choices) == 0 {
			continue
		}
		content := response.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		select {
		case outChan <- content:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CloseAll stops every active stream; used on teardown.
func (p *OpenAIProvider) CloseAll() {
	p.streamsMutex.Lock()
	defer p.streamsMutex.Unlock()
	for id, stream := range p.activeStreams {
		if stream != nil {
			stream.Close()
		}
		delete(p.activeStreams, id)
	}
}

func (p *OpenAIProvider) registerStream(stream *openai.ChatCompletionStream) string {
	p.streamsMutex.Lock()
	defer p.streamsMutex.Unlock()
	p.streamSeq++
	id := fmt.Sprintf("stream-%d", p.streamSeq)
	p.activeStreams[id] = stream
	return id
}

func (p *OpenAIProvider) unregisterStream(id string) {
	p.streamsMutex.Lock()
	defer p.streamsMutex.Unlock()
	delete(p.activeStreams, id)
}

// convertMessages converts prepared messages to OpenAI messages
func (p *OpenAIProvider) convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		switch role {
		case "user", "assistant", "system":
		default:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return out
}
