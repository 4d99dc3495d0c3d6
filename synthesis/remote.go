package synthesis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"carelink/core"
	"carelink/utils/audio"
)

const synthChunkSize = 4096

// SynthesisClientConfig holds the remote voice endpoint settings.
type SynthesisClientConfig struct {
	Endpoint string
	APIKey   string
}

// SynthesisClient requests synthesized speech from the remote voice service
// and streams decoded PCM back to the caller.
type SynthesisClient struct {
	config     SynthesisClientConfig
	httpClient *http.Client
	logger     *core.Logger
}

func NewSynthesisClient(config SynthesisClientConfig, logger *core.Logger) *SynthesisClient {
	return &SynthesisClient{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type synthRequest struct {
	Text     string `json:"text"`
	Language string `json:"lang"`
}

// Stream requests audio for text and returns a channel of decoded PCM chunks
// plus an error channel. Both channels are closed when the stream ends. The
// returned PCM is 16-bit mono regardless of the wire encoding.
func (c *SynthesisClient) Stream(ctx context.Context, text, language string) (<-chan []byte, <-chan error) {
	pcmChan := make(chan []byte, 8)
	errChan := make(chan error, 1)

	go func() {
		defer close(pcmChan)
		defer close(errChan)
		if err := c.stream(ctx, text, language, pcmChan); err != nil {
			errChan <- err
		}
	}()

	return pcmChan, errChan
}

func (c *SynthesisClient) stream(ctx context.Context, text, language string, pcmChan chan<- []byte) error {
	payload, err := sonic.Marshal(synthRequest{Text: text, Language: language})
	if err != nil {
		return fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.TransportError("synthesis request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return core.StatusError("synthesis request", resp.StatusCode)
	}

	decode := decoderFor(resp.Header.Get("Content-Type"), c.logger)

	buf := make([]byte, synthChunkSize)
	headerStripped := false
	total := 0
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if !headerStripped {
				// A WAV response carries the full audio as one stream; only
				// the canonical 44-byte header prefixes the first chunk.
				if len(chunk) >= 44 && bytes.HasPrefix(chunk, []byte("RIFF")) {
					chunk = chunk[44:]
				}
				headerStripped = true
			}
			pcm := decode(chunk)
			if len(pcm) > 0 {
				total += len(pcm)
				out := make([]byte, len(pcm))
				copy(out, pcm)
				select {
				case pcmChan <- out:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return core.TransportError("synthesis stream read", readErr)
		}
	}

	if total == 0 {
		return core.EmptyResultError("synthesis returned no audio")
	}
	return nil
}

// sinkSampleRate is the rate the playback sink expects.
const sinkSampleRate = 16000

// decoderFor maps the response content type to a chunk decoder producing
// 16-bit mono PCM at the sink rate. audio/basic is 8kHz mu-law by
// definition; unknown types are treated as already-linear PCM.
func decoderFor(contentType string, logger *core.Logger) func([]byte) []byte {
	ct := strings.ToLower(contentType)

	var format core.AudioEncodingFormat
	var rate int
	switch {
	case strings.Contains(ct, "audio/basic"), strings.Contains(ct, "ulaw"):
		format, rate = core.ULAW, 8000
	case strings.Contains(ct, "alaw"):
		format, rate = core.ALAW, 8000
	default:
		return func(b []byte) []byte { return b }
	}

	return func(b []byte) []byte {
		chunk, err := audio.ConvertAudioChunk(core.AudioChunk{
			Data:       &b,
			SampleRate: rate,
			Channels:   1,
			Format:     format,
		}, core.PCM, 1, sinkSampleRate)
		if err != nil {
			logger.Warn("dropping undecodable audio chunk", "error", err)
			return nil
		}
		return *chunk.Data
	}
}
