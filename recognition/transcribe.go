package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"carelink/core"

	"github.com/bytedance/sonic"
)

// TranscriptionClient sends one captured clip to the remote transcription
// endpoint and returns the transcript.
type TranscriptionClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

type transcribeRequest struct {
	AudioBase64  string `json:"audioBase64"`
	ContentType  string `json:"contentType"`
	LanguageCode string `json:"languageCode"`
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

func NewTranscriptionClient(endpoint, apiKey string) *TranscriptionClient {
	return &TranscriptionClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Transcribe posts the clip and returns the transcript. Non-2xx responses
// map to core.ErrTransportFailure, empty transcripts to core.ErrEmptyResult.
func (c *TranscriptionClient) Transcribe(ctx context.Context, clip *core.CapturedClip, languageCode string) (string, error) {
	body := transcribeRequest{
		AudioBase64:  base64.StdEncoding.EncodeToString(clip.WAV),
		ContentType:  clip.ContentType,
		LanguageCode: languageCode,
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.TransportError("transcribe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", core.StatusError("transcribe", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.TransportError("transcribe read", err)
	}

	var tr transcribeResponse
	if err := sonic.Unmarshal(raw, &tr); err != nil {
		return "", core.TransportError("transcribe decode", err)
	}

	transcript := strings.TrimSpace(tr.Transcript)
	if transcript == "" {
		return "", core.EmptyResultError("no transcript")
	}
	return transcript, nil
}
