package recognition

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"carelink/core"
)

func testClip() *core.CapturedClip {
	return &core.CapturedClip{
		ID:          "clip-1",
		WAV:         []byte("RIFFfakewavbytes"),
		ByteLength:  12,
		SampleRate:  16000,
		ContentType: "audio/wav",
	}
}

func TestTranscribeSendsClipAndReturnsTranscript(t *testing.T) {
	var got transcribeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript": "how are you"}`))
	}))
	defer server.Close()

	client := NewTranscriptionClient(server.URL, "key")
	text, err := client.Transcribe(context.Background(), testClip(), "en")
	require.NoError(t, err)
	require.Equal(t, "how are you", text)

	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("RIFFfakewavbytes")), got.AudioBase64)
	require.Equal(t, "audio/wav", got.ContentType)
	require.Equal(t, "en", got.LanguageCode)
}

func TestTranscribeMapsStatusToTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewTranscriptionClient(server.URL, "")
	_, err := client.Transcribe(context.Background(), testClip(), "en")
	require.ErrorIs(t, err, core.ErrTransportFailure)
}

func TestTranscribeEmptyTranscriptIsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcript": "  "}`))
	}))
	defer server.Close()

	client := NewTranscriptionClient(server.URL, "")
	_, err := client.Transcribe(context.Background(), testClip(), "en")
	require.ErrorIs(t, err, core.ErrEmptyResult)
}
