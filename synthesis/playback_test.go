package synthesis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/core"
	"carelink/utils/audio"
)

type memorySink struct {
	mu          sync.Mutex
	writes      [][]byte
	resets      int
	progressive bool
}

func (s *memorySink) WritePCM(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.writes = append(s.writes, buf)
	return nil
}

func (s *memorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.writes = nil
}

func (s *memorySink) SupportsProgressive() bool { return s.progressive }

func (s *memorySink) totalBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.writes {
		n += len(w)
	}
	return n
}

func (s *memorySink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type blockingSynth struct {
	mu     sync.Mutex
	spoken []string
}

func (b *blockingSynth) Speak(ctx context.Context, text string, params VoiceParams, sink Sink) error {
	b.mu.Lock()
	b.spoken = append(b.spoken, text)
	b.mu.Unlock()
	return sink.WritePCM(make([]byte, 640))
}

func (b *blockingSynth) Cancel() {}

func (b *blockingSynth) spokenTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.spoken...)
}

func voiceServer(pcm []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(pcm)
	}))
}

func newTestSpeaker(serverURL string, local LocalSynthesizer, sink Sink) *Speaker {
	var client *SynthesisClient
	if serverURL != "" {
		client = NewSynthesisClient(SynthesisClientConfig{Endpoint: serverURL}, core.NewDevelopmentLogger())
	}
	return NewSpeaker(client, local, sink, SpeakerConfig{Language: "en"}, core.NewDevelopmentLogger())
}

func TestSpeakerPlaysRemoteAudio(t *testing.T) {
	pcm := make([]byte, 12000)
	server := voiceServer(pcm)
	defer server.Close()

	sink := &memorySink{progressive: true}
	speaker := newTestSpeaker(server.URL, nil, sink)

	playback := speaker.Speak(context.Background(), "hello there")
	<-playback.Done()

	require.NoError(t, playback.Err())
	require.Equal(t, len(pcm), sink.totalBytes())
}

func TestSpeakerBuffersForNonProgressiveSink(t *testing.T) {
	pcm := make([]byte, 12000)
	server := voiceServer(pcm)
	defer server.Close()

	sink := &memorySink{progressive: false}
	speaker := newTestSpeaker(server.URL, nil, sink)

	playback := speaker.Speak(context.Background(), "hello there")
	<-playback.Done()

	require.NoError(t, playback.Err())
	// Everything arrives in a single write once the stream completed.
	require.Equal(t, 1, sink.writeCount())
	require.Equal(t, len(pcm), sink.totalBytes())
}

func TestSpeakerFallsBackToLocalVoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	sink := &memorySink{progressive: true}
	local := &blockingSynth{}
	speaker := newTestSpeaker(server.URL, local, sink)

	playback := speaker.Speak(context.Background(), "hello there")
	<-playback.Done()

	require.NoError(t, playback.Err())
	require.Equal(t, []string{"hello there"}, local.spokenTexts())
	require.NotZero(t, sink.totalBytes())
}

func TestSpeakerWithoutRemoteUsesLocal(t *testing.T) {
	sink := &memorySink{}
	local := &blockingSynth{}
	speaker := newTestSpeaker("", local, sink)

	playback := speaker.Speak(context.Background(), "hi")
	<-playback.Done()

	require.NoError(t, playback.Err())
	require.Equal(t, []string{"hi"}, local.spokenTexts())
}

func TestSpeakerCancelsPreviousPlayback(t *testing.T) {
	// Slow server: the first playback is still streaming when the second
	// starts.
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(make([]byte, 4096))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	sink := &memorySink{progressive: true}
	local := &blockingSynth{}
	speaker := newTestSpeaker(server.URL, local, sink)

	first := speaker.Speak(context.Background(), "first")
	require.Eventually(t, func() bool { return sink.totalBytes() > 0 }, time.Second, 5*time.Millisecond)

	second := speaker.Speak(context.Background(), "second")
	<-first.Done()
	require.Error(t, first.Err())

	speaker.Stop()
	<-second.Done()
}

func TestSpeakerStopIsIdempotent(t *testing.T) {
	sink := &memorySink{}
	speaker := newTestSpeaker("", &blockingSynth{}, sink)

	playback := speaker.Speak(context.Background(), "hi")
	<-playback.Done()
	speaker.Stop()
	speaker.Stop()
}

func TestCueSynthesizerWritesAudio(t *testing.T) {
	sink := &memorySink{}
	cue := NewCueSynthesizer(16000)

	err := cue.Speak(context.Background(), "hello world", DefaultVoiceParams("en"), sink)
	require.NoError(t, err)
	require.NotZero(t, sink.totalBytes())
}

func TestGenerateAlertPatternNotEmpty(t *testing.T) {
	pattern := audio.GenerateAlertPattern(16000)
	require.NotEmpty(t, pattern)
}
