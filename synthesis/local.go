package synthesis

import (
	"context"
	"strings"
	"sync"

	"carelink/utils/audio"
)

// DefaultSpeechRate is the slightly slowed rate used for spoken replies.
const DefaultSpeechRate = 0.95

// VoiceParams configures a locally synthesized utterance.
type VoiceParams struct {
	Language string
	Rate     float64
	Pitch    float64
}

func DefaultVoiceParams(language string) VoiceParams {
	return VoiceParams{
		Language: language,
		Rate:     DefaultSpeechRate,
		Pitch:    1.0,
	}
}

// LocalSynthesizer produces speech without the remote voice service. Speak
// blocks until the utterance has been fully written to the sink or ctx is
// cancelled. Cancel drops any utterance in progress and is idempotent.
type LocalSynthesizer interface {
	Speak(ctx context.Context, text string, params VoiceParams, sink Sink) error
	Cancel()
}

// CueSynthesizer is the built-in fallback voice for hosts without a platform
// speech engine. It plays a short spoken-word-paced tone cue per word so the
// user still hears that a reply arrived.
type CueSynthesizer struct {
	mu     sync.Mutex
	cancel context.CancelFunc

	sampleRate int
}

func NewCueSynthesizer(sampleRate int) *CueSynthesizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &CueSynthesizer{sampleRate: sampleRate}
}

func (s *CueSynthesizer) Speak(ctx context.Context, text string, params VoiceParams, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	rate := params.Rate
	if rate <= 0 {
		rate = DefaultSpeechRate
	}
	// Slower rate stretches each cue.
	toneMs := int(120.0 / rate)
	gapMs := int(60.0 / rate)

	words := strings.Fields(text)
	gap := make([]byte, s.sampleRate*gapMs/1000*2)
	for _, word := range words {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		freq := 440.0 + float64(len(word)%5)*55.0
		tone := audio.GenerateTonePCM(freq, toneMs, s.sampleRate, 0.2)
		if err := sink.WritePCM(tone); err != nil {
			return err
		}
		if err := sink.WritePCM(gap); err != nil {
			return err
		}
	}
	return nil
}

func (s *CueSynthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
