package synthesis

import (
	"context"
	"sync"

	"carelink/core"
)

// SpeakerConfig controls playback behavior.
type SpeakerConfig struct {
	Language string
}

func DefaultSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{Language: "en"}
}

// Playback tracks a single in-flight utterance. Done is closed when playback
// finishes for any reason; Err reports how it ended.
type Playback struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (p *Playback) Done() <-chan struct{} { return p.done }

func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cancel stops the playback. Idempotent.
func (p *Playback) Cancel() {
	p.cancel()
}

func (p *Playback) finish(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

// Speaker plays synthesized replies. It holds at most one active playback:
// starting a new utterance cancels the previous one and resets the sink
// before any new audio is written.
type Speaker struct {
	client *SynthesisClient
	local  LocalSynthesizer
	sink   Sink
	config SpeakerConfig
	logger *core.Logger

	mu     sync.Mutex
	active *Playback
}

func NewSpeaker(client *SynthesisClient, local LocalSynthesizer, sink Sink, config SpeakerConfig, logger *core.Logger) *Speaker {
	return &Speaker{
		client: client,
		local:  local,
		sink:   sink,
		config: config,
		logger: logger,
	}
}

// Speak starts playing text, preferring the remote voice and falling back to
// the local synthesizer when the remote stream fails before producing audio.
// The returned Playback completes when audio ends or is cancelled.
func (s *Speaker) Speak(ctx context.Context, text string) *Playback {
	ctx, cancel := context.WithCancel(ctx)
	playback := &Playback{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.active != nil {
		s.active.Cancel()
		<-s.active.Done()
	}
	s.active = playback
	s.mu.Unlock()

	s.sink.Reset()

	go func() {
		err := s.play(ctx, text)
		playback.finish(err)
		s.mu.Lock()
		if s.active == playback {
			s.active = nil
		}
		s.mu.Unlock()
	}()

	return playback
}

// Stop cancels the active playback, if any, and waits for it to end.
func (s *Speaker) Stop() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil {
		active.Cancel()
		<-active.Done()
	}
}

func (s *Speaker) play(ctx context.Context, text string) error {
	if s.client != nil {
		played, err := s.playRemote(ctx, text)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if played {
			// Audio already reached the sink. Restarting the utterance
			// locally would repeat what the user heard.
			return err
		}
		s.logger.Warn("remote synthesis failed, using local voice", "error", err)
	}
	if s.local == nil {
		return core.TransportError("synthesis", core.ErrTransportFailure)
	}
	s.local.Cancel()
	return s.local.Speak(ctx, text, DefaultVoiceParams(s.config.Language), s.sink)
}

// playRemote streams remote audio into the sink. The bool reports whether any
// audio was written before the failure.
func (s *Speaker) playRemote(ctx context.Context, text string) (bool, error) {
	pcmChan, errChan := s.client.Stream(ctx, text, s.config.Language)

	progressive := SupportsProgressive(s.sink)
	var buffered []byte
	played := false

	for pcm := range pcmChan {
		if progressive {
			if err := s.sink.WritePCM(pcm); err != nil {
				return played, err
			}
			played = true
		} else {
			buffered = append(buffered, pcm...)
		}
	}

	if err := <-errChan; err != nil {
		return played, err
	}

	if !progressive && len(buffered) > 0 {
		if err := s.sink.WritePCM(buffered); err != nil {
			return true, err
		}
		played = true
	}
	if !played {
		return false, core.EmptyResultError("synthesis returned no audio")
	}
	return true, nil
}
