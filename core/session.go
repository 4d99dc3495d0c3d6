package core

import (
	"errors"
	"sync"
)

// VoicePhase is the lifecycle phase of a voice session.
type VoicePhase int

const (
	PhaseIdle      VoicePhase = iota // No interaction in flight.
	PhaseListening                   // Recognizer or recorder is active.
	PhaseThinking                    // Waiting on the chat stream.
	PhaseSpeaking                    // Playback in progress.
)

func (p VoicePhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseThinking:
		return "thinking"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// ErrPhaseBusy is returned when a phase entry would violate the single-flight
// invariant: at most one of {Listening, Thinking, Speaking} at a time.
var ErrPhaseBusy = errors.New("voice session busy")

// Releaser frees the resources owned by a phase (open recognizer, recorder,
// media stream, audio sink). Implementations must be idempotent.
type Releaser interface {
	Release()
}

// ReleaserFunc adapts a func to the Releaser interface.
type ReleaserFunc func()

func (f ReleaserFunc) Release() { f() }

// VoiceSession carries the state of one voice interaction. It owns the
// resources of the active phase exclusively; entering a new phase releases
// the previous phase's resources first, and Close releases everything.
//
// Exactly one VoiceSession may be active per client at a time; the pipeline
// enforces that, VoiceSession enforces the per-session phase invariant.
type VoiceSession struct {
	mu sync.Mutex

	phase    VoicePhase
	owned    Releaser // resources of the current phase, nil when Idle
	closed   bool
	sequence uint64 // increments on every transition; stale callbacks compare it

	PartialText  string
	FinalText    string
	ResponseText string
}

func NewVoiceSession() *VoiceSession {
	return &VoiceSession{phase: PhaseIdle}
}

// Phase returns the current phase.
func (s *VoiceSession) Phase() VoicePhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Sequence returns the current transition counter. A callback captured before
// a transition can compare its snapshot against this to detect staleness.
func (s *VoiceSession) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Enter moves the session into phase, first releasing whatever the previous
// phase owned. owned may be nil for phases that hold no external resources.
// Entering a non-idle phase while another non-idle phase is active is allowed
// only as a forward transition (Listening -> Thinking -> Speaking); concurrent
// entry into the same or an earlier active phase returns ErrPhaseBusy.
func (s *VoiceSession) Enter(phase VoicePhase, owned Releaser) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("voice session closed")
	}
	if phase != PhaseIdle && s.phase != PhaseIdle && phase <= s.phase {
		s.mu.Unlock()
		return ErrPhaseBusy
	}
	prev := s.owned
	s.phase = phase
	s.owned = owned
	s.sequence++
	s.mu.Unlock()

	// Release outside the lock; releasers may call back into the session.
	if prev != nil {
		prev.Release()
	}
	return nil
}

// ToIdle returns the session to Idle, releasing the active phase's resources.
// Safe to call from any phase, including Idle.
func (s *VoiceSession) ToIdle() {
	_ = s.Enter(PhaseIdle, nil)
}

// Close releases everything and marks the session unusable. Idempotent.
func (s *VoiceSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	prev := s.owned
	s.phase = PhaseIdle
	s.owned = nil
	s.sequence++
	s.mu.Unlock()

	if prev != nil {
		prev.Release()
	}
}
