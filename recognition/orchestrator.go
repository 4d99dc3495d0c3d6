package recognition

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"carelink/capture"
	"carelink/core"
	"carelink/utils/audio"
)

// State is the orchestrator's listening state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	default:
		return "unknown"
	}
}

// event is the explicit transition trigger enum. Every external callback
// (recognizer result, recognizer error, user stop, timer) maps to exactly
// one event.
type event int

const (
	eventInterim event = iota
	eventFinal
	eventRecognizerError
	eventStop
	eventCancel
	eventFinalizeTimeout
)

type attemptEvent struct {
	kind event
	text string
	err  error
}

// Callbacks receive orchestrator transitions. All callbacks are invoked from
// the orchestrator's run goroutine, never concurrently.
type Callbacks struct {
	// OnPartial delivers interim text while listening.
	OnPartial func(text string)
	// OnThinking fires on the Listening -> Thinking transition with the
	// final recognized text.
	OnThinking func(finalText string)
	// OnNotice delivers a user-facing failure (match with errors.Is against
	// the core taxonomy for the localized message). OnIdle follows after the
	// configured delay.
	OnNotice func(err error)
	// OnIdle fires whenever the orchestrator returns to Idle.
	OnIdle func()
}

// Config holds orchestrator tuning.
type Config struct {
	Language string `json:"language"`

	// EmptyResultDelay is how long the "didn't hear anything" style notices
	// stay up before the automatic return to Idle.
	EmptyResultDelay time.Duration `json:"empty_result_delay"`
	// PermissionDelay is the return-to-Idle delay after a denied microphone.
	PermissionDelay time.Duration `json:"permission_delay"`
	// FinalizeTimeout bounds the wait for a final result after a manual stop
	// of the streaming recognizer.
	FinalizeTimeout time.Duration `json:"finalize_timeout"`
}

// DefaultConfig returns the standard orchestrator delays.
func DefaultConfig() Config {
	return Config{
		Language:         "en",
		EmptyResultDelay: 2500 * time.Millisecond,
		PermissionDelay:  2 * time.Second,
		FinalizeTimeout:  3 * time.Second,
	}
}

// Orchestrator drives one listening session at a time through
// Idle -> Listening -> {Thinking | Idle}. The recognition capability is
// selected once at start: the streaming recognizer when one is configured,
// otherwise the capture pipeline. A streaming failure mid-session falls back
// to the capture pipeline; a permission failure never does, because the
// fallback needs the same microphone.
type Orchestrator struct {
	device      capture.MicDevice
	recognizer  StreamingRecognizer // nil when the capability is absent
	recorder    *capture.Recorder
	transcriber *TranscriptionClient
	config      Config
	callbacks   Callbacks
	logger      *core.Logger

	mu      sync.Mutex
	state   State
	attempt *attempt
}

// attempt owns the resources of one listening session: the open microphone
// stream, the active recognizer session or capture handle, and the pending
// idle timer. Disposing the attempt disposes everything it owns.
type attempt struct {
	ctx        context.Context
	cancel     context.CancelFunc
	capability core.RecognitionCapability

	events chan attemptEvent

	mic     capture.MicStream
	cap     *capture.Capture
	useRec  bool
	stopped bool
}

func NewOrchestrator(
	device capture.MicDevice,
	recognizer StreamingRecognizer,
	recorder *capture.Recorder,
	transcriber *TranscriptionClient,
	config Config,
	callbacks Callbacks,
	logger *core.Logger,
) *Orchestrator {
	def := DefaultConfig()
	if config.EmptyResultDelay == 0 {
		config.EmptyResultDelay = def.EmptyResultDelay
	}
	if config.PermissionDelay == 0 {
		config.PermissionDelay = def.PermissionDelay
	}
	if config.FinalizeTimeout == 0 {
		config.FinalizeTimeout = def.FinalizeTimeout
	}
	if config.Language == "" {
		config.Language = def.Language
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Orchestrator{
		device:      device,
		recognizer:  recognizer,
		recorder:    recorder,
		transcriber: transcriber,
		config:      config,
		callbacks:   callbacks,
		logger:      logger,
	}
}

// State returns the current listening state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Capability reports which recognition path the active attempt selected.
// Zero when idle.
func (o *Orchestrator) Capability() core.RecognitionCapability {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		return 0
	}
	return o.attempt.capability
}

// StartListening begins a listening session. Returns an error when one is
// already in flight.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return core.ErrPhaseBusy
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	a := &attempt{
		ctx:    attemptCtx,
		cancel: cancel,
		events: make(chan attemptEvent, 16),
	}
	o.state = StateListening
	o.attempt = a
	o.mu.Unlock()

	if o.recognizer != nil {
		a.capability = core.CapabilityStreamingRecognizer
	} else {
		a.capability = core.CapabilityCapturePipeline
	}
	o.logger.Debug("orchestrator: listening", "capability", a.capability.String())

	go o.run(a)
	return nil
}

// StopListening is the user's manual stop. For the streaming recognizer it
// flushes a final result; for the capture pipeline it finalizes the clip and
// sends it for transcription. No-op when idle.
func (o *Orchestrator) StopListening() {
	o.post(attemptEvent{kind: eventStop})
}

// Cancel aborts the session without producing a result. Idempotent; safe to
// call in any state.
func (o *Orchestrator) Cancel() {
	o.post(attemptEvent{kind: eventCancel})
}

// Reset returns the orchestrator to Idle after the caller has consumed a
// Thinking result. No-op in other states.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateThinking {
		o.state = StateIdle
		o.attempt = nil
	}
}

func (o *Orchestrator) post(ev attemptEvent) {
	o.mu.Lock()
	a := o.attempt
	o.mu.Unlock()
	if a == nil {
		return
	}
	select {
	case a.events <- ev:
	case <-a.ctx.Done():
	}
}

// run is the session's single goroutine: it sets up the selected capability,
// then consumes events until a terminal transition.
func (o *Orchestrator) run(a *attempt) {
	if a.capability == core.CapabilityStreamingRecognizer {
		if err := o.startStreaming(a); err != nil {
			if errors.Is(err, core.ErrPermissionDenied) {
				// Further attempts would fail identically; no fallback.
				o.finishWithNotice(a, err, o.config.PermissionDelay)
				return
			}
			o.logger.Warn("orchestrator: streaming start failed, falling back",
				"error", err)
			o.runCaptureFallback(a)
			return
		}
	} else {
		if !o.startCapture(a) {
			return
		}
	}

	o.loop(a)
}

// loop consumes attempt events. Each case is one named transition.
func (o *Orchestrator) loop(a *attempt) {
	for {
		select {
		case ev := <-a.events:
			switch ev.kind {
			case eventInterim:
				if o.callbacks.OnPartial != nil {
					o.callbacks.OnPartial(ev.text)
				}
			case eventFinal:
				o.transitionFinal(a, ev.text)
				return
			case eventRecognizerError:
				if a.useRec && !a.stopped {
					o.logger.Warn("orchestrator: recognizer failed, falling back",
						"error", ev.err)
					o.releaseStreaming(a)
					o.runCaptureFallback(a)
					return
				}
				// After a manual stop a fresh capture cannot recover speech
				// that was already spoken; surface the failure instead.
				o.finishWithNotice(a, ev.err, o.config.EmptyResultDelay)
				return
			case eventStop:
				if o.transitionStop(a) {
					return
				}
			case eventFinalizeTimeout:
				o.transitionFinal(a, "")
				return
			case eventCancel:
				o.release(a)
				o.toIdle(a)
				return
			}
		case <-a.ctx.Done():
			o.release(a)
			o.toIdle(a)
			return
		}
	}
}

// startStreaming opens the microphone and the recognizer session, and pumps
// quantized frames into it.
func (o *Orchestrator) startStreaming(a *attempt) error {
	mic, err := o.device.Open(a.ctx)
	if err != nil {
		return err
	}
	a.mic = mic
	a.useRec = true

	finalCh := make(chan string, 4)
	interimCh := make(chan string, 16)
	errCh := make(chan error, 4)

	if err := o.recognizer.StartSession(finalCh, interimCh, errCh); err != nil {
		mic.Close()
		a.mic = nil
		a.useRec = false
		return err
	}

	// Relay recognizer callbacks onto the event loop: one channel, one event.
	go func() {
		for {
			select {
			case text := <-interimCh:
				o.post(attemptEvent{kind: eventInterim, text: text})
			case text := <-finalCh:
				o.post(attemptEvent{kind: eventFinal, text: text})
			case err := <-errCh:
				o.post(attemptEvent{kind: eventRecognizerError, err: err})
			case <-a.ctx.Done():
				return
			}
		}
	}()

	// Pump microphone frames into the recognizer.
	go func() {
		deviceRate := mic.SampleRate()
		for {
			select {
			case frames, ok := <-mic.Frames():
				if !ok {
					return
				}
				resampled, err := audio.ResampleFloat32Mono(frames, deviceRate, capture.TargetSampleRate)
				if err != nil {
					continue
				}
				if err := o.recognizer.SendAudio(audio.Float32ToPCM16Bytes(resampled)); err != nil {
					o.post(attemptEvent{kind: eventRecognizerError, err: err})
					return
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()

	return nil
}

// startCapture begins a recorder capture. Returns false when the attempt
// already terminated (permission denied or recorder failure).
func (o *Orchestrator) startCapture(a *attempt) bool {
	handle, err := o.recorder.Start(a.ctx)
	if err != nil {
		if errors.Is(err, core.ErrPermissionDenied) {
			o.finishWithNotice(a, err, o.config.PermissionDelay)
		} else {
			o.finishWithNotice(a, core.TransportError("recorder", err), o.config.EmptyResultDelay)
		}
		return false
	}
	a.cap = handle
	a.useRec = false

	// The recorder has its own ceiling; mirror it here so the event loop
	// observes the auto-stop as a regular stop transition.
	go func() {
		select {
		case <-time.After(o.recorder.Config().MaxDuration):
			o.post(attemptEvent{kind: eventStop})
		case <-a.ctx.Done():
		}
	}()
	return true
}

// runCaptureFallback switches an attempt from the failed streaming capability
// to the capture pipeline and keeps consuming events.
func (o *Orchestrator) runCaptureFallback(a *attempt) {
	a.capability = core.CapabilityCapturePipeline
	if !o.startCapture(a) {
		return
	}
	o.loop(a)
}

// transitionStop handles the manual (or ceiling) stop. Returns true when the
// attempt reached a terminal state.
func (o *Orchestrator) transitionStop(a *attempt) bool {
	if a.stopped {
		return false // idempotent
	}
	a.stopped = true

	if a.useRec {
		// Ask for a flush, then bound the wait for the final result.
		if err := o.recognizer.Finalize(); err != nil {
			o.post(attemptEvent{kind: eventRecognizerError, err: err})
			return false
		}
		go func() {
			select {
			case <-time.After(o.config.FinalizeTimeout):
				o.post(attemptEvent{kind: eventFinalizeTimeout})
			case <-a.ctx.Done():
			}
		}()
		return false
	}

	// Capture pipeline: finalize the clip and transcribe it.
	clip, err := a.cap.Stop()
	if err != nil {
		o.finishWithNotice(a, err, o.config.EmptyResultDelay)
		return true
	}
	transcript, err := o.transcriber.Transcribe(a.ctx, clip, o.config.Language)
	if err != nil {
		o.finishWithNotice(a, err, o.config.EmptyResultDelay)
		return true
	}
	o.transitionFinal(a, transcript)
	return true
}

// transitionFinal moves Listening -> Thinking when text is non-empty, else
// notices an empty result and returns to Idle.
func (o *Orchestrator) transitionFinal(a *attempt, text string) {
	o.release(a)

	text = strings.TrimSpace(text)
	if text == "" {
		o.finishWithNotice(a, core.EmptyResultError("no speech detected"), o.config.EmptyResultDelay)
		return
	}

	o.mu.Lock()
	if o.attempt != a {
		o.mu.Unlock()
		return // superseded
	}
	o.state = StateThinking
	o.mu.Unlock()

	if o.callbacks.OnThinking != nil {
		o.callbacks.OnThinking(text)
	}
}

// finishWithNotice releases the attempt, surfaces the failure, and schedules
// the automatic return to Idle.
func (o *Orchestrator) finishWithNotice(a *attempt, cause error, delay time.Duration) {
	o.release(a)

	if o.callbacks.OnNotice != nil {
		o.callbacks.OnNotice(cause)
	}

	go func() {
		select {
		case <-time.After(delay):
		case <-a.ctx.Done():
		}
		o.toIdle(a)
	}()
}

// release tears down everything the attempt owns. Idempotent: closing a
// closed recognizer, recorder, or microphone stream is a no-op.
func (o *Orchestrator) release(a *attempt) {
	if a.useRec {
		o.releaseStreaming(a)
	}
	if a.cap != nil {
		a.cap.Cancel()
	}
}

func (o *Orchestrator) releaseStreaming(a *attempt) {
	if o.recognizer != nil {
		o.recognizer.Close()
	}
	if a.mic != nil {
		a.mic.Close()
	}
	a.useRec = false
}

// toIdle completes the attempt. Stale attempts (superseded by a newer start)
// never flip the state back.
func (o *Orchestrator) toIdle(a *attempt) {
	o.mu.Lock()
	if o.attempt != a {
		o.mu.Unlock()
		return
	}
	o.state = StateIdle
	o.attempt = nil
	o.mu.Unlock()

	a.cancel()

	if o.callbacks.OnIdle != nil {
		o.callbacks.OnIdle()
	}
}
