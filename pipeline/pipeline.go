// Package pipeline wires the voice interaction loop: press to talk, recognize,
// exchange with the assistant, speak the reply. It owns the VoiceSession and
// enforces the one-interaction-at-a-time rule across its collaborators.
package pipeline

import (
	"context"
	"sync"

	"carelink/conversation"
	"carelink/core"
	"carelink/recognition"
	"carelink/signaling"
	"carelink/synthesis"
)

// UICallbacks surface pipeline progress to the embedding UI. All fields are
// optional.
type UICallbacks struct {
	OnPhase         func(core.VoicePhase)
	OnPartial       func(text string)
	OnFinal         func(text string)
	OnResponseDelta func(delta string)
	OnNotice        func(message string)
}

// Config holds pipeline identity and language.
type Config struct {
	UserID   string `json:"user_id"`
	Language string `json:"language"`
}

// Pipeline runs voice interactions for one user.
type Pipeline struct {
	config   Config
	exchange *conversation.Exchange
	speaker  *synthesis.Speaker
	alerter  *signaling.Alerter // nil when no caregiver is linked
	logger   *core.Logger
	ui       UICallbacks

	session      *core.VoiceSession
	orchestrator *recognition.Orchestrator

	mu      sync.Mutex
	history *core.History
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a pipeline. orchestratorFor receives the recognition callbacks
// the pipeline needs wired in; factories supply the construction.
func New(
	config Config,
	orchestratorFor func(recognition.Callbacks) *recognition.Orchestrator,
	exchange *conversation.Exchange,
	speaker *synthesis.Speaker,
	alerter *signaling.Alerter,
	logger *core.Logger,
) *Pipeline {
	if config.Language == "" {
		config.Language = "en"
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		config:   config,
		exchange: exchange,
		speaker:  speaker,
		alerter:  alerter,
		logger:   logger,
		session:  core.NewVoiceSession(),
		history:  core.NewHistory(),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.orchestrator = orchestratorFor(recognition.Callbacks{
		OnPartial:  p.handlePartial,
		OnThinking: p.handleFinal,
		OnNotice:   p.handleNotice,
		OnIdle:     p.handleIdle,
	})
	return p
}

// SetUICallbacks installs the UI surface. Call before the first interaction.
func (p *Pipeline) SetUICallbacks(ui UICallbacks) { p.ui = ui }

// Session exposes the phase state for the UI.
func (p *Pipeline) Session() *core.VoiceSession { return p.session }

// History returns the rolling turn list.
func (p *Pipeline) History() *core.History {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history
}

// Greet speaks the opening line and records it as a greeting turn, which
// keeps it out of every upstream request.
func (p *Pipeline) Greet(text string) {
	p.mu.Lock()
	p.history.AppendGreeting(text)
	p.mu.Unlock()

	if err := p.session.Enter(core.PhaseSpeaking, core.ReleaserFunc(p.speaker.Stop)); err != nil {
		p.logger.Warn("greeting skipped, session busy")
		return
	}
	p.notifyPhase(core.PhaseSpeaking)
	p.speakThen(text, p.toIdle)
}

// StartListening begins a press-to-talk interaction. Returns ErrPhaseBusy
// while a previous interaction is still in flight.
func (p *Pipeline) StartListening() error {
	if err := p.session.Enter(core.PhaseListening, core.ReleaserFunc(p.orchestrator.Cancel)); err != nil {
		return err
	}
	p.notifyPhase(core.PhaseListening)
	if err := p.orchestrator.StartListening(p.ctx); err != nil {
		p.session.ToIdle()
		p.notifyPhase(core.PhaseIdle)
		return err
	}
	return nil
}

// StopListening releases the push-to-talk button.
func (p *Pipeline) StopListening() {
	p.orchestrator.StopListening()
}

// CancelInteraction aborts whatever is in flight and returns to Idle.
func (p *Pipeline) CancelInteraction() {
	p.orchestrator.Cancel()
	p.speaker.Stop()
	p.toIdle()
}

// Close tears the pipeline down. Idempotent.
func (p *Pipeline) Close() {
	p.cancel()
	p.speaker.Stop()
	p.session.Close()
}

func (p *Pipeline) handlePartial(text string) {
	p.session.PartialText = text
	if p.ui.OnPartial != nil {
		p.ui.OnPartial(text)
	}
}

// handleFinal runs when recognition lands a final transcript: scan it for
// alert keywords, then run the exchange and speak the reply.
func (p *Pipeline) handleFinal(finalText string) {
	p.session.FinalText = finalText
	if p.ui.OnFinal != nil {
		p.ui.OnFinal(finalText)
	}

	if p.alerter != nil {
		// Arms a confirmation prompt only; the conversation continues.
		p.alerter.CheckSpeech(finalText)
	}

	if err := p.session.Enter(core.PhaseThinking, nil); err != nil {
		p.logger.Warn("dropping final transcript, session moved on", "error", err)
		p.orchestrator.Reset()
		return
	}
	p.notifyPhase(core.PhaseThinking)
	p.orchestrator.Reset()

	go p.runExchange(finalText)
}

func (p *Pipeline) runExchange(finalText string) {
	sequence := p.session.Sequence()

	p.mu.Lock()
	history := p.history
	p.mu.Unlock()

	deltas, results := p.exchange.Send(p.ctx, p.config.UserID, finalText, history)

	go func() {
		for delta := range deltas {
			if p.ui.OnResponseDelta != nil {
				p.ui.OnResponseDelta(delta)
			}
		}
	}()

	res := <-results
	if p.session.Sequence() != sequence {
		// A newer interaction took over while the model was responding.
		return
	}
	p.session.ResponseText = res.Text

	if err := p.session.Enter(core.PhaseSpeaking, core.ReleaserFunc(p.speaker.Stop)); err != nil {
		p.logger.Warn("dropping response playback, session moved on", "error", err)
		return
	}
	p.notifyPhase(core.PhaseSpeaking)
	p.speakThen(res.Text, p.toIdle)
}

// speakThen plays text and invokes then after playback ends, unless the
// playback was superseded by a newer interaction.
func (p *Pipeline) speakThen(text string, then func()) {
	sequence := p.session.Sequence()
	playback := p.speaker.Speak(p.ctx, text)
	go func() {
		<-playback.Done()
		if err := playback.Err(); err != nil && p.ctx.Err() == nil {
			p.logger.Error("playback failed", "error", err)
		}
		if p.session.Sequence() == sequence {
			then()
		}
	}()
}

func (p *Pipeline) handleNotice(cause error) {
	message := NoticeFor(cause, p.config.Language)
	p.logger.Info("recognition notice", "message", message, "error", cause)
	if p.ui.OnNotice != nil {
		p.ui.OnNotice(message)
	}
}

func (p *Pipeline) handleIdle() {
	p.toIdle()
}

func (p *Pipeline) toIdle() {
	p.session.ToIdle()
	p.notifyPhase(core.PhaseIdle)
}

func (p *Pipeline) notifyPhase(phase core.VoicePhase) {
	if p.ui.OnPhase != nil {
		p.ui.OnPhase(phase)
	}
}
