package signaling

import (
	"context"
	"strings"
	"sync"
	"time"

	"carelink/core"
	"carelink/protocol"
	"carelink/store"
)

// defaultAlertKeywords trigger the emergency confirmation prompt when they
// appear in recognized speech.
var defaultAlertKeywords = []string{
	"help", "pain", "fall", "scared", "emergency", "chest", "dizzy",
}

// KeywordDetector scans recognized speech for alert keywords.
type KeywordDetector struct {
	keywords []string
}

func NewKeywordDetector(keywords []string) *KeywordDetector {
	if len(keywords) == 0 {
		keywords = defaultAlertKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &KeywordDetector{keywords: lowered}
}

// Scan returns the first matched keyword, or "" when the text is clean.
// Matching is case-insensitive substring search.
func (d *KeywordDetector) Scan(text string) string {
	lowered := strings.ToLower(text)
	for _, kw := range d.keywords {
		if strings.Contains(lowered, kw) {
			return kw
		}
	}
	return ""
}

// PendingAlert is a detected keyword awaiting the user's confirmation.
// Detection alone never notifies anyone.
type PendingAlert struct {
	Keyword string
	Text    string
}

// Alerter raises emergencies from the companion side. A keyword match only
// arms a pending alert; Confirm sends it, Dismiss discards it.
type Alerter struct {
	channel  *Channel
	peerID   string
	detector *KeywordDetector
	events   store.HealthEventStore
	logger   *core.Logger

	// OnPrompt is invoked when a keyword arms a pending alert.
	OnPrompt func(PendingAlert)

	mu      sync.Mutex
	pending *PendingAlert
}

func NewAlerter(channel *Channel, peerID string, detector *KeywordDetector, events store.HealthEventStore, logger *core.Logger) *Alerter {
	return &Alerter{
		channel:  channel,
		peerID:   peerID,
		detector: detector,
		events:   events,
		logger:   logger,
	}
}

// CheckSpeech scans recognized text. On a match it arms a pending alert and
// fires OnPrompt; the alert stays pending until Confirm or Dismiss.
func (a *Alerter) CheckSpeech(text string) bool {
	keyword := a.detector.Scan(text)
	if keyword == "" {
		return false
	}

	alert := PendingAlert{Keyword: keyword, Text: text}
	a.mu.Lock()
	a.pending = &alert
	a.mu.Unlock()

	a.logger.Info("alert keyword detected, awaiting confirmation", "keyword", keyword)
	if a.OnPrompt != nil {
		a.OnPrompt(alert)
	}
	return true
}

// Pending returns the armed alert, if any.
func (a *Alerter) Pending() *PendingAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Confirm publishes the pending alert to the caregiver and records it in the
// health log. Returns false when nothing is pending.
func (a *Alerter) Confirm(ctx context.Context) (bool, error) {
	a.mu.Lock()
	alert := a.pending
	a.pending = nil
	a.mu.Unlock()
	if alert == nil {
		return false, nil
	}

	now := time.Now()
	payload := protocol.EmergencyPayload{
		UserID:     a.channel.UserID(),
		Note:       alert.Text,
		Keyword:    alert.Keyword,
		OccurredAt: now,
	}
	if err := a.channel.SendTo(a.peerID, protocol.MsgEmergency, payload); err != nil {
		return true, err
	}

	err := a.events.Insert(ctx, store.HealthEvent{
		UserID:     a.channel.UserID(),
		Kind:       store.HealthEventEmergency,
		Note:       alert.Text,
		OccurredAt: now,
	})
	if err != nil {
		// The caregiver was notified; a missing log entry is recoverable.
		a.logger.Error("failed to record emergency event", "error", err)
	}
	return true, nil
}

// Dismiss discards the pending alert without notifying anyone.
func (a *Alerter) Dismiss() {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
}

// EmergencyState is the caregiver-side view of an active alert. It is set by
// an incoming emergency signal and cleared only by Resolve, which records the
// resolution in the health log.
type EmergencyState struct {
	events store.HealthEventStore
	logger *core.Logger

	// OnRaise is invoked for every incoming alert, after it becomes active.
	OnRaise func(protocol.EmergencyPayload)

	mu     sync.Mutex
	active *protocol.EmergencyPayload
}

func NewEmergencyState(events store.HealthEventStore, logger *core.Logger) *EmergencyState {
	return &EmergencyState{events: events, logger: logger}
}

// Raise records an incoming alert as active. Later alerts replace earlier
// ones; the health log keeps the full history.
func (s *EmergencyState) Raise(payload protocol.EmergencyPayload) {
	s.mu.Lock()
	s.active = &payload
	s.mu.Unlock()
	s.logger.Info("emergency alert active", "from", payload.UserID, "keyword", payload.Keyword)
	if s.OnRaise != nil {
		s.OnRaise(payload)
	}
}

// Active returns the unresolved alert, if any.
func (s *EmergencyState) Active() *protocol.EmergencyPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Resolve clears the active alert and appends a resolution event to the
// health log. This is the only way the alert state clears.
func (s *EmergencyState) Resolve(ctx context.Context, note string) error {
	s.mu.Lock()
	active := s.active
	s.active = nil
	s.mu.Unlock()
	if active == nil {
		return nil
	}

	return s.events.Insert(ctx, store.HealthEvent{
		UserID:     active.UserID,
		Kind:       store.HealthEventResolved,
		Note:       note,
		OccurredAt: time.Now(),
	})
}
