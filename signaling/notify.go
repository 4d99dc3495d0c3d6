package signaling

import (
	"fmt"

	"carelink/core"
	"carelink/protocol"
	"carelink/utils/audio"
)

// AlertNotifier routes an incoming emergency to the caregiver's attention.
// While the app is foregrounded it plays the audible alert pattern; when
// backgrounded it posts a system notification, but only if the notification
// capability was granted.
type AlertNotifier struct {
	// Backgrounded reports whether the app is currently in the background.
	// Nil means always foregrounded.
	Backgrounded func() bool

	// NotificationsGranted reflects the platform notification permission.
	NotificationsGranted bool

	// PlaySound receives the alert pattern as 16-bit mono PCM.
	PlaySound func(pcm []byte)

	// Deliver posts a system notification.
	Deliver func(title, body string)

	SampleRate int
	logger     *core.Logger
}

func NewAlertNotifier(sampleRate int, logger *core.Logger) *AlertNotifier {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &AlertNotifier{SampleRate: sampleRate, logger: logger}
}

// Notify handles one incoming alert. Intended as the EmergencyState OnRaise
// hook.
func (n *AlertNotifier) Notify(payload protocol.EmergencyPayload) {
	if n.Backgrounded != nil && n.Backgrounded() {
		if !n.NotificationsGranted {
			n.logger.Warn("emergency received while backgrounded, notifications not granted",
				"from", payload.UserID)
			return
		}
		if n.Deliver != nil {
			n.Deliver("Emergency alert", fmt.Sprintf("%s needs attention: %s", payload.UserID, payload.Note))
		}
		return
	}
	if n.PlaySound != nil {
		n.PlaySound(audio.GenerateAlertPattern(n.SampleRate))
	}
}
