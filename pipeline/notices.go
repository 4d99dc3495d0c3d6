package pipeline

import (
	"errors"

	"carelink/core"
)

type noticeSet struct {
	permission string
	empty      string
	transport  string
}

var noticesByLanguage = map[string]noticeSet{
	"en": {
		permission: "I need microphone access to hear you. Please enable it in settings.",
		empty:      "I didn't catch that. Could you try again?",
		transport:  "I'm having trouble connecting right now. Let's try again in a moment.",
	},
	"es": {
		permission: "Necesito acceso al micrófono para escucharte. Actívalo en la configuración.",
		empty:      "No te escuché bien. ¿Puedes intentarlo de nuevo?",
		transport:  "Tengo problemas de conexión en este momento. Intentemos de nuevo en un momento.",
	},
}

// NoticeFor maps a recognition failure onto the user-facing message for the
// language, falling back to English.
func NoticeFor(err error, language string) string {
	set, ok := noticesByLanguage[language]
	if !ok {
		set = noticesByLanguage["en"]
	}
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		return set.permission
	case errors.Is(err, core.ErrEmptyResult):
		return set.empty
	default:
		return set.transport
	}
}
