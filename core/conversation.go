package core

import "time"

// TurnRole identifies the author of a conversation turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is one message in a conversation history.
type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`

	// Greeting marks the synthetic opening turn shown in the UI. It is part
	// of the displayed history but is never sent upstream to the model.
	Greeting bool `json:"greeting,omitempty"`
}

// History is the ordered, append-only turn list for the current user and
// calendar day.
type History struct {
	Turns []Turn
}

func NewHistory() *History {
	return &History{}
}

// Append adds a turn to the history.
func (h *History) Append(role TurnRole, content string) {
	h.Turns = append(h.Turns, Turn{Role: role, Content: content})
}

// AppendGreeting adds the display-only synthetic greeting turn.
func (h *History) AppendGreeting(content string) {
	h.Turns = append(h.Turns, Turn{Role: TurnRoleAssistant, Content: content, Greeting: true})
}

// Upstream returns the turns that may be sent to the chat endpoint: every
// turn except synthetic greetings.
func (h *History) Upstream() []Turn {
	out := make([]Turn, 0, len(h.Turns))
	for _, t := range h.Turns {
		if t.Greeting {
			continue
		}
		out = append(out, t)
	}
	return out
}

// DayKey returns the calendar-day key used to upsert a conversation record,
// in the user's local time.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
