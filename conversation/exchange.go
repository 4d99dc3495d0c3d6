package conversation

import (
	"context"
	"strings"
	"time"

	"carelink/core"
	"carelink/store"
)

// Result is the terminal outcome of one exchange.
type Result struct {
	// Text is the full accumulated assistant response. On transport failure
	// it is the localized apology.
	Text string
	// Apologized is set when Text is the fallback apology rather than model
	// output.
	Apologized bool
	// Err is the underlying failure, if any. The exchange still produced
	// Text; callers must not treat Err as "no response".
	Err error
}

// ExchangeConfig holds configuration for the conversation exchange.
type ExchangeConfig struct {
	Language string `json:"language"`
}

// Exchange sends one user message plus rolling history to the chat provider
// and streams the response. After the stream completes (success or failure)
// the updated turn list is upserted to the record store keyed by
// {user, calendar day}; a save failure is logged, never surfaced, because
// the user already has the response.
type Exchange struct {
	provider ChatProvider
	records  store.ConversationStore
	config   ExchangeConfig
	logger   *core.Logger

	now func() time.Time // test hook
}

func NewExchange(provider ChatProvider, records store.ConversationStore, config ExchangeConfig, logger *core.Logger) *Exchange {
	if config.Language == "" {
		config.Language = "en"
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Exchange{
		provider: provider,
		records:  records,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Send appends the user turn to history and streams the assistant response.
// Deltas arrive on the first channel unbatched; the second channel delivers
// exactly one Result and both channels are closed afterwards. history is
// mutated: the user turn and the assistant turn are appended before Send
// returns control via the result channel.
func (e *Exchange) Send(ctx context.Context, userID, text string, history *core.History) (<-chan string, <-chan Result) {
	deltas := make(chan string, 16)
	results := make(chan Result, 1)

	history.Append(core.TurnRoleUser, text)
	messages := e.prepareMessages(history)

	go func() {
		defer close(results)
		defer close(deltas)

		var buf strings.Builder
		providerOut := make(chan string, 16)
		errCh := make(chan error, 1)

		go func() {
			errCh <- e.provider.StreamCompletion(ctx, userID, messages, providerOut)
			close(providerOut)
		}()

		for delta := range providerOut {
			buf.WriteString(delta)
			select {
			case deltas <- delta:
			case <-ctx.Done():
			}
		}
		err := <-errCh

		res := Result{Text: strings.TrimSpace(buf.String())}
		if err != nil {
			e.logger.Warn("exchange: chat stream failed", "error", err)
			res = Result{Text: Apology(e.config.Language), Apologized: true, Err: err}
			// The apology is the response the user hears; surface it as a
			// delta too so streaming consumers render it.
			select {
			case deltas <- res.Text:
			default:
			}
		} else if res.Text == "" {
			res = Result{Text: Apology(e.config.Language), Apologized: true, Err: core.EmptyResultError("no model text")}
			select {
			case deltas <- res.Text:
			default:
			}
		}

		history.Append(core.TurnRoleAssistant, res.Text)
		e.persist(userID, history)

		results <- res
	}()

	return deltas, results
}

// prepareMessages builds the upstream message list: the per-language persona
// followed by every prior turn except the synthetic greeting.
func (e *Exchange) prepareMessages(history *core.History) []Message {
	upstream := history.Upstream()
	messages := make([]Message, 0, len(upstream)+1)
	messages = append(messages, Message{Role: "system", Content: Persona(e.config.Language)})
	for _, t := range upstream {
		messages = append(messages, Message{Role: string(t.Role), Content: t.Content})
	}
	return messages
}

// persist hands the full turn list to the record store. Uses a fresh context:
// the caller's may already be cancelled by the time the stream ends.
func (e *Exchange) persist(userID string, history *core.History) {
	if e.records == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := store.ConversationRecord{
		UserID: userID,
		Day:    core.DayKey(e.now()),
		Turns:  append([]core.Turn(nil), history.Turns...),
	}
	if err := e.records.UpsertDay(ctx, rec); err != nil {
		e.logger.Warn("exchange: history save failed", "error", err, "user", userID)
	}
}
