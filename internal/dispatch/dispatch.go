// Package dispatch hands finalized utterances to the reply planner and fans
// the planned reply out to the client and the avatar. A dispatch always
// yields a displayable response: provider failures degrade to a fixed
// apology, they never surface as errors to the caller.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/mesepith/voice-avatar-heygen/internal/eventlog"
	"github.com/mesepith/voice-avatar-heygen/internal/llm"
	"github.com/mesepith/voice-avatar-heygen/internal/store"
)

const (
	planTimeout  = 30 * time.Second
	speakTimeout = 15 * time.Second
)

// Speaker is the avatar-side collaborator.
type Speaker interface {
	Speak(ctx context.Context, sessionID, text string) error
}

// History is the persistence collaborator for conversation turns.
type History interface {
	ReadHistory(ctx context.Context, sessionID string) ([]llm.Message, error)
	AppendTurn(ctx context.Context, t store.Turn) (string, error)
	InsertChatTitle(ctx context.Context, chatID, sessionID, title string) error
}

// Response is what the client displays for one utterance.
type Response struct {
	Spoken    string       `json:"spoken"`
	HindiLine string       `json:"hindiLine"`
	UI        llm.UIAction `json:"ui"`
}

// Dispatcher routes one finalized utterance through the reply pipeline.
type Dispatcher struct {
	planner llm.Planner
	speaker Speaker
	history History
	audit   *eventlog.Logger
	logger  *log.Logger
}

// New creates a Dispatcher. history and speaker may be nil in degraded
// setups; the dispatcher skips those stages.
func New(planner llm.Planner, speaker Speaker, history History, audit *eventlog.Logger, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		planner: planner,
		speaker: speaker,
		history: history,
		audit:   audit,
		logger:  logger,
	}
}

// Dispatch plans a reply for one finalized utterance, persists the turn,
// asks the avatar to speak it, and returns the displayable response. The
// avatar call is fire-and-forget: the response never waits for it. A failed
// planner call yields exactly one apology response, no retries.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, userText string) Response {
	history := d.readHistory(ctx, sessionID)
	isFirstTurn := len(history) == 0

	reply := d.plan(ctx, sessionID, userText, history)

	chatID := d.appendTurn(ctx, sessionID, userText, reply)

	if isFirstTurn && chatID != "" {
		d.storeTitle(ctx, sessionID, chatID, userText)
	}

	if d.speaker != nil && reply.SpeechText != "" {
		go d.speak(sessionID, reply.SpeechText)
	}

	return Response{
		Spoken:    reply.SpeechText,
		HindiLine: reply.HindiLine,
		UI:        reply.UIAction,
	}
}

func (d *Dispatcher) readHistory(ctx context.Context, sessionID string) []llm.Message {
	if d.history == nil {
		return nil
	}
	history, err := d.history.ReadHistory(ctx, sessionID)
	if err != nil {
		// Degrade to an empty history rather than failing the dispatch.
		d.logger.Printf("dispatch: failed to read history for %s: %v", sessionID, err)
		return nil
	}
	return history
}

// plan asks the planner for a reply, substituting the fixed apology on any
// failure. The chat.completions call is audit-logged either way.
func (d *Dispatcher) plan(ctx context.Context, sessionID, userText string, history []llm.Message) *llm.Reply {
	planCtx, cancel := context.WithTimeout(ctx, planTimeout)
	defer cancel()

	requestMeta := map[string]any{
		"message_count":     len(history) + 2, // system + history + user
		"last_user_preview": preview(userText),
	}

	timer := eventlog.StartTimer()
	reply, err := d.planner.PlanReply(planCtx, userText, history)
	timing := timer.Done()

	if err != nil {
		d.logger.Printf("dispatch: reply planning failed for %s: %v", sessionID, err)
		e := eventlog.ProviderError{
			SessionID:      sessionID,
			Provider:       eventlog.ProviderOpenAI,
			Endpoint:       "chat.completions",
			ErrorType:      "plan_reply_failed",
			ErrorMessage:   err.Error(),
			RequestPayload: requestMeta,
		}
		timing.ApplyError(&e)
		d.audit.LogErrorAsync(e)

		return &llm.Reply{
			SpeechText: llm.ApologySpeechText,
			UIAction:   llm.UIAction{Action: "NONE", Payload: map[string]any{}},
		}
	}

	call := eventlog.ProviderCall{
		SessionID:      sessionID,
		Provider:       eventlog.ProviderOpenAI,
		Endpoint:       "chat.completions",
		StatusCode:     200,
		RequestPayload: requestMeta,
		ResponsePayload: map[string]any{
			"model":           reply.Model,
			"total_tokens":    reply.Usage.TotalTokens,
			"content_preview": preview(reply.SpeechText),
		},
		Notes: "success",
	}
	timing.Apply(&call)
	d.audit.LogCallAsync(call)

	return reply
}

func (d *Dispatcher) appendTurn(ctx context.Context, sessionID, userText string, reply *llm.Reply) string {
	if d.history == nil {
		return ""
	}
	chatID, err := d.history.AppendTurn(ctx, store.Turn{
		SessionID: sessionID,
		UserText:  userText,
		AIText:    reply.SpeechText,
		Model:     reply.Model,
		Usage:     reply.Usage,
	})
	if err != nil {
		d.logger.Printf("dispatch: failed to persist turn for %s: %v", sessionID, err)
		return ""
	}
	return chatID
}

// storeTitle generates and saves a chat title for the session's first turn.
func (d *Dispatcher) storeTitle(ctx context.Context, sessionID, chatID, firstUserMessage string) {
	title, err := d.planner.GenerateTitle(ctx, firstUserMessage)
	if err != nil || title == "" {
		if err != nil {
			d.logger.Printf("dispatch: title generation failed for %s: %v", sessionID, err)
		}
		return
	}
	if err := d.history.InsertChatTitle(ctx, chatID, sessionID, title); err != nil {
		d.logger.Printf("dispatch: failed to store title for %s: %v", sessionID, err)
		return
	}
	d.logger.Printf("dispatch: saved chat title for session %s", sessionID)
}

// speak runs outside the request context so a client disconnect does not
// cancel the avatar's reply mid-request.
func (d *Dispatcher) speak(sessionID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
	defer cancel()

	if err := d.speaker.Speak(ctx, sessionID, text); err != nil {
		d.logger.Printf("dispatch: avatar speak failed for %s: %v", sessionID, err)
	}
}

func preview(s string) string {
	const max = 160
	if len(s) <= max {
		return s
	}
	return s[:max]
}
