// Package chatui implements the chat widget's client-side message handling: an explicit
// state machine that turns the socket's inbound events into a visible message list, and a
// websocket client that drives it against a live server.
package chatui

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mwinata/crm-web-ui/internal/models"
)

// State is the renderer's position in the current conversation turn.
type State int

const (
	// StateIdle means no response is outstanding and input is enabled.
	StateIdle State = iota
	// StateAwaiting means a user message was sent and no content has arrived yet.
	StateAwaiting
	// StateStreaming means a streaming message is open and accumulating chunks.
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateStreaming:
		return "streaming"
	}
	return "unknown"
}

const disconnectedNotice = "Connection lost. You can try sending your message again."

// Renderer transforms an ordered sequence of inbound chat events into a message list and
// an input-enabled flag, preserving turn-taking: Send disables input, and only a
// streaming_complete or bot_response event enables it again.
//
// Renderer is not safe for concurrent use; Client serializes access to it.
type Renderer struct {
	messages []models.ChatMessage
	state    State

	// open indexes the message currently accumulating chunks, -1 when none is open.
	open         int
	inputEnabled bool

	logger *slog.Logger
	now    func() time.Time
}

// NewRenderer creates a Renderer in the idle state with input enabled.
func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{
		state:        StateIdle,
		open:         -1,
		inputEnabled: true,
		logger:       logger.With(slog.String("module", "chatui")),
		now:          time.Now,
	}
}

// Send starts a new conversation turn. It trims the text, and silently rejects both empty
// input and sends attempted while a prior turn's response is outstanding. On success it
// appends the user message, appends a typing-indicator placeholder, disables input, and
// returns the payload to transmit.
func (r *Renderer) Send(text string) (models.Outbound, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Outbound{}, false
	}
	if !r.inputEnabled {
		r.logger.Warn("Send rejected while input is disabled")
		return models.Outbound{}, false
	}

	// A stray chunk may have left a message open; a new turn settles it so its
	// chunks cannot leak into the old message.
	r.settleOpen()

	r.messages = append(r.messages, models.ChatMessage{
		ID:             uuid.New().String(),
		Role:           models.RoleUser,
		Content:        text,
		Timestamp:      r.now(),
		StreamingState: models.StreamingStateEnded,
	})
	r.messages = append(r.messages, models.ChatMessage{
		ID:             uuid.New().String(),
		Role:           models.RoleBot,
		Timestamp:      r.now(),
		StreamingState: models.StreamingStateLoading,
	})

	r.inputEnabled = false
	r.state = StateAwaiting

	return models.Outbound{Message: text}, true
}

// Apply is the single transition function over the three inbound event types. Events that
// have no defined transition are logged and applied defensively rather than dropped: a
// chunk with no open turn starts a fresh streaming message.
func (r *Renderer) Apply(ev models.Event) {
	switch ev.Type {
	case models.EventStreamingChunk:
		r.applyChunk(ev.Text)
	case models.EventStreamingComplete:
		r.applyComplete()
	case models.EventBotResponse:
		r.applyBotResponse(ev.Message)
	default:
		r.logger.Warn("Dropping event with unknown type", slog.String("type", string(ev.Type)))
	}
}

func (r *Renderer) applyChunk(text string) {
	if r.open < 0 {
		if r.state != StateAwaiting {
			r.logger.Warn("Streaming chunk with no open turn, starting a fresh message",
				slog.String("state", r.state.String()))
		}
		r.open = r.claimPlaceholder()
	}
	r.messages[r.open].Content += text
	r.messages[r.open].StreamingState = models.StreamingStateStreaming
	r.state = StateStreaming
}

func (r *Renderer) applyComplete() {
	if r.open < 0 {
		r.logger.Warn("Streaming complete with no open message")
	} else {
		r.messages[r.open].StreamingState = models.StreamingStateEnded
		r.open = -1
	}
	r.dropPlaceholder()
	r.inputEnabled = true
	r.state = StateIdle
}

func (r *Renderer) applyBotResponse(message string) {
	r.settleOpen()
	idx := r.claimPlaceholder()
	r.messages[idx].Content = message
	r.messages[idx].StreamingState = models.StreamingStateEnded
	r.open = -1
	r.inputEnabled = true
	r.state = StateIdle
}

// Timeout handles the response watchdog firing. Any open streaming message is settled
// with what arrived so far, the typing indicator is removed, input is re-enabled, and a
// disconnect notice is appended so the widget never hangs with input disabled.
func (r *Renderer) Timeout() {
	if r.state == StateIdle {
		return
	}
	r.logger.Warn("Response watchdog expired", slog.String("state", r.state.String()))

	r.settleOpen()
	r.dropPlaceholder()
	r.messages = append(r.messages, models.ChatMessage{
		ID:             uuid.New().String(),
		Role:           models.RoleSystem,
		Content:        disconnectedNotice,
		Timestamp:      r.now(),
		StreamingState: models.StreamingStateEnded,
	})
	r.inputEnabled = true
	r.state = StateIdle
}

// settleOpen ends the message currently accumulating chunks, if any.
func (r *Renderer) settleOpen() {
	if r.open >= 0 {
		r.messages[r.open].StreamingState = models.StreamingStateEnded
		r.open = -1
	}
}

// claimPlaceholder converts the trailing typing-indicator placeholder into the message
// about to receive content, appending a fresh bot message when none is pending.
func (r *Renderer) claimPlaceholder() int {
	if n := len(r.messages); n > 0 && r.messages[n-1].StreamingState == models.StreamingStateLoading {
		return n - 1
	}
	r.messages = append(r.messages, models.ChatMessage{
		ID:        uuid.New().String(),
		Role:      models.RoleBot,
		Timestamp: r.now(),
	})
	return len(r.messages) - 1
}

// dropPlaceholder removes a trailing typing indicator that never received content.
func (r *Renderer) dropPlaceholder() {
	if n := len(r.messages); n > 0 && r.messages[n-1].StreamingState == models.StreamingStateLoading {
		r.messages = r.messages[:n-1]
	}
}

// Messages returns a copy of the rendered message list.
func (r *Renderer) Messages() []models.ChatMessage {
	out := make([]models.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// State returns the renderer's position in the current turn.
func (r *Renderer) State() State {
	return r.state
}

// InputEnabled reports whether the input control accepts a new message.
func (r *Renderer) InputEnabled() bool {
	return r.inputEnabled
}

// TypingIndicatorVisible reports whether the typing-indicator placeholder is shown.
func (r *Renderer) TypingIndicatorVisible() bool {
	n := len(r.messages)
	return n > 0 && r.messages[n-1].StreamingState == models.StreamingStateLoading
}
