package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mwinata/crm-web-ui/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleChatSocket upgrades /ws/chat/{sessionID} to a websocket and runs the chat loop:
// each inbound {"message": string} frame is appended to the session log and answered with
// either a streaming_chunk sequence ending in streaming_complete, or a single
// bot_response when streaming is disabled. Turns are processed one at a time in arrival
// order, so the connection never sees interleaved replies.
func (m Main) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		http.Error(w, "Session id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("Failed to upgrade chat socket",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		return
	}
	defer conn.Close()

	logger := m.logger.With(slog.String("sessionID", sessionID))
	logger.Info("Chat socket opened")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Chat socket closed unexpectedly", slog.String(errLoggerKey, err.Error()))
			}
			return
		}

		var in models.Outbound
		if err := json.Unmarshal(data, &in); err != nil {
			logger.Warn("Dropping malformed chat frame", slog.String(errLoggerKey, err.Error()))
			continue
		}

		text := strings.TrimSpace(in.Message)
		if text == "" {
			continue
		}

		if _, err := m.store.AddChatMessage(r.Context(), sessionID, models.ChatMessage{
			ID:             uuid.New().String(),
			Role:           models.RoleUser,
			Content:        text,
			Timestamp:      time.Now(),
			StreamingState: models.StreamingStateEnded,
		}); err != nil {
			logger.Error("Failed to store user message", slog.String(errLoggerKey, err.Error()))
			return
		}

		history, err := m.store.ChatMessages(r.Context(), sessionID)
		if err != nil {
			logger.Error("Failed to get chat history", slog.String(errLoggerKey, err.Error()))
			return
		}

		reply := m.respond(r.Context(), conn, logger, history)

		if reply != "" {
			if _, err := m.store.AddChatMessage(r.Context(), sessionID, models.ChatMessage{
				ID:             uuid.New().String(),
				Role:           models.RoleBot,
				Content:        reply,
				Timestamp:      time.Now(),
				StreamingState: models.StreamingStateEnded,
			}); err != nil {
				logger.Error("Failed to store bot message", slog.String(errLoggerKey, err.Error()))
				return
			}
		}
	}
}

// respond runs one bot turn and writes its events to the connection, returning the full
// reply text. A bot error mid-stream still ends the turn with streaming_complete so the
// client's input control never stays disabled.
func (m Main) respond(ctx context.Context, conn *websocket.Conn, logger *slog.Logger, history []models.ChatMessage) string {
	var full strings.Builder

	if !m.streaming {
		for chunk, err := range m.bot.Reply(ctx, history) {
			if err != nil {
				logger.Error("Error from bot", slog.String(errLoggerKey, err.Error()))
				break
			}
			full.WriteString(chunk)
		}
		if err := conn.WriteJSON(models.Event{
			Type:    models.EventBotResponse,
			Message: full.String(),
		}); err != nil {
			logger.Warn("Failed to write bot response", slog.String(errLoggerKey, err.Error()))
		}
		return full.String()
	}

	for chunk, err := range m.bot.Reply(ctx, history) {
		if err != nil {
			logger.Error("Error from bot", slog.String(errLoggerKey, err.Error()))
			break
		}
		if chunk == "" {
			continue
		}
		if err := conn.WriteJSON(models.Event{
			Type: models.EventStreamingChunk,
			Text: chunk,
		}); err != nil {
			logger.Warn("Failed to write streaming chunk", slog.String(errLoggerKey, err.Error()))
			return full.String()
		}
		full.WriteString(chunk)
	}

	if err := conn.WriteJSON(models.Event{Type: models.EventStreamingComplete}); err != nil {
		logger.Warn("Failed to write streaming complete", slog.String(errLoggerKey, err.Error()))
	}
	return full.String()
}

type chatHistoryMessage struct {
	ID        string
	Role      string
	HTML      template.HTML
	Content   string
	Timestamp time.Time
}

type chatHistoryData struct {
	SessionID string
	Messages  []chatHistoryMessage
}

// HandleChatHistory renders the stored message log for a session as the chat_history
// partial. Bot replies pass through the markdown renderer; user messages stay plain text.
func (m Main) HandleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	messages, err := m.store.ChatMessages(r.Context(), sessionID)
	if err != nil {
		m.logger.Error("Failed to get chat history",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := chatHistoryData{SessionID: sessionID}
	for _, msg := range messages {
		hm := chatHistoryMessage{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		}
		if msg.Role == models.RoleBot {
			html, err := models.RenderMarkdown(msg.Content)
			if err != nil {
				m.logger.Error("Failed to render bot message",
					slog.String("messageID", msg.ID),
					slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			hm.HTML = html
		}
		data.Messages = append(data.Messages, hm)
	}

	if err := m.templates.ExecuteTemplate(w, "chat_history", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
