package models

import (
	"encoding/json"
	"fmt"
)

// EventType tags an inbound socket payload.
type EventType string

const (
	// EventStreamingChunk appends text to the open streaming message.
	EventStreamingChunk EventType = "streaming_chunk"
	// EventStreamingComplete closes the open streaming message.
	EventStreamingComplete EventType = "streaming_complete"
	// EventBotResponse delivers a whole reply at once when the server is not streaming.
	EventBotResponse EventType = "bot_response"
)

// Event is an inbound payload from the chat socket. Text is set for
// streaming_chunk events, Message for bot_response events.
type Event struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Message string    `json:"message,omitempty"`
}

// DecodeEvent parses a raw socket frame. Frames with invalid JSON or an unknown
// type tag are rejected so the caller can drop them without a state change.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	switch ev.Type {
	case EventStreamingChunk, EventStreamingComplete, EventBotResponse:
		return ev, nil
	}
	return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
}

// Outbound is the payload transmitted on the chat socket for a user message.
type Outbound struct {
	Message string `json:"message"`
}
