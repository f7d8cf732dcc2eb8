package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/mwinata/crm-web-ui/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the Bot interface for OpenAI-compatible chat
// completion APIs.
type OpenAI struct {
	model        string
	systemPrompt string

	client *goopenai.Client
}

// NewOpenAI creates a new OpenAI instance with the specified API key, model name, and
// system prompt. An optional baseURL routes requests to any OpenAI-compatible endpoint.
func NewOpenAI(apiKey, baseURL, model, systemPrompt string) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		client:       goopenai.NewClientWithConfig(cfg),
	}
}

func openAIMessages(systemPrompt string, history []models.ChatMessage) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		role := goopenai.ChatMessageRoleUser
		if msg.Role == models.RoleBot {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return msgs
}

// Reply implements the Bot interface by streaming a chat completion, yielding response
// chunks as they arrive from the API.
func (o OpenAI) Reply(ctx context.Context, history []models.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := goopenai.ChatCompletionRequest{
			Model:    o.model,
			Messages: openAIMessages(o.systemPrompt, history),
			Stream:   true,
		}

		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", fmt.Errorf("error creating completion stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			res, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield("", fmt.Errorf("error receiving stream response: %w", err))
				return
			}
			if len(res.Choices) == 0 {
				continue
			}
			if !yield(res.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}
