package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"slices"

	"github.com/mwinata/crm-web-ui/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the Bot interface backed by an Ollama server. It
// streams chat completions, yielding response text incrementally.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	client *api.Client
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The
// host parameter should be a valid URL pointing to an Ollama server. If the provided host
// URL is invalid, the function will panic.
func NewOllama(host, model, systemPrompt string) Ollama {
	u, err := url.Parse(host)
	if err != nil {
		panic(err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}
}

// Reply implements the Bot interface by streaming a response to the conversation so far.
// It returns an iterator that yields response chunks as strings and potential errors. The
// response is streamed incrementally, allowing the chat socket to forward chunks as they
// arrive.
func (o Ollama) Reply(ctx context.Context, history []models.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]api.Message, 0, len(history)+1)
		for _, msg := range history {
			msgs = append(msgs, api.Message{
				Role:    ollamaRole(msg.Role),
				Content: msg.Content,
			})
		}
		msgs = slices.Insert(msgs, 0, api.Message{
			Role:    "system",
			Content: o.systemPrompt,
		})

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if !yield(res.Message.Content, nil) {
				cancel()
			}
			return nil
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}

func ollamaRole(r models.Role) string {
	if r == models.RoleBot {
		return "assistant"
	}
	return string(models.RoleUser)
}
