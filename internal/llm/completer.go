package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer is the single interface the workflow uses to talk to a
// language model: plain text in, plain text out.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, userText string) (string, error)
}

// Client wraps a langchaingo model behind the Completer interface.
type Client struct {
	Model llms.Model
}

func NewOpenAIClient(apiKey, model, baseURL string) (*Client, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	m, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{Model: m}, nil
}

func (c *Client) Complete(ctx context.Context, systemPrompt string, userText string) (string, error) {
	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(systemPrompt),
			},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(userText),
		},
	})

	resp, err := c.Model.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return content, nil
}

// ParseItemList splits a comma-separated model response into clean item
// names. Empty segments (trailing commas, doubled separators) are dropped.
func ParseItemList(text string) []string {
	parts := strings.Split(text, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			continue
		}
		items = append(items, name)
	}
	return items
}
