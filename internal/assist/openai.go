package assist

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openaiGenerator backs the Assistant with an OpenAI-compatible chat
// endpoint. A custom base URL covers self-hosted compatible servers.
type openaiGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds an OpenAI-backed assistant client.
func NewOpenAI(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newClient(&openaiGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	})
}

func (g *openaiGenerator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
