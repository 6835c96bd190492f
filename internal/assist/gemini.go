package assist

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiGenerator backs the Assistant with Gemini text generation.
type geminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGemini builds a Gemini-backed assistant client.
func NewGemini(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newClient(&geminiGenerator{client: client, model: model}), nil
}

func (g *geminiGenerator) generate(ctx context.Context, prompt string) (string, error) {
	contents := genai.Text(prompt)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
