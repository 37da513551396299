package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/genai"
)

type GeminiClient struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGemini builds a Gemini client. An empty API key falls back to
// GEMINI_API_KEY.
func NewGemini(ctx context.Context, params ProviderParams) (*GeminiClient, error) {
	apiKey := params.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGoogleAI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		client: client,
		logger: logger,
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, model string, system string, prompt string) (string, error) {
	text := prompt
	if system != "" {
		text = system + "\n\n" + prompt
	}
	parts := []*genai.Part{
		{Text: text},
	}
	result, err := c.client.Models.GenerateContent(ctx, model, []*genai.Content{{Parts: parts}}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini completion: no candidates returned")
	}

	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
