package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1/"

type OpenAIClient struct {
	client *openai.Client
	logger *slog.Logger
}

// OpenAi builds an OpenAI client. Empty settings fall back to
// OPENAI_API_BASE_URL and OPENAI_API_KEY.
func OpenAi(ctx context.Context, params ProviderParams) *OpenAIClient {
	if params.BaseURL == "" {
		params.BaseURL = os.Getenv("OPENAI_API_BASE_URL")
		if params.BaseURL == "" {
			params.BaseURL = defaultOpenAIBaseURL
		}
	}
	if params.APIKey == "" {
		params.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}

	var client *openai.Client
	if params.APIKey != "" {
		client = openai.NewClient(
			option.WithAPIKey(params.APIKey),
			option.WithBaseURL(params.BaseURL),
		)
	} else {
		client = openai.NewClient(
			option.WithBaseURL(params.BaseURL),
		)
	}
	params.Logger.Debug("created openai client", "base_url", params.BaseURL)
	return &OpenAIClient{
		client: client,
		logger: params.Logger,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, model string, system string, prompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(model),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("openai completion: no choices returned")
	}
	return chatCompletion.Choices[0].Message.Content, nil
}
