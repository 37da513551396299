// Package providers wraps hosted LLM completion APIs behind a single Client
// interface. Clients are created through a Factory that callers construct
// once and pass down, so no client is shared through package state.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Client completes a single prompt.
type Client interface {
	Complete(ctx context.Context, model string, system string, prompt string) (string, error)
}

const (
	OpenAI = "openai"
	Gemini = "gemini"
)

type ProviderParams struct {
	BaseURL string
	APIKey  string
	Logger  *slog.Logger
}

type ProviderOption func(*ProviderParams)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}

func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *ProviderParams) {
		p.Logger = logger
	}
}

// Factory hands out one client per provider kind and connection settings.
// It is safe for concurrent use.
type Factory struct {
	mu      sync.Mutex
	clients map[string]Client
	logger  *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// Client returns the cached client for kind and opts, creating it on first use.
func (f *Factory) Client(ctx context.Context, kind string, opts ...ProviderOption) (Client, error) {
	params := ProviderParams{Logger: f.logger}
	for _, opt := range opts {
		opt(&params)
	}

	kind = strings.ToLower(strings.TrimSpace(kind))
	key := kind + "|" + params.BaseURL + "|" + params.APIKey

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c, nil
	}

	var (
		c   Client
		err error
	)
	switch kind {
	case OpenAI:
		c = OpenAi(ctx, params)
	case Gemini, "google":
		c, err = NewGemini(ctx, params)
	default:
		return nil, fmt.Errorf("unknown provider %q", kind)
	}
	if err != nil {
		return nil, err
	}
	f.clients[key] = c
	return c, nil
}

// Register installs a client under kind with default connection settings.
// Tests use it to inject fakes.
func (f *Factory) Register(kind string, c Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[strings.ToLower(kind)+"||"] = c
}
