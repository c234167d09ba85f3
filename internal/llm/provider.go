package llm

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the chat completion surface the LLM corrector needs. Any
// OpenAI-compatible backend, local or hosted, can satisfy it.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider adapts *openai.Client to Client.
type OpenAIProvider struct {
	Inner *openai.Client
}

// NewOpenAIProvider builds a provider for baseURL. An empty baseURL keeps the
// library default; a nil httpClient keeps the library transport.
func NewOpenAIProvider(baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

// CountModels lists the models the backend serves. It is used as a
// best-effort connectivity check before the first correction.
func (p *OpenAIProvider) CountModels(ctx context.Context) (int, error) {
	models, err := p.Inner.ListModels(ctx)
	if err != nil {
		return 0, err
	}
	return len(models.Models), nil
}
