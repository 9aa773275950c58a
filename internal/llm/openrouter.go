package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/revrost/go-openrouter"

	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/util"
)

// OpenRouterProvider routes completions through OpenRouter
type OpenRouterProvider struct {
	client *openrouter.Client
	config Config
}

// NewOpenRouterProvider creates a new OpenRouter provider
func NewOpenRouterProvider(config Config) (*OpenRouterProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}

	clientConfig := openrouter.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = util.NewHTTPClient(model.HTTPConfig{
		HTTPProxy:  config.HTTPProxy,
		HTTPSProxy: config.HTTPSProxy,
		NoProxy:    config.NoProxy,
	}, config.timeout(60*time.Second))

	return &OpenRouterProvider{
		client: openrouter.NewClientWithConfig(*clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

// Complete runs a chat completion through OpenRouter
func (p *OpenRouterProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	modelName := p.config.Model
	if modelName == "" {
		modelName = "openai/gpt-4o-mini"
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.timeout(60*time.Second))
	defer cancel()

	request := openrouter.ChatCompletionRequest{
		Model: modelName,
		Messages: []openrouter.ChatCompletionMessage{
			{Role: openrouter.ChatMessageRoleSystem, Content: openrouter.Content{Text: req.System}},
			{Role: openrouter.ChatMessageRoleUser, Content: openrouter.Content{Text: req.User}},
		},
		MaxTokens:   p.config.maxTokens(req),
		Temperature: req.Temperature,
	}
	if req.JSON {
		request.ResponseFormat = &openrouter.ChatCompletionResponseFormat{
			Type: openrouter.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	response, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("OpenRouter API error: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	return &CompletionResponse{
		Text:  strings.TrimSpace(response.Choices[0].Message.Content.Text),
		Model: response.Model,
	}, nil
}
