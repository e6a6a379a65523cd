package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/promptdesk/internal/config"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
)

type openAIGenerator struct {
	client *openai.Client
	cfg    config.AIConfig
}

// NewOpenAIFactory returns a Factory building OpenAI-compatible chat clients.
// AI_BASE_URL points it at any compatible endpoint.
func NewOpenAIFactory(cfg config.AIConfig) Factory {
	return func(_ context.Context, apiKey string) (Generator, error) {
		if strings.TrimSpace(apiKey) == "" {
			return nil, errors.New("openai api key is empty")
		}

		clientCfg := openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		return &openAIGenerator{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
	}
}

func (g *openAIGenerator) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if g.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.cfg.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
	}
	if g.cfg.Temperature != nil {
		req.Temperature = float32(*g.cfg.Temperature)
	}
	if g.cfg.TopP != nil {
		req.TopP = float32(*g.cfg.TopP)
	}
	if g.cfg.MaxTokens != nil {
		req.MaxTokens = *g.cfg.MaxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: ErrServer, Provider: catalog.ProviderOpenAI, Message: "response contained no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := kindFromStatus(apiErr.HTTPStatusCode)
		if kind == ErrUnknown {
			kind = classifyMessage(err)
		}
		return &Error{Kind: kind, Provider: catalog.ProviderOpenAI, Message: apiErr.Message, Cause: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		kind := kindFromStatus(reqErr.HTTPStatusCode)
		if kind == ErrUnknown {
			kind = classifyMessage(err)
		}
		return &Error{Kind: kind, Provider: catalog.ProviderOpenAI, Message: err.Error(), Cause: err}
	}

	return AsError(catalog.ProviderOpenAI, err)
}
