package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/promptdesk/internal/config"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
)

// NewArkFactory returns a Factory building Volcengine Ark chat chains. Ark binds
// the model at construction, so one chat model is created per endpoint ID.
func NewArkFactory(cfg config.AIConfig) Factory {
	return func(_ context.Context, apiKey string) (Generator, error) {
		if strings.TrimSpace(apiKey) == "" {
			return nil, errors.New("ark api key is empty")
		}

		build := func(ctx context.Context, modelID string) (model.BaseChatModel, error) {
			return ark.NewChatModel(ctx, arkChatModelConfig(cfg, apiKey, modelID))
		}
		return NewChainGenerator(catalog.ProviderArk, build, cfg.SystemPrompt), nil
	}
}

func arkChatModelConfig(cfg config.AIConfig, apiKey, modelID string) *ark.ChatModelConfig {
	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}

	var topP *float32
	if cfg.TopP != nil {
		val := float32(*cfg.TopP)
		topP = &val
	}

	var maxTokens *int
	if cfg.MaxTokens != nil {
		val := *cfg.MaxTokens
		maxTokens = &val
	}

	return &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		APIKey:      apiKey,
		Model:       modelID,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}
}
