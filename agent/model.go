package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/shaiso/taskflow"
)

const (
	defaultModelTimeout = 600 * time.Second
	defaultMaxTokens    = 16 * 1024
	defaultOllamaURL    = "http://localhost:11434"
)

// NewChatModel строит модель по идентификатору вида "provider/model".
// Поддерживаются провайдеры openai, claude и ollama; ключи и базовые
// URL берутся из окружения: OPENAI_API_KEY, OPENAI_BASE_URL,
// ANTHROPIC_API_KEY, ANTHROPIC_BASE_URL, OLLAMA_BASE_URL.
func NewChatModel(ctx context.Context, id string) (model.ToolCallingChatModel, error) {
	provider, name, err := parseModelID(id)
	if err != nil {
		return nil, err
	}

	switch provider {
	case "openai", "gpt":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   name,
			Timeout: defaultModelTimeout,
		})
	case "claude", "anthropic":
		cfg := &claude.Config{
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			Model:     name,
			MaxTokens: defaultMaxTokens,
		}
		if base := os.Getenv("ANTHROPIC_BASE_URL"); base != "" {
			cfg.BaseURL = &base
		}
		return claude.NewChatModel(ctx, cfg)
	case "ollama":
		base := os.Getenv("OLLAMA_BASE_URL")
		if base == "" {
			base = defaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: base,
			Model:   name,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// validateModelID проверяет формат идентификатора и провайдера.
func validateModelID(id string) error {
	provider, _, err := parseModelID(id)
	if err != nil {
		return err
	}
	switch provider {
	case "openai", "gpt", "claude", "anthropic", "ollama":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}

// parseModelID разбирает идентификатор "provider/model".
func parseModelID(id string) (provider, name string, err error) {
	provider, name, ok := strings.Cut(id, "/")
	if !ok || provider == "" || name == "" {
		return "", "", fmt.Errorf("%w: model id %q must look like provider/model", ErrUnknownProvider, id)
	}
	return strings.ToLower(provider), name, nil
}

// modelOptions переводит настройки шага в опции вызова модели.
func modelOptions(ms *taskflow.ModelSettings) []model.Option {
	if ms == nil {
		return nil
	}
	var opts []model.Option
	if ms.Temperature != nil {
		opts = append(opts, model.WithTemperature(*ms.Temperature))
	}
	if ms.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(ms.MaxTokens))
	}
	if ms.TopP != nil {
		opts = append(opts, model.WithTopP(*ms.TopP))
	}
	return opts
}
