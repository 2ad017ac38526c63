package llm

import (
	"context"
	"fmt"

	"github.com/calebrin/tutorcore/internal/config"
	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/log"
)

// NewChatModel creates the appropriate ChatModel based on configuration.
func NewChatModel(ctx context.Context, provider string, cfg *config.ModelConfig) (core.ChatModel, error) {
	log.FromCtx(ctx).Info().
		Str("provider", provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	switch provider {
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.Model), nil
	case "openrouter":
		return NewOpenRouter(cfg.OpenRouterAPIKey, cfg.Model), nil
	case "ollama":
		return NewOllama(cfg.OllamaBaseURL, cfg.OllamaAPIKey, cfg.Model), nil
	case "custom":
		return NewCustomOpenAI(cfg.CustomBaseURL, cfg.CustomAPIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
