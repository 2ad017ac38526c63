package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/calebrin/tutorcore/pkg/log"
)

type ModelConfig struct {
	Model string `env:"LLM_MODEL" envDefault:"google/gemma-3-27b-it:free"`

	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`

	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaAPIKey  string `env:"OLLAMA_API_KEY"`

	CustomBaseURL string `env:"CUSTOM_OPENAI_BASE_URL"`
	CustomAPIKey  string `env:"CUSTOM_OPENAI_API_KEY"`
}

func NewModelConfig(ctx context.Context) *ModelConfig {
	c := &ModelConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Model config")
	}
	return c
}
