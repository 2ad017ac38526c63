package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/calebrin/tutorcore/pkg/log"
)

// SearchConfig holds Google Custom Search Engine credentials for the
// websearch capability.
type SearchConfig struct {
	APIKey     string `env:"CSE_API_KEY"`
	EngineID   string `env:"CSE_ID"`
	MaxResults int    `env:"CSE_MAX_RESULTS" envDefault:"5"`

	// When set, the top result page is fetched and reduced to text so the
	// explainer sees more than snippets.
	FetchTopResult bool `env:"CSE_FETCH_TOP_RESULT" envDefault:"true"`
}

func NewSearchConfig(ctx context.Context) *SearchConfig {
	c := &SearchConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Search config")
	}
	return c
}
