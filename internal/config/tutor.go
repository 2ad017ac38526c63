package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/calebrin/tutorcore/pkg/log"
)

// TutorConfig carries every orchestration tunable. It is parsed once at
// startup and injected; nothing reads env mid-request.
type TutorConfig struct {
	// Exponential weighting constant for proficiency updates
	ProficiencyAlpha float64 `env:"PROFICIENCY_ALPHA" envDefault:"0.3"`

	// Difficulty assumed before any graded quiz exists
	BaselineProficiency float64 `env:"BASELINE_PROFICIENCY" envDefault:"0.5"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`

	RetryAttempts     int           `env:"RETRY_ATTEMPTS" envDefault:"1"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1s"`

	// Prior-turn context is trimmed to this many tokens, newest turns kept
	ContextTokenBudget int `env:"CONTEXT_TOKEN_BUDGET" envDefault:"1024"`

	// Below this classifier confidence the subject becomes unclassified
	SubjectConfidenceThreshold float64 `env:"SUBJECT_CONFIDENCE_THRESHOLD" envDefault:"0.55"`

	QuizQuestions int `env:"QUIZ_QUESTIONS" envDefault:"5"`

	// Background long-term summary rewriting
	RecapInterval time.Duration `env:"RECAP_INTERVAL" envDefault:"30m"`
	RecapMinTurns int           `env:"RECAP_MIN_TURNS" envDefault:"4"`
}

func NewTutorConfig(ctx context.Context) *TutorConfig {
	c := &TutorConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Tutor config")
	}
	return c
}
