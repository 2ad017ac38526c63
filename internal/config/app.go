package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/calebrin/tutorcore/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"TUTOR_RUNTIME_PATH" envDefault:".tutorcore"`

	// Allow selecting the chat model backend
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"openrouter"`

	// Session store backend: sqlite, memory or redis
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"`

	// Student identity used by the local REPL driver
	CLIStudentID string `env:"CLI_STUDENT_ID" envDefault:"cli-local"`

	// How many recent turns a session read returns
	RecentTurnLimit int `env:"RECENT_TURN_LIMIT" envDefault:"50"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "tutorcore.db")
}
