package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/calebrin/tutorcore/pkg/log"
)

// RemoteConfig optionally replaces one capability with a remote MCP tool.
// The core addresses the capability by name either way; this only changes
// which process serves it.
type RemoteConfig struct {
	Capability string `env:"REMOTE_CAPABILITY"`
	Tool       string `env:"REMOTE_TOOL"`

	// Streamable HTTP endpoint, or a command to spawn over stdio
	URL     string   `env:"REMOTE_URL"`
	Command string   `env:"REMOTE_COMMAND"`
	Args    []string `env:"REMOTE_ARGS" envSeparator:" "`
}

func NewRemoteConfig(ctx context.Context) *RemoteConfig {
	c := &RemoteConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Remote config")
	}
	return c
}

func (c RemoteConfig) Enabled() bool {
	return c.Capability != "" && c.Tool != "" && (c.URL != "" || c.Command != "")
}
