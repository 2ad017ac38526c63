package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/calebrin/tutorcore/pkg/log"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

func NewRedisConfig(ctx context.Context) *RedisConfig {
	c := &RedisConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Redis config")
	}
	return c
}
