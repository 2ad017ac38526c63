package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/calebrin/tutorcore/internal/classify"
	"github.com/calebrin/tutorcore/internal/config"
	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/internal/providers/capability"
	"github.com/calebrin/tutorcore/internal/providers/llm"
	"github.com/calebrin/tutorcore/internal/providers/remote"
	"github.com/calebrin/tutorcore/internal/service/recap"
	"github.com/calebrin/tutorcore/internal/service/tutor"
	"github.com/calebrin/tutorcore/internal/storage/memstore"
	redisstore "github.com/calebrin/tutorcore/internal/storage/redis"
	"github.com/calebrin/tutorcore/internal/storage/sqlite"
	"github.com/calebrin/tutorcore/internal/transport/cli"
	"github.com/calebrin/tutorcore/pkg/log"
	"github.com/calebrin/tutorcore/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	tutorCfg := config.NewTutorConfig(ctx)

	// 2. Session store
	store, cleanup, err := initStorage(ctx, appCfg, tutorCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	if cleanup != nil {
		services = append(services, cleanup)
	}

	// 3. Chat model
	model, err := llm.NewChatModel(ctx, appCfg.LLMProvider, config.NewModelConfig(ctx))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize chat model")
	}

	// 4. Classifiers
	intents := classify.NewIntentClassifier(model)
	subjects := classify.NewSubjectClassifier(model, tutorCfg.SubjectConfidenceThreshold)

	// 5. Capability providers
	searchCfg := config.NewSearchConfig(ctx)
	registry := capability.NewRegistry(
		capability.NewExplainer(model),
		capability.NewQuizGenerator(model, tutorCfg.QuizQuestions),
		capability.NewWebSearch(capability.WebSearchConfig{
			APIKey:         searchCfg.APIKey,
			EngineID:       searchCfg.EngineID,
			MaxResults:     searchCfg.MaxResults,
			FetchTopResult: searchCfg.FetchTopResult,
		}),
	)

	// Optionally serve one capability from a remote MCP tool
	if remoteCfg := config.NewRemoteConfig(ctx); remoteCfg.Enabled() {
		services = append(services, initRemote(ctx, remoteCfg, registry)...)
	}

	// 6. Orchestrator
	tut := tutor.NewTutor(intents, subjects, registry, store, tutor.Config{
		ProviderTimeout:     tutorCfg.ProviderTimeout,
		BaselineProficiency: tutorCfg.BaselineProficiency,
		ContextTokenBudget:  tutorCfg.ContextTokenBudget,
		RetryAttempts:       tutorCfg.RetryAttempts,
		RetryInitialDelay:   tutorCfg.RetryInitialDelay,
	})

	// 7. Background session recaps
	recapSvc := recap.New(model, store)
	recapSvc.Interval = tutorCfg.RecapInterval
	recapSvc.MinTurns = tutorCfg.RecapMinTurns
	services = append(services, recapSvc)

	// 8. Transport
	repl, err := cli.NewReadLine(tut, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize chat loop")
	}
	services = append(services, repl)

	return services
}

func initStorage(ctx context.Context, appCfg *config.AppConfig, tutorCfg *config.TutorConfig) (core.SessionStore, srv.Service, error) {
	switch appCfg.StorageBackend {
	case "memory":
		return memstore.New(tutorCfg.ProficiencyAlpha, tutorCfg.BaselineProficiency), nil, nil

	case "redis":
		redisCfg := config.NewRedisConfig(ctx)
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		store := redisstore.NewStore(rdb, tutorCfg.ProficiencyAlpha, tutorCfg.BaselineProficiency, appCfg.RecentTurnLimit)
		return store, srv.NewCleanup(rdb.Close), nil

	default: // sqlite
		db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
		if err != nil {
			return nil, nil, err
		}
		store := sqlite.NewStore(db, tutorCfg.ProficiencyAlpha, tutorCfg.BaselineProficiency, appCfg.RecentTurnLimit)
		return store, srv.NewCleanup(db.Close), nil
	}
}

func initRemote(ctx context.Context, cfg *config.RemoteConfig, registry *capability.Registry) []srv.Service {
	logger := log.FromCtx(ctx)

	name, err := core.ParseCapability(cfg.Capability)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad remote capability name")
	}

	provider, err := remote.New(ctx, name, cfg.Tool, remote.ServerConfig{
		URL:     cfg.URL,
		Command: cfg.Command,
		Args:    cfg.Args,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect remote capability")
	}
	registry.Register(provider)

	return []srv.Service{srv.NewCleanup(provider.Close)}
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
