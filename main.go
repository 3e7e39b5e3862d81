package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/nextmove-ai/convocore/internal/core"
	"github.com/nextmove-ai/convocore/internal/engine"
	"github.com/nextmove-ai/convocore/internal/engine/fallback"
	"github.com/nextmove-ai/convocore/internal/engine/model"
	"github.com/nextmove-ai/convocore/internal/engine/nlu"
	"github.com/nextmove-ai/convocore/internal/engine/render"
	"github.com/nextmove-ai/convocore/internal/engine/session"
	"github.com/nextmove-ai/convocore/internal/engine/tools"
	"github.com/nextmove-ai/convocore/internal/server"
	logx "github.com/nextmove-ai/convocore/pkg/logger"
	redisx "github.com/nextmove-ai/convocore/pkg/redis"
)

// AppConfig is the full process configuration, sourced from environment
// variables (optionally via a .env file).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	Addr        string           `envconfig:"ADDR" default:":8080"`

	Redis     redisx.Config
	Engine    model.EngineConfig
	Generator model.GeneratorConfig

	// GeminiAPIKey enables the optional free-text generator. Without it the
	// engine runs fully rule-based.
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
}

func main() {
	_ = godotenv.Load()

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("invalid configuration")
	}

	logx.Init(logx.LoggerOpts{Environment: cfg.Environment})

	rules, err := nlu.LoadRules(cfg.Engine.IntentRulesPath)
	if err != nil {
		logx.Fatal().Err(err).Msg("loading intent rules failed")
	}
	catalog, err := render.LoadCatalog(cfg.Engine.TemplatesPath)
	if err != nil {
		logx.Fatal().Err(err).Msg("loading response templates failed")
	}

	sessions, cleanup := buildSessionRepository(cfg)
	defer cleanup()

	orch, err := engine.New(engine.Options{
		Config:     cfg.Engine,
		Rules:      rules,
		Sessions:   sessions,
		Dispatcher: tools.NewDispatcher(tools.NewDemoRegistry(), cfg.Engine.ToolTimeout),
		Renderer:   render.NewRenderer(catalog, cfg.Engine.DefaultLocale),
		Generator:  buildGenerator(cfg),
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("engine assembly failed")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(orch).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logx.Info().Str("addr", cfg.Addr).Msg("convocore listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logx.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("shutdown incomplete")
	}
}

// buildSessionRepository picks Redis when configured and the in-memory
// store otherwise. The returned cleanup stops background resources.
func buildSessionRepository(cfg AppConfig) (model.SessionRepository, func()) {
	if cfg.Redis.Enabled() {
		client, err := cfg.Redis.New()
		if err != nil {
			logx.Fatal().Err(err).Msg("redis connection failed")
		}
		logx.Info().Msg("using redis session store")
		return session.NewRedisRepository(client, cfg.Engine.SessionTTL), func() {
			if err := client.Close(); err != nil {
				logx.Warn().Err(err).Msg("closing redis client failed")
			}
		}
	}

	logx.Info().Msg("using in-memory session store")
	mem := session.NewMemoryRepository(cfg.Engine.SessionTTL)
	return mem, mem.Close
}

// buildGenerator creates the Gemini collaborator when an API key is
// present. Failures degrade to rule-based operation instead of aborting
// startup.
func buildGenerator(cfg AppConfig) fallback.Generator {
	if cfg.GeminiAPIKey == "" {
		return nil
	}
	gen, err := fallback.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.Generator)
	if err != nil {
		logx.Warn().Err(err).Msg("generator unavailable, continuing rule-based only")
		return nil
	}
	logx.Info().Str("model", cfg.Generator.Model).Msg("free-text generator enabled")
	return gen
}
