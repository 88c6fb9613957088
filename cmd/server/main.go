package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/codemuse/internal/api"
	"github.com/Rrens/codemuse/internal/api/handler"
	customMiddleware "github.com/Rrens/codemuse/internal/api/middleware"
	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/Rrens/codemuse/internal/llm/anthropic"
	"github.com/Rrens/codemuse/internal/llm/gemini"
	"github.com/Rrens/codemuse/internal/llm/ollama"
	"github.com/Rrens/codemuse/internal/llm/openai"
	"github.com/Rrens/codemuse/internal/lock"
	"github.com/Rrens/codemuse/internal/logging"
	"github.com/Rrens/codemuse/internal/pipeline"
	"github.com/Rrens/codemuse/internal/realtime"
	"github.com/Rrens/codemuse/internal/repository"
	"github.com/Rrens/codemuse/internal/repository/redis"
	"github.com/Rrens/codemuse/internal/security"
	"github.com/Rrens/codemuse/internal/service"
	"github.com/Rrens/codemuse/internal/speech"
	"github.com/Rrens/codemuse/internal/storage/s3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server failed")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Msg("Starting CodeMuse API server")

	store, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	tokens, err := security.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	var (
		locker   lock.Locker = lock.NewMemory()
		limiter  customMiddleware.Limiter
		authOpts []service.AuthOption
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		limiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
		if cfg.Auth.PrincipalCacheTTL > 0 {
			authOpts = append(authOpts, service.WithPrincipalCache(redis.NewPrincipalCache(redisClient, cfg.Auth.PrincipalCacheTTL)))
		}
		if cfg.Pipeline.LockBackend == "redis" {
			locker = redis.NewLocker(redisClient)
		}
	}
	log.Info().Str("lock_backend", cfg.Pipeline.LockBackend).Bool("rate_limit", limiter != nil).Msg("Pipeline lock ready")

	llmRouter := newLLMRouter(cfg.LLM)

	hub := realtime.NewHub()
	pipelineOpts := []pipeline.Option{
		pipeline.WithObserver(hub),
		pipeline.WithRecordingTTL(cfg.Pipeline.RecordingTTL),
		pipeline.WithExternalTimeout(cfg.Pipeline.ExternalTimeout),
	}
	if cfg.Storage.S3.Enabled() {
		archive, err := s3.NewArchive(ctx, cfg.Storage.S3)
		if err != nil {
			return fmt.Errorf("failed to set up audio archive: %w", err)
		}
		pipelineOpts = append(pipelineOpts, pipeline.WithArchiver(archive))
		log.Info().Str("bucket", cfg.Storage.S3.Bucket).Msg("Audio archive enabled")
	}

	chats := service.NewChatService(store)
	orch := pipeline.NewOrchestrator(chats, speech.NewClient(cfg.Speech), llmRouter, locker, pipelineOpts...)

	// The proxy speaks Gemini's wire format when Gemini is registered
	var proxy handler.Generator = llmRouter
	if p, err := llmRouter.GetProvider("gemini"); err == nil {
		proxy = p
	}

	router := api.NewRouter(cfg, api.Deps{
		Auth:     service.NewAuthService(store.Users, tokens, authOpts...),
		Chats:    chats,
		Pipeline: orch,
		LLM:      llmRouter,
		Proxy:    proxy,
		Events:   realtime.NewServer(hub, cfg.Server.AllowedOrigins),
		Audio:    security.NewAudioValidator(cfg.Security.MaxAudioBytes),
		Limiter:  limiter,
		Ping:     store.Ping,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	return g.Wait()
}

func newLLMRouter(cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)
	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.DefaultProvider)

	if cfg.Gemini.APIKey != "" {
		router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	} else {
		log.Warn().Msg("Gemini API Key is empty, skipping registration")
	}
	if cfg.OpenAI.APIKey != "" {
		router.RegisterProvider(openai.NewProvider(cfg.OpenAI))
	}
	if cfg.Anthropic.APIKey != "" {
		router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic))
	}
	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("Registering Ollama provider")
		router.RegisterProvider(ollama.NewProvider(cfg.Ollama))
	}

	if len(router.ListProviders()) == 0 {
		log.Warn().Msg("No code generation provider configured; generate requests will fail")
	}
	return router
}
