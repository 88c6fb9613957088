package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Rrens/codemuse/internal/api/handler"
	customMiddleware "github.com/Rrens/codemuse/internal/api/middleware"
	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/Rrens/codemuse/internal/pipeline"
	"github.com/Rrens/codemuse/internal/realtime"
	"github.com/Rrens/codemuse/internal/security"
	"github.com/Rrens/codemuse/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps are the services the HTTP surface is built on
type Deps struct {
	Auth     *service.AuthService
	Chats    *service.ChatService
	Pipeline *pipeline.Orchestrator
	LLM      *llm.Router
	// Proxy backs POST /code/gemini
	Proxy  handler.Generator
	Events *realtime.Server
	Audio  *security.AudioValidator
	// Limiter rate limits protected routes; nil disables rate limiting
	Limiter customMiddleware.Limiter
	// Ping reports storage readiness
	Ping func(ctx context.Context) error
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.Server.MiddlewareTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	audio := deps.Audio
	if audio == nil {
		audio = security.NewAudioValidator(cfg.Security.MaxAudioBytes)
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(deps.Auth, cfg.Server.SecureCookies)
	chatHandler := handler.NewChatHandler(deps.Chats, deps.Pipeline)
	pipelineHandler := handler.NewPipelineHandler(deps.Pipeline, audio, deps.Events)
	codegenHandler := handler.NewCodegenHandler(deps.Proxy, cfg.Pipeline.ExternalTimeout)

	authMiddleware := customMiddleware.NewAuthMiddleware(deps.Auth)

	routes := func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Ping))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Put("/update-profile", authHandler.UpdateProfile)
				r.Get("/me", authHandler.Me)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			if deps.Limiter != nil {
				r.Use(customMiddleware.NewRateLimitMiddleware(deps.Limiter).Limit)
			}

			r.Get("/users", authHandler.ListUsers)
			r.Get("/llm-providers", handler.ListLLMProviders(deps.LLM))

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Post("/", chatHandler.Create)

				r.Route("/{chatId}", func(r chi.Router) {
					r.Use(customMiddleware.ChatContext)

					r.Get("/", chatHandler.Get)
					r.Put("/", chatHandler.Rename)
					r.Delete("/", chatHandler.Delete)

					r.Get("/code", chatHandler.ListCode)
					r.Post("/code", chatHandler.SaveCode)

					r.Put("/transcripts/{transcriptId}", pipelineHandler.EditTranscript)

					r.Get("/pipeline", pipelineHandler.State)
					r.Post("/pipeline/recording", pipelineHandler.BeginRecording)
					r.Post("/pipeline/audio", pipelineHandler.UploadAudio)
					r.Post("/pipeline/generate", pipelineHandler.Generate)

					r.Get("/events", pipelineHandler.Events)
				})
			})

			r.Post("/pipeline/recording", pipelineHandler.StartRecording)

			r.Route("/transcriptions", func(r chi.Router) {
				r.Post("/local", pipelineHandler.LocalTranscription)
				r.With(customMiddleware.ChatContext).Get("/{chatId}", chatHandler.ListTranscripts)
			})

			r.Post("/code/gemini", codegenHandler.Proxy)
		})
	}

	base := strings.TrimSuffix(cfg.Server.BasePath, "/")
	if base == "" {
		routes(r)
	} else {
		r.Route(base, routes)
	}

	return r
}
