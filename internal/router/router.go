package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/handlers"
	"chatforms-backend/internal/middleware"
	"chatforms-backend/internal/models"
	"chatforms-backend/internal/websocket"
)

type Options struct {
	FrontendURL    string
	InternalAPIKey string
	Logger         zerolog.Logger
}

func New(
	jwtAuth *middleware.JWTAuth,
	authLimiter *middleware.RateLimiter,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	chatHandler *handlers.ChatHandler,
	formHandler *handlers.FormHandler,
	webhookHandler *handlers.WebhookHandler,
	jobHandler *handlers.JobHandler,
	healthHandler *handlers.HealthHandler,
	wsHub *websocket.Hub,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{opts.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", models.InternalKeyHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── User Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/me", userHandler.GetMe)
			r.Put("/me", userHandler.UpdateMe)
		})

		// ──── Chat Routes ────
		r.Route("/chats", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", chatHandler.List)
			r.Get("/{id}", chatHandler.Get)
			r.Get("/{id}/messages", chatHandler.ListMessages)
			r.Post("/{id}/messages", chatHandler.SendMessage)
			r.Delete("/{id}/messages", chatHandler.ClearMessages)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", chatHandler.Create)
				r.Put("/{id}", chatHandler.Update)
				r.Delete("/{id}", chatHandler.Delete)
			})
		})

		// ──── Form Routes ────
		r.Route("/forms", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", formHandler.List)
			r.Get("/{id}", formHandler.Get)
			r.Post("/{id}/responses", formHandler.Submit)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", formHandler.Create)
				r.Put("/{id}", formHandler.Update)
				r.Delete("/{id}", formHandler.Delete)
				r.Get("/{id}/responses", formHandler.ListResponses)
			})
		})

		// ──── Admin Routes ────
		r.Route("/admin", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(middleware.RequireAdmin)
			r.Get("/users", userHandler.List)
			r.Put("/users/{id}", userHandler.Update)
			r.Get("/roles", userHandler.ListRoles)
			r.Post("/roles", userHandler.CreateRole)
			r.Delete("/roles/{id}", userHandler.DeleteRole)
		})

		// ──── Webhook Routes ────
		r.Route("/webhook", func(r chi.Router) {
			r.With(jwtAuth.InternalOrJWT(opts.InternalAPIKey)).Post("/proxy", webhookHandler.Proxy)
			r.With(jwtAuth.Middleware).Post("/relay", webhookHandler.Relay)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}

// DefaultAuthLimit is the per-IP request budget for the auth routes.
const (
	DefaultAuthLimit  = 10
	DefaultAuthWindow = time.Minute
)
