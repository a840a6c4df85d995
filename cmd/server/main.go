package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/changefeed"
	"chatforms-backend/internal/config"
	"chatforms-backend/internal/database"
	"chatforms-backend/internal/handlers"
	"chatforms-backend/internal/middleware"
	"chatforms-backend/internal/pipeline"
	"chatforms-backend/internal/proxy"
	"chatforms-backend/internal/repository"
	"chatforms-backend/internal/router"
	"chatforms-backend/internal/services"
	"chatforms-backend/internal/session"
	"chatforms-backend/internal/webhook"
	"chatforms-backend/internal/websocket"
	"chatforms-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	logger := newLogger(cfg)
	logger.Info().Str("env", cfg.Env).Msg("starting chatforms backend")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()
	logger.Info().Msg("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClients.Close()
	logger.Info().Msg("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir, logger); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	roleRepo := repository.NewRoleRepo(pool)
	chatRepo := repository.NewChatRepo(pool)
	formRepo := repository.NewFormRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ──── Step 5: Start Change Feed ────
	feed := changefeed.NewBroker(pool, logger)
	go feed.Run(ctx)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, roleRepo, redisClients.Queue, jwtAuth, cfg.AdminEmails)
	forwarder := webhook.NewForwarder(cfg.WebhookTimeout, logger)
	proxyService := proxy.NewService(chatRepo, forwarder, logger)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret, logger)

	// ──── Step 7: Session Manager ────
	// The pipeline reaches the proxy over HTTP so that message delivery goes
	// through the same endpoint external callers use.
	sessions := session.NewManager(
		chatRepo,
		feed,
		pipeline.NewHTTPProxy(cfg.InternalAPIURL, cfg.InternalAPIKey),
		wsHub,
		session.Options{
			IdleTimeout:    cfg.SessionIdleTimeout,
			WebhookTimeout: cfg.WebhookTimeout,
		},
		logger,
	)
	wsHub.OnConnect(func(userID uuid.UUID) { sessions.Get(userID) })
	if err := sessions.StartReaper(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start session reaper")
	}

	// ──── Step 8: Start Job Worker Pool ────
	emailService := services.NewEmailService(services.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, cfg.AdminEmails, cfg.FrontendURL, logger)
	workerPool := worker.NewPool(redisClients.Queue, jobRepo, formRepo, forwarder, wsHub, emailService, cfg.FormWorkers, logger)
	workerPool.Start()

	// ──── Initialize Handlers ────
	authLimiter := middleware.NewRateLimiter(router.DefaultAuthLimit, router.DefaultAuthWindow)
	defer authLimiter.Stop()

	r := router.New(
		jwtAuth,
		authLimiter,
		handlers.NewAuthHandler(authService, sessions),
		handlers.NewUserHandler(userRepo, roleRepo, sessions),
		handlers.NewChatHandler(chatRepo, userRepo, sessions, logger),
		handlers.NewFormHandler(formRepo, jobRepo, workerPool, logger),
		handlers.NewWebhookHandler(proxyService, logger),
		handlers.NewJobHandler(jobRepo),
		handlers.NewHealthHandler(pool, redisClients, sessions),
		wsHub,
		router.Options{
			FrontendURL:    cfg.FrontendURL,
			InternalAPIKey: cfg.InternalAPIKey,
			Logger:         logger,
		},
	)

	// ──── Step 9: Start HTTP Server ────
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Waiting sends hold the connection for up to the webhook timeout.
		WriteTimeout: cfg.WebhookTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}

		workerPool.Stop()
		sessions.Close()
		stop()
	}()

	logger.Info().
		Str("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)).
		Str("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)).
		Msg("chatforms backend ready")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
	<-shutdownDone
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
