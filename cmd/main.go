package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"socialdm/backend/internal/api"
	"socialdm/backend/internal/api/handler"
	"socialdm/backend/internal/api/middleware"
	"socialdm/backend/internal/auth"
	"socialdm/backend/internal/bootstrap"
	"socialdm/backend/internal/chat"
	"socialdm/backend/internal/chathub"
	"socialdm/backend/internal/config"
	"socialdm/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("storage", cfg.StorageDriver).Msg("starting socialdm backend")

	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			logger.Fatal().Msg("JWT_SECRET is required outside development")
		}
		cfg.JWTSecret = "dev-only-secret"
		logger.Warn().Msg("JWT_SECRET not set, using an insecure development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Ініціалізація залежностей
	store, closeStore, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	dedupe, closeDedupe, err := bootstrap.OpenDeduper(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open idempotency cache")
	}

	// 2. Сервіси домену та Chat Hub
	convs := chat.NewConversationService(store, chat.NewClock())
	msgs := chat.NewMessageService(store, convs, dedupe)
	hub := chathub.NewManagerService(store, convs, msgs, chathub.Options{
		TypingTTL:      cfg.TypingTTL,
		TypingThrottle: cfg.TypingThrottle,
	})
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	// 3. Налаштування Gin та роутингу
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(hub, authenticator, authenticator, handler.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		AllowedOrigins:   cfg.AllowedOrigins(),
		WSEventsPerSec:   cfg.WSEventsPerSec,
		WSEventsBurst:    cfg.WSEventsBurst,
		DevTokens:        cfg.IsDevelopment(),
	})
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.HTTPRatePerSec), cfg.HTTPRateBurst)
	go limiter.RunCleanup(time.Minute, ctx.Done())

	router := api.NewRouter(h, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins(),
		RateLimiter:    limiter,
	})

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	<-hubDone
	if err := closeDedupe(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("closing idempotency cache")
	}
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("closing storage")
	}
}
