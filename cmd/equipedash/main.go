package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/equipedash/equipe-dash-go/internal/config"
	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/handler"
	"github.com/equipedash/equipe-dash-go/internal/infra/cache"
	"github.com/equipedash/equipe-dash-go/internal/infra/observability"
	"github.com/equipedash/equipe-dash-go/internal/infra/resilience"
	"github.com/equipedash/equipe-dash-go/internal/infra/supabase"
	"github.com/equipedash/equipe-dash-go/internal/repository"
	"github.com/equipedash/equipe-dash-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet; this is the required fail-fast path.
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("supabase_url", cfg.SupabaseURL),
		zap.Bool("realtime_enabled", cfg.RealtimeEnabled),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("profile_cache_ttl", cfg.ProfileCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "equipe-dash")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Supabase ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		cb,
		resilienceCfg,
		metrics,
		logger,
	)

	feed := supabase.NewFeed(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.RealtimeHeartbeat, resilienceCfg, logger)
	if cfg.RealtimeEnabled {
		go feed.Run(context.Background())
	} else {
		logger.Warn("realtime disabled; subscriptions deliver the initial snapshot only")
	}
	defer feed.Close()

	// --- Repositories ---
	repoOpts := repository.Options{
		Metrics:  metrics,
		Logger:   logger,
		Bulkhead: bulkhead,
	}
	eventsRepo := repository.NewEvents(client, feed, repoOpts)
	usersRepo := repository.NewUsers(client, feed, repoOpts)
	notificationsRepo := repository.NewNotifications(client, feed, repoOpts)
	metaRepo := repository.NewGroupMeta(client, feed, repoOpts)

	// --- Services ---
	sessions := service.NewSessionManager(client, client, logger)
	sessions.Start(context.Background(), "") // no session to recover server-side
	eventSvc := service.NewEventService(eventsRepo, logger)
	notificationSvc := service.NewNotificationService(notificationsRepo, logger)
	metaSvc := service.NewMetaService(metaRepo, eventsRepo, logger)
	perfSvc := service.NewPerformanceService(eventsRepo, usersRepo)

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Sessions:      sessions,
		Events:        eventSvc,
		Notifications: notificationSvc,
		Meta:          metaSvc,
		Performance:   perfSvc,
		Users:         usersRepo,
		Streamer:      handler.NewStreamer(eventsRepo, usersRepo, notificationsRepo, metaRepo, logger),
		ProfileCache:  cache.New[*domain.UserProfile](cfg.ProfileCacheTTL),
		JWTSecret:     cfg.SupabaseJWTSecret,
		Metrics:       metrics,
		Logger:        logger,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
