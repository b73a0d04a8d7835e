package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/circlehq/circle-api/internal/config"
	"github.com/circlehq/circle-api/internal/domain/friendship"
	"github.com/circlehq/circle-api/internal/domain/notification"
	"github.com/circlehq/circle-api/internal/middleware"
	"github.com/circlehq/circle-api/internal/pkg/database"
	"github.com/circlehq/circle-api/internal/pkg/jwt"
	"github.com/circlehq/circle-api/internal/pkg/logger"
	pkgresponse "github.com/circlehq/circle-api/internal/pkg/response"
	"github.com/circlehq/circle-api/internal/realtime"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Circle API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- WebSocket hub ----------
	hub := realtime.NewHub(redis)
	go hub.Run()
	defer hub.Shutdown()

	// ---------- Repositories ----------
	friendshipStore := friendship.NewStore(db)
	notificationRepo := notification.NewRepository(db)

	// ---------- Services ----------
	dispatcher := notification.NewDispatcher(hub, notificationRepo)
	previewCache := friendship.NewRedisPreviewCache(redis)
	friendshipService := friendship.NewService(friendshipStore, dispatcher, previewCache)
	notificationService := notification.NewService(notificationRepo)

	// ---------- Background jobs ----------
	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	cleanupJob := notification.NewCleanupJob(notificationRepo, cfg.NotificationRetentionDays)
	go cleanupJob.Start(jobCtx, cfg.CleanupInterval)

	// ---------- Handlers ----------
	friendshipHandler := friendship.NewHandler(friendshipService, hub)
	notificationHandler := notification.NewHandler(notificationService)
	wsHandler := realtime.NewWSHandler(hub, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(wsHandler.ServeWS)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]any{
			"status":      "ok",
			"version":     "1.0.0",
			"connections": hub.GetConnectionCount(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/friends", friendshipHandler.Routes(authMiddleware))
		r.Mount("/users", friendshipHandler.BlockRoutes(authMiddleware))
		r.Mount("/notifications", notificationHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
