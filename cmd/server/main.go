package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatapp/gateway-server-go/internal/auth"
	"github.com/chatapp/gateway-server-go/internal/config"
	"github.com/chatapp/gateway-server-go/internal/database"
	"github.com/chatapp/gateway-server-go/internal/gateway"
	"github.com/chatapp/gateway-server-go/internal/handler"
	"github.com/chatapp/gateway-server-go/internal/jobs"
	"github.com/chatapp/gateway-server-go/internal/middleware"
	"github.com/chatapp/gateway-server-go/internal/redis"
	"github.com/chatapp/gateway-server-go/internal/repository"
	"github.com/chatapp/gateway-server-go/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	blobs, err := storage.NewBlobStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to storage")
	}
	bucketCtx, bucketCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := blobs.EnsureBucket(bucketCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure storage bucket")
	}
	bucketCancel()
	log.Info().Msg("storage connected")

	verifier := auth.NewVerifier(cfg.JWTSecret)

	messageRepo := repository.NewMessageRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	userRepo := repository.NewUserRepository(db)

	authMiddleware := middleware.NewAuthMiddleware(verifier)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, config.DefaultSendRatePerMin)
	uploadBodyLimit := middleware.NewBodyLimitMiddleware(config.MaxUploadSize)

	presence := gateway.NewRegistry(redisClient)
	rooms := gateway.NewAddressTable()
	router := gateway.NewRouter(messageRepo, membershipRepo, rooms, rateLimitMiddleware.Limiter(), cfg.SendRatePerMin)
	ws := gateway.NewServer(verifier, userRepo, membershipRepo, presence, rooms, router, cfg.AllowedOrigin)

	attachmentHandler := handler.NewAttachmentHandler(blobs)
	storageHandler := handler.NewStorageHandler(blobs)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Get("/ws", ws.HandleWS)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.With(uploadBodyLimit.Handler).Post("/attachments", attachmentHandler.Upload)
	})

	r.Get("/storage/*", storageHandler.Serve)

	presenceSync := jobs.NewPresenceSyncJob(presence, redisClient, config.PresenceSyncInterval)
	presenceSync.Start()
	defer presenceSync.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// Write timeout stays off: websocket connections are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
