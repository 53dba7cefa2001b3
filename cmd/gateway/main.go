package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/auth"
	"github.com/mayankbot01/localllm-gateway/internal/auth/ratelimit"
	"github.com/mayankbot01/localllm-gateway/internal/gateway/backend"
	"github.com/mayankbot01/localllm-gateway/internal/gateway/cache"
	"github.com/mayankbot01/localllm-gateway/internal/gateway/handlers"
	"github.com/mayankbot01/localllm-gateway/internal/shared/config"
	"github.com/mayankbot01/localllm-gateway/internal/shared/database"
	"github.com/mayankbot01/localllm-gateway/internal/shared/metrics"
	"github.com/mayankbot01/localllm-gateway/internal/shared/redis"
	"github.com/mayankbot01/localllm-gateway/internal/usage"
)

const version = "1.0.0"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if cfg.Env == "development" {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.WithFields(logrus.Fields{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("starting LocalLLM gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to initialize schema")
	}
	logger.Info("connected to PostgreSQL")

	// Initialize response cache (optional)
	var responseCache handlers.ResponseCache
	if cfg.CacheEnabled {
		redisClient, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		defer redisClient.Close()
		responseCache = cache.New(redisClient)
		logger.Info("connected to Redis, response cache enabled")
	}

	// Admission core: limiter, sweep schedule, admitter
	limiter := ratelimit.New(cfg.MaxRateLimitPerMin)
	admitter := auth.NewAdmitter(db, limiter, logger)

	sweeper := cron.New()
	_, err = sweeper.AddFunc(fmt.Sprintf("@every %dm", cfg.SweepIntervalMin), func() {
		removed := limiter.Sweep()
		metrics.LimiterLiveKeys.Set(float64(limiter.Len()))
		logger.WithFields(logrus.Fields{
			"removed":   removed,
			"live_keys": limiter.Len(),
		}).Debug("rate-limit window sweep")
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule limiter sweep")
	}
	sweeper.Start()

	// Usage recorder
	recorder := usage.NewRecorder(db, logger, 2, 256)

	// Ollama backend client
	be := backend.NewClient(cfg.OllamaBaseURL, time.Duration(cfg.OllamaTimeout)*time.Second, logger)

	// Handlers
	middleware := handlers.NewMiddleware(admitter, cfg.AdminSecret, logger)
	chatHandler := handlers.NewChatHandler(be, responseCache, recorder, logger, cfg.DefaultModel,
		time.Duration(cfg.CacheTTLSeconds)*time.Second)
	generateHandler := handlers.NewGenerateHandler(be, recorder, logger, cfg.DefaultModel)
	modelsHandler := handlers.NewModelsHandler(be, logger)
	usageHandler := handlers.NewUsageHandler(db, logger)
	adminHandler := handlers.NewAdminHandler(db, logger, cfg.APIKeyPrefix,
		cfg.DefaultRateLimit, cfg.DefaultMonthlyTokens)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(time.Duration(cfg.OllamaTimeout+30) * time.Second))
	r.Use(middleware.CORSMiddleware)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"LocalLLM Gateway","version":%q,"health":"/health"}`, version)
	})
	r.Method("GET", "/metrics", metrics.Handler())

	// Admin routes (shared-secret header)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminMiddleware)

		r.Post("/api-keys", adminHandler.HandleCreateKey)
		r.Delete("/api-keys/{id}", adminHandler.HandleRevokeKey)
		r.Get("/api-keys", adminHandler.HandleListKeys)
	})

	// Protected LLM routes (key admission)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Post("/chat/completions", chatHandler.HandleChatCompletion)
		r.Post("/generate", generateHandler.HandleGenerate)
		r.Get("/models", modelsHandler.HandleListModels)
		r.Post("/models/pull", modelsHandler.HandlePullModel)
		r.Get("/usage", usageHandler.HandleKeyUsage)
	})

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: time.Duration(cfg.OllamaTimeout+30) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}

	// Stop the sweep and drain queued usage before closing the store.
	<-sweeper.Stop().Done()
	recorder.Close()

	logger.Info("server stopped")
}
