package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/config"
	"github.com/kailas-cloud/guardrail/internal/dataset"
	dbRedis "github.com/kailas-cloud/guardrail/internal/db/redis"
	"github.com/kailas-cloud/guardrail/internal/domain"
	logpkg "github.com/kailas-cloud/guardrail/internal/logger"
	"github.com/kailas-cloud/guardrail/internal/metrics"
	baselinerepo "github.com/kailas-cloud/guardrail/internal/repository/baseline"
	"github.com/kailas-cloud/guardrail/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/guardrail/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/guardrail/internal/transport/openai"
	baselineuc "github.com/kailas-cloud/guardrail/internal/usecase/baseline"
	detectuc "github.com/kailas-cloud/guardrail/internal/usecase/detect"
	healthuc "github.com/kailas-cloud/guardrail/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/guardrail/internal/usecase/pipeline"
	"github.com/kailas-cloud/guardrail/internal/version"
)

func main() {
	// .env is optional; real deployments use actual env vars.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting guardrail API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register detection metrics explicitly (no init())
	metrics.Register()

	// Embedder chain: OpenAI -> Redis cache
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder = embcache.New(
		embedder, store, cfg.Embedding.Model,
		time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Logger:      logger,
	})

	// One repository per corpus, sharing the store.
	anomalyRepo := baselinerepo.New(store, domain.KindAnomaly, cfg.Embedding.Dimensions)
	maliciousRepo := baselinerepo.New(store, domain.KindMalicious, cfg.Embedding.Dimensions)
	for _, repo := range []*baselinerepo.Repo{anomalyRepo, maliciousRepo} {
		if err := repo.EnsureIndex(ctx); err != nil {
			logger.Fatal("Failed to ensure corpus index", zap.String("corpus", repo.Name()), zap.Error(err))
		}
	}

	detectSvc := detectuc.New(anomalyRepo, maliciousRepo, embedder, map[domain.Kind]detectuc.Policy{
		domain.KindAnomaly: {
			Threshold: cfg.Detection.Anomaly.Threshold,
			CompareTo: cfg.Detection.Anomaly.CompareTo,
		},
		domain.KindMalicious: {
			Threshold: cfg.Detection.Malicious.Threshold,
			CompareTo: cfg.Detection.Malicious.CompareTo,
		},
	}, logger)

	baselineSvc := baselineuc.New(anomalyRepo, maliciousRepo, embedder, logger)

	pipelineSvc := pipelineuc.New(detectSvc, generator, pipelineuc.Config{
		AnomalyThreshold:   cfg.Pipeline.AnomalyThreshold,
		MaliciousThreshold: cfg.Pipeline.MaliciousThreshold,
		CheckTimeout:       time.Duration(cfg.Pipeline.CheckTimeoutSec) * time.Second,
		GenerationTimeout:  time.Duration(cfg.Pipeline.GenerationTimeoutSec) * time.Second,
	}, logger)

	healthSvc := healthuc.New(store, embedderHealth(embedder), anomalyRepo, maliciousRepo)

	// Seed corpora from local dataset files, if configured.
	if cfg.Dataset.Dir != "" {
		loader := dataset.NewLoader(cfg.Dataset.Dir, baselineSvc, logger)
		if err := loader.Seed(ctx); err != nil {
			logger.Fatal("Failed to seed baseline corpora", zap.Error(err))
		}
	}

	server := chiTransport.NewServer(pipelineSvc, detectSvc, baselineSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embedderHealth adapts domain.Embedder to health.EmbeddingChecker.
type embedderHealthChecker struct {
	embedder domain.Embedder
}

func embedderHealth(embedder domain.Embedder) *embedderHealthChecker {
	return &embedderHealthChecker{embedder: embedder}
}

func (h *embedderHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
