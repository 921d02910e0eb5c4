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

	"github.com/carelens/costnav/internal/config"
	"github.com/carelens/costnav/internal/db"
	logpkg "github.com/carelens/costnav/internal/logger"
	"github.com/carelens/costnav/internal/metrics"
	catalogrepo "github.com/carelens/costnav/internal/repository/catalog"
	geoindexrepo "github.com/carelens/costnav/internal/repository/geoindex"
	queryrepo "github.com/carelens/costnav/internal/repository/query"
	chiTransport "github.com/carelens/costnav/internal/transport/chi"
	openaiTransport "github.com/carelens/costnav/internal/transport/openai"
	askuc "github.com/carelens/costnav/internal/usecase/ask"
	governoruc "github.com/carelens/costnav/internal/usecase/governor"
	healthuc "github.com/carelens/costnav/internal/usecase/health"
	searchuc "github.com/carelens/costnav/internal/usecase/search"
	"github.com/carelens/costnav/internal/version"
)

func main() {
	// .env is optional; real environments set variables directly
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

	logger.Info("Starting costnav API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("completion_model", cfg.Completion.Model),
	)

	ctx := context.Background()

	pool, err := db.New(ctx, db.Config{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register translation metrics explicitly (no init())
	metrics.RegisterTranslationMetrics()

	translator := openaiTransport.NewTranslator(&openaiTransport.Config{
		APIKey:     cfg.Completion.APIKey,
		BaseURL:    cfg.Completion.BaseURL,
		Model:      cfg.Completion.Model,
		Timeout:    time.Duration(cfg.Completion.TimeoutSec) * time.Second,
		MaxRetries: cfg.Completion.MaxRetries,
		Logger:     logger,
	})

	// Create repositories
	catalogRepo := catalogrepo.New(pool.Pgx())
	geoRepo := geoindexrepo.New(pool.Pgx())
	queryRepo := queryrepo.New(pool.Pgx())

	// Create use case services
	searchSvc := searchuc.New(catalogRepo, geoRepo)

	policy := governoruc.DefaultPolicy()
	policy.RowCap = cfg.Governor.RowCap
	policy.MaxRadiusKM = cfg.Governor.MaxRadiusKM
	governorSvc := governoruc.New(policy)

	askSvc := askuc.New(translator, governorSvc, searchSvc, queryRepo)

	var completionChecker healthuc.CompletionChecker
	if cfg.Completion.APIKey != "" {
		completionChecker = translator
	}
	healthSvc := healthuc.New(pool, completionChecker)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, askSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

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
						"detail": "internal error",
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
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
