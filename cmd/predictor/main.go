package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"amr-predictor/internal/cache"
	"amr-predictor/internal/handlers"
	"amr-predictor/internal/httpserver"
	"amr-predictor/internal/metrics"
	"amr-predictor/internal/modelclient"
	"amr-predictor/internal/predictor"
	"amr-predictor/pkg/logging/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("predictor exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger, err := logging.NewLogger(logging.OptionsFromEnv())
	if err != nil {
		return err
	}
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := LoadConfig(getenv)
	if err != nil {
		logger.Error("invalid config", zap.Error(err))
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("version_id", cfg.VersionID),
		zap.String("resolver", cfg.Resolver),
		zap.Bool("fallback", cfg.Fallback),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("model_base_url", cfg.ModelBaseURL),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.StoreBackend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Prediction store -----
	rawStore := cache.NewPredictionStore(cache.Config{
		Backend: cfg.StoreBackend,
		Prefix:  cfg.StorePrefix,
	}, redisClient)
	store := cache.NewLoggingPredictionStore(rawStore)

	var ready handlers.Pinger
	if p, ok := rawStore.(handlers.Pinger); ok {
		ready = p
	}

	// ----- Resolver -----
	var resolver predictor.Resolver = predictor.NewCoinFlip(nil)
	if cfg.Resolver == resolverRemote {
		modelClient, err := modelclient.NewClient(modelclient.Config{
			BaseURL:         cfg.ModelBaseURL,
			APIKey:          cfg.ModelAPIKey,
			UpstreamTimeout: cfg.ModelTimeout,
			MaxRetries:      cfg.modelRetries(),
		}, logger)
		if err != nil {
			return err
		}
		if closer, ok := modelClient.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		resolver = predictor.NewRemote(modelClient)
		if cfg.Fallback {
			resolver = predictor.NewFallback(resolver, predictor.NewCoinFlip(nil), logger)
		}
	}

	memo := predictor.NewMemo(store, resolver, cfg.VersionID)

	// ----- Handlers -----
	predictHandler := handlers.NewPredictHandler(memo, cfg.StoreBackend, cfg.VersionID)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, predictHandler, httpserver.Options{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Ready:          ready,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting predictor",
		zap.String("addr", srv.Addr),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("resolver", cfg.Resolver),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
