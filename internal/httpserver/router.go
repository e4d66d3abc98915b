package httpserver

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"amr-predictor/internal/handlers"
	"amr-predictor/internal/metrics"
	"amr-predictor/internal/middleware"
)

// Options tunes the middleware chain. Zero values use the defaults.
type Options struct {
	RequestTimeout time.Duration // default 15s
	MaxBodyBytes   int64         // default 64 KiB
	Ready          handlers.Pinger
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 64 * 1024
	}
	return o
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, predictHandler *handlers.PredictHandler, opts Options) {
	opts = opts.withDefaults()

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/predict", predictHandler.Predict)
		r.Post("/selection/key", predictHandler.SelectionKey)
		r.Get("/predictions/stats", predictHandler.Stats)
	})

	r.Get("/healthz", handlers.Healthz)
	r.Get("/readyz", handlers.Readyz(opts.Ready))

	r.Handle("/metrics", metrics.Handler())
}
