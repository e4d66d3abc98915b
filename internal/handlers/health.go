package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"amr-predictor/pkg/logging/logging"
)

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports whether the shared store answers. A nil pinger is
// always ready.
func Readyz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				logging.L(ctx).Warn("readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, errorBody("not_ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
