package cache

import (
	"context"
	"strings"
	"time"

	"amr-predictor/internal/metrics"
	"amr-predictor/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingPredictionStore wraps a PredictionStore with logging + metrics.
type LoggingPredictionStore struct {
	inner PredictionStore
}

// NewLoggingPredictionStore returns a store that logs and records metrics.
func NewLoggingPredictionStore(inner PredictionStore) PredictionStore {
	return &LoggingPredictionStore{inner: inner}
}

func (s *LoggingPredictionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
		metrics.CacheHitsTotal.Inc()
	default:
		metrics.CacheMissesTotal.Inc()
	}

	fields := append(keyFields(key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", sinceMs(start)),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("prediction_store_get", append(fields, zap.Error(err))...)
	} else {
		logger.Info("prediction_store_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingPredictionStore) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	start := time.Now()
	stored, inserted, err := s.inner.PutIfAbsent(ctx, key, value)

	result := "exists"
	switch {
	case err != nil:
		result = "error"
	case inserted:
		result = "inserted"
	}

	fields := append(keyFields(key),
		zap.String("store_result", result), // inserted | exists | error
		zap.Float64("latency_ms", sinceMs(start)),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("prediction_store_put", append(fields, zap.Error(err))...)
	} else {
		logger.Info("prediction_store_put", fields...)
	}

	return stored, inserted, err
}

func (s *LoggingPredictionStore) Len(ctx context.Context) (int, error) {
	n, err := s.inner.Len(ctx)
	if err != nil {
		logging.L(ctx).Error("prediction_store_len", zap.Error(err))
	}
	return n, err
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func keyFields(key string) []zap.Field {
	fields := []zap.Field{
		zap.String("cache_tier", "prediction"),
		zap.String("hash_key", key),
	}
	if parts, ok := parsePredictionKey(key); ok {
		fields = append(fields,
			zap.String("version_id", parts.versionID),
			zap.String("hash", parts.hash),
		)
	}
	return fields
}

type predictionKeyParts struct {
	versionID string
	hash      string
}

// Expecting: predict:<VERSION_ID>:<HASH>
func parsePredictionKey(key string) (predictionKeyParts, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "predict" {
		return predictionKeyParts{}, false
	}
	return predictionKeyParts{
		versionID: parts[1],
		hash:      parts[2],
	}, true
}
