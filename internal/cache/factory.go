package cache

import (
	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	Prefix  string
}

func NewPredictionStore(cfg Config, redisClient *redis.Client) PredictionStore {
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisPredictionStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	default:
		return NewMemoryPredictionStore()
	}
}
