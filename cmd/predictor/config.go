package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"amr-predictor/internal/cache"
)

const (
	resolverRandom = "random"
	resolverRemote = "remote"
)

type Config struct {
	Port           string
	StoreBackend   string // "memory" or "redis"
	StorePrefix    string
	RedisAddr      string
	VersionID      string
	Resolver       string // "random" or "remote"
	Fallback       bool   // fall back to random when the model fails
	ModelBaseURL   string
	ModelAPIKey    string
	ModelTimeout   time.Duration
	ModelRetries   int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// LoadConfig reads the configuration from lookup (os.Getenv in main).
// Malformed numbers and durations are reported, not silently defaulted.
func LoadConfig(lookup func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := lookup(key); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		v := lookup(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			return def
		}
		return d
	}
	integer := func(key string, def int64) int64 {
		v := lookup(key)
		if v == "" {
			return def
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			return def
		}
		return n
	}
	boolean := func(key string) bool {
		v := lookup(key)
		if v == "" {
			return false
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		}
		return b
	}

	cfg := Config{
		Port:           get("PORT", "8080"),
		StoreBackend:   get("STORE_BACKEND", cache.BackendMemory),
		StorePrefix:    get("STORE_PREFIX", "amr"),
		RedisAddr:      get("REDIS_ADDR", "127.0.0.1:6379"),
		VersionID:      get("PREDICTOR_VERSION", "v1"),
		Resolver:       get("PREDICTOR_BACKEND", resolverRandom),
		Fallback:       boolean("PREDICTOR_FALLBACK"),
		ModelBaseURL:   lookup("MODEL_BASE_URL"),
		ModelAPIKey:    lookup("MODEL_API_KEY"),
		ModelTimeout:   duration("MODEL_TIMEOUT", 30*time.Second),
		ModelRetries:   int(integer("MODEL_MAX_RETRIES", 2)),
		RequestTimeout: duration("REQUEST_TIMEOUT", 15*time.Second),
		MaxBodyBytes:   integer("MAX_BODY_BYTES", 64*1024),
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %q (must be 1..65535)", c.Port))
	}

	switch c.StoreBackend {
	case cache.BackendMemory:
	case cache.BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_BACKEND %q (memory|redis)", c.StoreBackend))
	}

	switch c.Resolver {
	case resolverRandom:
	case resolverRemote:
		if c.ModelBaseURL == "" {
			errs = append(errs, errors.New("MODEL_BASE_URL is required for the remote predictor"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid PREDICTOR_BACKEND %q (random|remote)", c.Resolver))
	}

	if c.VersionID == "" {
		errs = append(errs, errors.New("PREDICTOR_VERSION must not be empty"))
	}
	if c.ModelRetries < 0 {
		errs = append(errs, fmt.Errorf("invalid MODEL_MAX_RETRIES %d (must be >= 0)", c.ModelRetries))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}

	return errors.Join(errs...)
}

// modelRetries converts MODEL_MAX_RETRIES for modelclient.Config, where
// zero means "use the default" and a negative count disables retries.
func (c Config) modelRetries() int {
	if c.ModelRetries == 0 {
		return -1
	}
	return c.ModelRetries
}

// getenv adapts os.Getenv for LoadConfig.
func getenv(key string) string {
	return os.Getenv(key)
}
